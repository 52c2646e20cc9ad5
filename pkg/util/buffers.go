package util

import "io"

// ByteChain presents a sequence of byte slices as one io.Reader with a known
// total length, so a large value split across buffers can be written to the
// wire without being glued together first.
type ByteChain struct {
	bufs [][]byte
	size int64
}

func NewByteChain(bufs ...[]byte) *ByteChain {
	c := &ByteChain{bufs: bufs}
	for _, b := range bufs {
		c.size += int64(len(b))
	}
	return c
}

func (c *ByteChain) Size() int64 {
	return c.size
}

func (c *ByteChain) Read(p []byte) (int, error) {
	for len(c.bufs) > 0 && len(c.bufs[0]) == 0 {
		c.bufs = c.bufs[1:]
	}
	if len(c.bufs) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.bufs[0])
	c.bufs[0] = c.bufs[0][n:]
	return n, nil
}
