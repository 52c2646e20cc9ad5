package util

import (
	"errors"
	"io"
	"net"
)

// IsNetError walks the wrap chain looking for a transport-level fault.
// io.EOF counts: a peer that hangs up mid-batch is a socket failure, not a
// protocol one.
func IsNetError(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	for {
		if err == nil {
			return false
		}
		if _, ok := err.(net.Error); ok {
			return true
		}
		err = errors.Unwrap(err)
	}
}
