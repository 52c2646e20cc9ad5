package proto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

func TestWriteCommand(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	err := w.WriteCommand([]byte("SET"), []byte("k"), []byte("v1"))
	require.Nil(t, err)
	require.Nil(t, w.Flush())
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$2\r\nv1\r\n", buf.String())
}

func TestWriteBulkFrom(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	chain := util.NewByteChain([]byte("hel"), []byte{}, []byte("lo"))
	require.Nil(t, w.WriteHeader(2))
	require.Nil(t, w.WriteBulk([]byte("ECHO")))
	require.Nil(t, w.WriteBulkFrom(chain.Size(), chain))
	require.Nil(t, w.Flush())
	assert.Equal(t, "*2\r\n$4\r\nECHO\r\n$5\r\nhello\r\n", buf.String())
}

func TestReadReply(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		check func(t *testing.T, r *Reply)
	}{
		{"status", "+OK\r\n", func(t *testing.T, r *Reply) {
			assert.Equal(t, byte(RespStatus), r.Kind)
			assert.Equal(t, "OK", r.Str)
		}},
		{"error", "-BUSYKEY Target key name already exists.\r\n", func(t *testing.T, r *Reply) {
			assert.True(t, r.IsError())
			assert.Contains(t, r.Str, "BUSYKEY")
		}},
		{"integer", ":1234\r\n", func(t *testing.T, r *Reply) {
			assert.Equal(t, int64(1234), r.Int)
		}},
		{"bulk", "$5\r\nhello\r\n", func(t *testing.T, r *Reply) {
			assert.Equal(t, []byte("hello"), r.Bulk)
		}},
		{"null bulk", "$-1\r\n", func(t *testing.T, r *Reply) {
			assert.True(t, r.Null)
		}},
		{"array", "*2\r\n$1\r\na\r\n:2\r\n", func(t *testing.T, r *Reply) {
			require.Len(t, r.Array, 2)
			assert.Equal(t, []byte("a"), r.Array[0].Bulk)
			assert.Equal(t, int64(2), r.Array[1].Int)
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(c.in), 0)
			reply, err := r.ReadReply()
			require.Nil(t, err)
			c.check(t, reply)
		})
	}
}

func TestReadReplyFifo(t *testing.T) {
	r := NewReader(strings.NewReader("+OK\r\n:1\r\n+QUEUED\r\n"), 0)
	r1, err := r.ReadReply()
	require.Nil(t, err)
	r2, err := r.ReadReply()
	require.Nil(t, err)
	r3, err := r.ReadReply()
	require.Nil(t, err)
	assert.Equal(t, "OK", r1.Str)
	assert.Equal(t, int64(1), r2.Int)
	assert.Equal(t, "QUEUED", r3.Str)
}

func TestReadReplyProtocolError(t *testing.T) {
	for _, in := range []string{"%1\r\n", ":abc\r\n", "$3\r\nhelXY"} {
		r := NewReader(strings.NewReader(in), 0)
		_, err := r.ReadReply()
		assert.NotNil(t, err, in)
		if err != nil && !errors.Is(err, errors.ErrProtocol) {
			// short bulk surfaces the read error instead
			assert.Contains(t, err.Error(), "EOF")
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// a command echoed back by the server decodes to the same argv bytes
	argv := [][]byte{[]byte("RESTORE"), []byte("key"), []byte("0"), {0x00, 0x01, 0xff}}
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	require.Nil(t, w.WriteCommand(argv...))
	require.Nil(t, w.Flush())

	r := NewReader(&buf, 0)
	reply, err := r.ReadReply()
	require.Nil(t, err)
	require.Equal(t, byte(RespArray), reply.Kind)
	require.Len(t, reply.Array, len(argv))
	for i := range argv {
		assert.Equal(t, argv[i], reply.Array[i].Bulk)
	}
}
