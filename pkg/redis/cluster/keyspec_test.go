package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argv(args ...string) [][]byte {
	out := make([][]byte, 0, len(args))
	for _, a := range args {
		out = append(out, []byte(a))
	}
	return out
}

func TestCommandKeys(t *testing.T) {
	cases := []struct {
		in   []string
		keys []string
	}{
		{[]string{"GET", "k"}, []string{"k"}},
		{[]string{"set", "k", "v"}, []string{"k"}},
		{[]string{"MSET", "a", "1", "b", "2"}, []string{"a", "b"}},
		{[]string{"DEL", "a", "b", "c"}, []string{"a", "b", "c"}},
		{[]string{"RENAME", "a", "b"}, []string{"a", "b"}},
		{[]string{"RPOPLPUSH", "src", "dst"}, []string{"src", "dst"}},
		{[]string{"EVAL", "return 1", "2", "k1", "k2", "arg"}, []string{"k1", "k2"}},
		{[]string{"PING"}, nil},
		{[]string{"PUBLISH", "chan", "msg"}, nil},
	}
	for _, c := range cases {
		keys, err := CommandKeys(argv(c.in...))
		require.Nil(t, err, c.in)
		if c.keys == nil {
			assert.Empty(t, keys, c.in)
		} else {
			assert.Equal(t, argv(c.keys...), keys, c.in)
		}
	}
}

func TestCommandKeysShort(t *testing.T) {
	_, err := CommandKeys(argv("EVAL", "return 1", "3", "k1"))
	assert.NotNil(t, err)
	_, err = CommandKeys(argv("RENAME", "a"))
	assert.NotNil(t, err)
}

func TestSameSlot(t *testing.T) {
	slot, ok, err := SameSlot(argv("MSET", "{u}:a", "1", "{u}:b", "2"))
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, Slot([]byte("{u}:a")), slot)

	_, _, err = SameSlot(argv("MSET", "a", "1", "b", "2"))
	assert.NotNil(t, err)

	_, ok, err = SameSlot(argv("PING"))
	require.Nil(t, err)
	assert.False(t, ok)
}
