package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgtv-tech/redis-ferry/pkg/redis/proto"
)

func TestParseReplaceMode(t *testing.T) {
	m, ok := ParseReplaceMode("yes")
	require.True(t, ok)
	assert.Equal(t, ReplaceForce, m)

	m, ok = ParseReplaceMode("")
	require.True(t, ok)
	assert.Equal(t, ReplaceNone, m)

	m, ok = ParseReplaceMode("fallback")
	require.True(t, ok)
	assert.Equal(t, ReplaceFallback, m)

	_, ok = ParseReplaceMode("maybe")
	assert.False(t, ok)
}

func TestRestoreArgv(t *testing.T) {
	ev := &Event{Kind: EventKeyValue, Key: []byte("k"), TtlMs: 1500, Payload: []byte{0x00, 0x01}}

	cmd, args := restoreArgv(ev, false, false)
	assert.Equal(t, "RESTORE", cmd)
	assert.Equal(t, [][]byte{[]byte("k"), []byte("1500"), {0x00, 0x01}}, args)

	cmd, args = restoreArgv(ev, true, false)
	assert.Equal(t, "RESTORE", cmd)
	assert.Equal(t, []byte("REPLACE"), args[len(args)-1])

	cmd, args = restoreArgv(ev, false, true)
	assert.Equal(t, "EVAL", cmd)
	assert.Equal(t, []byte("1"), args[1])
	assert.Equal(t, []byte("k"), args[2])
}

func TestIsBusyKey(t *testing.T) {
	assert.True(t, isBusyKey(&proto.Reply{Kind: proto.RespError, Str: "BUSYKEY Target key name already exists."}))
	assert.True(t, isBusyKey(&proto.Reply{Kind: proto.RespError, Str: "Target key name is busy."}))
	assert.False(t, isBusyKey(&proto.Reply{Kind: proto.RespError, Str: "WRONGTYPE Operation against a key"}))
	assert.False(t, isBusyKey(&proto.Reply{Kind: proto.RespStatus, Str: "OK"}))
}
