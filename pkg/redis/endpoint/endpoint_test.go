package endpoint

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/redistest"
	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

func testOptions(t *testing.T, srv *redistest.Server, pipe int) Options {
	t.Helper()
	return Options{
		Host:           srv.Host(),
		Port:           srv.Port(),
		Db:             0,
		Pipe:           pipe,
		Stats:          true,
		ConnectTimeout: time.Second,
	}
}

func newServer(t *testing.T) *redistest.Server {
	t.Helper()
	srv, err := redistest.NewServer()
	require.Nil(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenHandshake(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, 8))
	require.Nil(t, err)
	defer e.Close()

	assert.Equal(t, 0, e.DB())
	assert.Equal(t, []string{"PING", "SELECT"}, srv.CommandNames())
}

func TestOpenAuth(t *testing.T) {
	srv := newServer(t)
	opts := testOptions(t, srv, 8)
	opts.AuthUser = "svc"
	opts.AuthPassword = "secret"
	e, err := Open(opts)
	require.Nil(t, err)
	defer e.Close()

	cmds := srv.Commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, []string{"AUTH", "svc", "secret"}, cmds[0])
}

func TestOpenAuthError(t *testing.T) {
	srv := newServer(t)
	srv.Reply("AUTH", "-WRONGPASS invalid username-password pair\r\n")
	opts := testOptions(t, srv, 8)
	opts.AuthPassword = "bad"
	_, err := Open(opts)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, errors.ErrAuth))
}

func TestOpenConnectError(t *testing.T) {
	_, err := Open(Options{Host: "127.0.0.1", Port: 1, Db: -1, ConnectTimeout: 200 * time.Millisecond})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, errors.ErrConnect))
}

func TestBatchAutoDrain(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, 3))
	require.Nil(t, err)
	defer e.Close()

	require.Nil(t, e.Batch(false, "SET", []byte("a"), []byte("1")))
	assert.Equal(t, 1, e.Count())
	require.Nil(t, e.Batch(false, "SET", []byte("b"), []byte("2")))
	assert.Equal(t, 2, e.Count())

	// third command reaches the budget and drains
	require.Nil(t, e.Batch(false, "SET", []byte("c"), []byte("3")))
	assert.Equal(t, 0, e.Count())
	assert.GreaterOrEqual(t, e.Stats().Success.Load(), int64(3))
}

func TestBatchBudgetInvariant(t *testing.T) {
	srv := newServer(t)
	pipe := 4
	e, err := Open(testOptions(t, srv, pipe))
	require.Nil(t, err)
	defer e.Close()

	for i := 0; i < 50; i++ {
		require.Nil(t, e.Batch(false, "PING"))
		assert.LessOrEqual(t, e.Count(), pipe)
		assert.GreaterOrEqual(t, e.Count(), 0)
	}
}

func TestBatchPipeOne(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, 1))
	require.Nil(t, err)
	defer e.Close()

	// budget 1 degenerates to synchronous send-then-wait
	for i := 0; i < 5; i++ {
		require.Nil(t, e.Batch(false, "PING"))
		assert.Equal(t, 0, e.Count())
	}
	assert.Equal(t, int64(5), e.Stats().Success.Load())
}

func TestBatchUnbounded(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, -1))
	require.Nil(t, err)
	defer e.Close()

	for i := 0; i < 10; i++ {
		require.Nil(t, e.Batch(false, "PING"))
	}
	// pipe -1 never auto-drains; the caller flushes at batch boundaries
	assert.Equal(t, 10, e.Count())
	require.Nil(t, e.Flush())
	assert.Equal(t, 0, e.Count())
}

func TestBatchStream(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, -1))
	require.Nil(t, err)
	defer e.Close()

	payload := bytes.Repeat([]byte{0xab}, 100*1024)
	chain := util.NewByteChain(payload[:40*1024], payload[40*1024:])
	pre := [][]byte{[]byte("bigkey"), []byte("0")}
	require.Nil(t, e.BatchStream(false, "RESTORE", pre, chain, []byte("REPLACE")))
	assert.Equal(t, 1, e.Count())
	require.Nil(t, e.Flush())

	var restore []string
	for _, cmd := range srv.Commands() {
		if cmd[0] == "RESTORE" {
			restore = cmd
		}
	}
	require.Len(t, restore, 5)
	assert.Equal(t, "bigkey", restore[1])
	assert.Equal(t, "0", restore[2])
	assert.Equal(t, string(payload), restore[3])
	assert.Equal(t, "REPLACE", restore[4])
}

func TestSyncFifo(t *testing.T) {
	srv := newServer(t)
	srv.Reply("GET", "$1\r\nx\r\n")
	e, err := Open(testOptions(t, srv, -1))
	require.Nil(t, err)
	defer e.Close()

	require.Nil(t, e.Batch(false, "PING"))
	require.Nil(t, e.Batch(false, "GET", []byte("k")))
	require.Nil(t, e.Batch(false, "SET", []byte("k"), []byte("v")))

	replies, err := e.Sync()
	require.Nil(t, err)
	require.Len(t, replies, 3)
	assert.Equal(t, "PONG", replies[0].Str)
	assert.Equal(t, []byte("x"), replies[1].Bulk)
	assert.Equal(t, "OK", replies[2].Str)
	assert.Equal(t, 0, e.Count())
}

func TestSendDrainsPendingBatch(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, -1))
	require.Nil(t, err)
	defer e.Close()

	require.Nil(t, e.Batch(false, "SET", []byte("a"), []byte("1")))
	reply, err := e.Send("PING")
	require.Nil(t, err)
	assert.Equal(t, "PONG", reply.Str)
	assert.Equal(t, 0, e.Count())

	names := srv.CommandNames()
	// SET arrived before the PING roundtrip
	assert.Equal(t, []string{"PING", "SELECT", "SET", "PING"}, names)
}

func TestFlushClassifiesErrors(t *testing.T) {
	srv := newServer(t)
	srv.Reply("RESTORE", "-BUSYKEY Target key name already exists.\r\n")
	e, err := Open(testOptions(t, srv, -1))
	require.Nil(t, err)
	defer e.Close()

	require.Nil(t, e.Batch(false, "RESTORE", []byte("k"), []byte("0"), []byte("payload")))
	require.Nil(t, e.Batch(false, "PING"))
	require.Nil(t, e.Flush())

	// error replies are a reply class, not a transport fault
	assert.Equal(t, int64(1), e.Stats().Failure.Load())
	assert.Equal(t, int64(1), e.Stats().Success.Load())
}

func TestSelectCachesDb(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, -1))
	require.Nil(t, err)
	defer e.Close()

	require.Nil(t, e.Select(false, 3))
	assert.Equal(t, 3, e.DB())
	require.Nil(t, e.Flush())
}

func TestReopenPreservesState(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, 16))
	require.Nil(t, err)

	stats := e.Stats()
	fresh, err := Reopen(e, 2)
	require.Nil(t, err)
	defer fresh.Close()

	assert.Equal(t, 2, fresh.DB())
	assert.Same(t, stats, fresh.Stats())
	assert.Equal(t, int64(1), stats.Reconnect.Load())
}

func TestPoolLanes(t *testing.T) {
	srv := newServer(t)
	p, err := NewPool(testOptions(t, srv, 8), 4)
	require.Nil(t, err)
	defer p.Close()

	assert.Equal(t, 4, p.Lanes())
	// the same key always maps to the same lane
	lane := p.LaneFor([]byte("user.profile"))
	for i := 0; i < 10; i++ {
		assert.Equal(t, lane, p.LaneFor([]byte("user.profile")))
	}

	// reopen preserves lane identity and the shared stats
	stats := p.Stats()
	require.Nil(t, p.Reopen(lane, 0))
	assert.Same(t, stats, p.Lane(lane).Stats())
	assert.Equal(t, int64(1), stats.Reconnect.Load())
}

func TestFlushIoErrorSurfacesAsIoClass(t *testing.T) {
	srv := newServer(t)
	e, err := Open(testOptions(t, srv, -1))
	require.Nil(t, err)
	defer e.Close()

	require.Nil(t, e.Batch(false, "PING"))
	srv.DropConnections()

	err = e.Flush()
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, errors.ErrIo))
}
