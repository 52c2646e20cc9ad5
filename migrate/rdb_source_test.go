package migrate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	rdbenc "github.com/hdt3213/rdb/encoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestRdb(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.rdb")
	file, err := os.Create(path)
	require.Nil(t, err)
	defer file.Close()

	enc := rdbenc.NewEncoder(file)
	require.Nil(t, enc.WriteHeader())
	require.Nil(t, enc.WriteDBHeader(0, 3, 1))
	require.Nil(t, enc.WriteStringObject("greeting", []byte("hello")))
	expire := time.Now().Add(time.Hour)
	require.Nil(t, enc.WriteStringObject("volatile", []byte("soon"),
		rdbenc.WithTTL(uint64(expire.UnixNano()/1e6))))
	require.Nil(t, enc.WriteListObject("queue", [][]byte{[]byte("a"), []byte("b")}))
	require.Nil(t, enc.WriteEnd())
	return path
}

func drainSource(t *testing.T, src Source) []*Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var events []*Event
	for {
		ev, err := src.Next(ctx)
		if err == io.EOF {
			return events
		}
		require.Nil(t, err)
		events = append(events, ev)
	}
}

func TestRdbFileSource(t *testing.T) {
	src := NewRdbFileSource(writeTestRdb(t))
	events := drainSource(t, src)

	require.NotEmpty(t, events)
	assert.Equal(t, EventBeginRdb, events[0].Kind)
	assert.Equal(t, EventEndRdb, events[len(events)-1].Kind)

	byKey := map[string][][]string{}
	for _, ev := range events[1 : len(events)-1] {
		require.Equal(t, EventCommand, ev.Kind)
		var argv []string
		for _, a := range ev.Argv {
			argv = append(argv, string(a))
		}
		byKey[string(ev.Key)] = append(byKey[string(ev.Key)], argv)
	}

	require.Len(t, byKey["greeting"], 1)
	assert.Equal(t, []string{"SET", "greeting", "hello"}, byKey["greeting"][0])

	// volatile key gets its SET followed by PEXPIREAT
	require.Len(t, byKey["volatile"], 2)
	assert.Equal(t, "SET", byKey["volatile"][0][0])
	assert.Equal(t, "PEXPIREAT", byKey["volatile"][1][0])

	require.Len(t, byKey["queue"], 1)
	assert.Equal(t, []string{"RPUSH", "queue", "a", "b"}, byKey["queue"][0])
}

func TestRdbFileSourceMissingFile(t *testing.T) {
	src := NewRdbFileSource(filepath.Join(t.TempDir(), "absent.rdb"))
	ctx := context.Background()
	var err error
	for err == nil {
		_, err = src.Next(ctx)
	}
	assert.NotEqual(t, io.EOF, err)
}
