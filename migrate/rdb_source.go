package migrate

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/hdt3213/rdb/parser"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/log"
	usync "github.com/mgtv-tech/redis-ferry/pkg/sync"
)

// rdbChunk bounds the element count of one rebuilt write command, so a huge
// collection becomes several pipelined commands instead of one giant one.
const rdbChunk = 128

// RdbFileSource decodes an RDB snapshot file into command events. The
// decoder is an external collaborator; the engine only ever sees events.
type RdbFileSource struct {
	path   string
	logger log.Logger

	pipe    chan *Event
	errs    chan error
	started bool
	done    bool
}

func NewRdbFileSource(path string) *RdbFileSource {
	return &RdbFileSource{
		path:   path,
		logger: log.WithLogger("[rdb source] "),
		pipe:   make(chan *Event, 64),
		errs:   make(chan error, 1),
	}
}

func (s *RdbFileSource) Next(ctx context.Context) (*Event, error) {
	if !s.started {
		s.started = true
		usync.SafeGo(s.decode, func(interface{}) {
			s.errs <- errors.Errorf("rdb decoder panicked")
		})
	}
	if s.done {
		return nil, io.EOF
	}
	select {
	case ev, ok := <-s.pipe:
		if !ok {
			s.done = true
			select {
			case err := <-s.errs:
				return nil, err
			default:
				return nil, io.EOF
			}
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *RdbFileSource) decode() {
	defer close(s.pipe)

	file, err := os.Open(s.path)
	if err != nil {
		s.errs <- errors.WithStack(err)
		return
	}
	defer file.Close()

	s.pipe <- &Event{Kind: EventBeginRdb}

	err = parser.NewDecoder(file).Parse(func(o parser.RedisObject) bool {
		for _, ev := range objectEvents(o) {
			s.pipe <- ev
		}
		return true
	})
	if err != nil {
		s.errs <- errors.WithStack(err)
		return
	}
	s.pipe <- &Event{Kind: EventEndRdb}
}

// objectEvents rebuilds the write commands for one decoded object.
func objectEvents(o parser.RedisObject) []*Event {
	db := o.GetDBIndex()
	key := []byte(o.GetKey())
	typ := o.GetType()
	var events []*Event

	appendCmd := func(argv ...[]byte) {
		events = append(events, &Event{
			Kind: EventCommand,
			Db:   db,
			Key:  key,
			Type: typ,
			Argv: argv,
		})
	}

	switch obj := o.(type) {
	case *parser.StringObject:
		appendCmd([]byte("SET"), key, obj.Value)
	case *parser.ListObject:
		for lo := 0; lo < len(obj.Values); lo += rdbChunk {
			argv := [][]byte{[]byte("RPUSH"), key}
			argv = append(argv, obj.Values[lo:min(lo+rdbChunk, len(obj.Values))]...)
			appendCmd(argv...)
		}
	case *parser.SetObject:
		for lo := 0; lo < len(obj.Members); lo += rdbChunk {
			argv := [][]byte{[]byte("SADD"), key}
			argv = append(argv, obj.Members[lo:min(lo+rdbChunk, len(obj.Members))]...)
			appendCmd(argv...)
		}
	case *parser.HashObject:
		argv := [][]byte{[]byte("HSET"), key}
		for field, value := range obj.Hash {
			argv = append(argv, []byte(field), value)
			if len(argv) >= 2+rdbChunk*2 {
				appendCmd(argv...)
				argv = [][]byte{[]byte("HSET"), key}
			}
		}
		if len(argv) > 2 {
			appendCmd(argv...)
		}
	case *parser.ZSetObject:
		argv := [][]byte{[]byte("ZADD"), key}
		for _, entry := range obj.Entries {
			score := strconv.FormatFloat(entry.Score, 'f', -1, 64)
			argv = append(argv, []byte(score), []byte(entry.Member))
			if len(argv) >= 2+rdbChunk*2 {
				appendCmd(argv...)
				argv = [][]byte{[]byte("ZADD"), key}
			}
		}
		if len(argv) > 2 {
			appendCmd(argv...)
		}
	default:
		// module and stream payloads have no portable command rebuild
		return nil
	}

	if exp := o.GetExpiration(); exp != nil {
		ms := exp.UnixMilli()
		if ms <= time.Now().UnixMilli() {
			ms = time.Now().UnixMilli() + 1
		}
		appendCmd([]byte("PEXPIREAT"), key, []byte(strconv.FormatInt(ms, 10)))
	}
	return events
}
