package migrate

import (
	"context"
	"fmt"
)

// EventKind tags one record of the upstream stream.
type EventKind int

const (
	// EventBeginRdb opens a snapshot replay.
	EventBeginRdb EventKind = iota
	// EventKeyValue carries one self-contained key : its type tag, ttl and
	// the opaque serialized payload RESTORE accepts verbatim.
	EventKeyValue
	// EventCommand is a write command decoded from the snapshot.
	EventCommand
	// EventEndRdb closes the snapshot; every endpoint is drained on it.
	EventEndRdb
	// EventStreamCommand is a post-snapshot replicated command.
	EventStreamCommand
)

func (k EventKind) String() string {
	switch k {
	case EventBeginRdb:
		return "begin-rdb"
	case EventKeyValue:
		return "key-value"
	case EventCommand:
		return "command"
	case EventEndRdb:
		return "end-rdb"
	case EventStreamCommand:
		return "stream-command"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

type Event struct {
	Kind EventKind

	Db    int
	Key   []byte
	Type  string // redis type tag : string, list, set, hash, zset, stream
	TtlMs int64
	// Payload is the DUMP serialization for RESTORE; nil for command events.
	Payload []byte

	// Argv is the full command line for EventCommand/EventStreamCommand,
	// argv[0] being the command name.
	Argv [][]byte
}

// Source delivers the ordered upstream event stream via blocking pull.
// After EventEndRdb a snapshot source returns io.EOF; a sync-follow source
// keeps delivering EventStreamCommand until ctx is done.
type Source interface {
	Next(ctx context.Context) (*Event, error)
}
