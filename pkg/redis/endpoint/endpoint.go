package endpoint

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/log"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/cluster"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/proto"
	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

// Options describe how to open one endpoint. Pipe is the pipeline budget :
// the inflight count at which a batch auto-drains. Pipe -1 disables the
// count-based drain; the caller then owns flushing at batch boundaries.
type Options struct {
	Host           string
	Port           int
	Db             int
	Pipe           int
	Stats          bool
	AuthUser       string
	AuthPassword   string
	TlsEnable      bool
	ConnectTimeout time.Duration
}

func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Endpoint is one full-duplex connection to a redis server with its own
// pipelined batch state. It is owned by a single worker at a time; replies
// are consumed in strict FIFO order of submission.
type Endpoint struct {
	opts    Options
	db      int
	count   int
	conn    net.Conn
	reader  *proto.Reader
	writer  *proto.Writer
	address string // sanitized, for metrics
	slots   []cluster.SlotRange
	stats   *Stats
	logger  log.Logger
}

// Open dials the server, authenticates (AUTH when credentials are
// configured, PING otherwise) and selects the initial database.
func Open(opts Options) (*Endpoint, error) {
	return open(opts, nil)
}

func open(opts Options, stats *Stats) (*Endpoint, error) {
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	var conn net.Conn
	var err error
	if opts.TlsEnable {
		conn, err = tls.DialWithDialer(&dialer, "tcp", opts.Addr(), &tls.Config{InsecureSkipVerify: true})
	} else {
		conn, err = dialer.Dial("tcp", opts.Addr())
	}
	if err != nil {
		return nil, errors.Errorf("%w : dial %s : %v", errors.ErrConnect, opts.Addr(), err)
	}

	e := &Endpoint{
		opts:    opts,
		db:      -1,
		conn:    conn,
		reader:  proto.NewReader(conn, proto.ReaderBufferSize),
		writer:  proto.NewWriter(conn, proto.WriterBufferSize),
		address: sanitizeAddress(opts.Addr()),
		stats:   stats,
		logger:  log.WithLogger(fmt.Sprintf("[endpoint %s] ", opts.Addr())),
	}
	if opts.Stats && e.stats == nil {
		e.stats = &Stats{}
	}

	if err := e.handshake(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Endpoint) handshake() error {
	if e.opts.AuthPassword != "" {
		var reply *proto.Reply
		var err error
		if e.opts.AuthUser != "" {
			reply, err = e.Send("AUTH", []byte(e.opts.AuthUser), []byte(e.opts.AuthPassword))
		} else {
			reply, err = e.Send("AUTH", []byte(e.opts.AuthPassword))
		}
		if err != nil {
			return err
		}
		if reply.IsError() {
			return errors.Errorf("%w : auth : %s", errors.ErrAuth, reply.Str)
		}
	} else {
		reply, err := e.Send("PING")
		if err != nil {
			return err
		}
		if reply.IsError() {
			return errors.Errorf("%w : ping : %s", errors.ErrAuth, reply.Str)
		}
	}

	if e.opts.Db >= 0 {
		reply, err := e.Send("SELECT", []byte(strconv.Itoa(e.opts.Db)))
		if err != nil {
			return err
		}
		if reply.IsError() {
			return errors.Errorf("%w : select %d : %s", errors.ErrAuth, e.opts.Db, reply.Str)
		}
		e.db = e.opts.Db
	}
	return nil
}

func (e *Endpoint) Addr() string {
	return e.opts.Addr()
}

// DB is the database of the last SELECT issued on this connection : the
// handshake's, or one pipelined by Select, which is cached before its reply
// is read.
func (e *Endpoint) DB() int {
	return e.db
}

// Count is the number of inflight pipelined commands.
func (e *Endpoint) Count() int {
	return e.count
}

func (e *Endpoint) Stats() *Stats {
	return e.stats
}

func (e *Endpoint) Slots() []cluster.SlotRange {
	return e.slots
}

func (e *Endpoint) SetSlots(slots []cluster.SlotRange) {
	e.slots = slots
}

// Send runs one synchronous roundtrip. Any pending pipelined batch is
// drained first so replies do not interleave.
func (e *Endpoint) Send(cmd string, args ...[]byte) (*proto.Reply, error) {
	if err := e.Flush(); err != nil {
		return nil, err
	}
	if err := e.writer.WriteCommand(commandArgv(cmd, args)...); err != nil {
		return nil, errors.Errorf("%w : write %s : %v", errors.ErrIo, cmd, err)
	}
	if err := e.writer.Flush(); err != nil {
		return nil, errors.Errorf("%w : flush %s : %v", errors.ErrIo, cmd, err)
	}
	reply, err := e.reader.ReadReply()
	if err != nil {
		return nil, e.readErr(err)
	}
	return reply, nil
}

// Batch appends the command to the outbound pipeline. force flushes the
// writer immediately (per-command latency mode); otherwise bytes ride the
// 64 KiB buffer. Reaching the pipe budget drains the batch.
func (e *Endpoint) Batch(force bool, cmd string, args ...[]byte) error {
	mark := time.Now()
	if err := e.writer.WriteCommand(commandArgv(cmd, args)...); err != nil {
		return errors.Errorf("%w : write %s : %v", errors.ErrIo, cmd, err)
	}
	return e.finishBatch(force, cmd, mark)
}

// BatchStream appends a command whose bulk payload is streamed from a byte
// chain instead of being copied through the argv path. pre precedes the
// payload, post follows it (RESTORE key ttl <payload> [REPLACE]).
func (e *Endpoint) BatchStream(force bool, cmd string, pre [][]byte, payload *util.ByteChain, post ...[]byte) error {
	mark := time.Now()
	if err := e.writer.WriteHeader(2 + len(pre) + len(post)); err != nil {
		return errors.Errorf("%w : write %s : %v", errors.ErrIo, cmd, err)
	}
	if err := e.writer.WriteBulk([]byte(cmd)); err != nil {
		return errors.Errorf("%w : write %s : %v", errors.ErrIo, cmd, err)
	}
	for _, arg := range pre {
		if err := e.writer.WriteBulk(arg); err != nil {
			return errors.Errorf("%w : write %s : %v", errors.ErrIo, cmd, err)
		}
	}
	if err := e.writer.WriteBulkFrom(payload.Size(), payload); err != nil {
		return errors.Errorf("%w : write %s : %v", errors.ErrIo, cmd, err)
	}
	for _, arg := range post {
		if err := e.writer.WriteBulk(arg); err != nil {
			return errors.Errorf("%w : write %s : %v", errors.ErrIo, cmd, err)
		}
	}
	return e.finishBatch(force, cmd, mark)
}

func (e *Endpoint) finishBatch(force bool, cmd string, mark time.Time) error {
	if force {
		if err := e.writer.Flush(); err != nil {
			return errors.Errorf("%w : flush %s : %v", errors.ErrIo, cmd, err)
		}
		e.stats.send(e.address, time.Since(mark).Nanoseconds())
	}
	e.count++
	if e.count == e.opts.Pipe && e.opts.Pipe != -1 {
		return e.Flush()
	}
	return nil
}

// Select pipelines a SELECT and caches the database optimistically.
func (e *Endpoint) Select(force bool, db int) error {
	if err := e.Batch(force, "SELECT", []byte(strconv.Itoa(db))); err != nil {
		return err
	}
	e.db = db
	return nil
}

// Sync flushes and reads exactly the inflight replies, in submission order.
// Callers use it when reply bodies matter; the migration hot path uses
// Flush.
func (e *Endpoint) Sync() ([]*proto.Reply, error) {
	if e.count <= 0 {
		return nil, nil
	}
	if err := e.writer.Flush(); err != nil {
		return nil, errors.Errorf("%w : flush : %v", errors.ErrIo, err)
	}
	replies := make([]*proto.Reply, 0, e.count)
	for i := 0; i < e.count; i++ {
		reply, err := e.reader.ReadReply()
		if err != nil {
			return nil, e.readErr(err)
		}
		replies = append(replies, reply)
	}
	e.count = 0
	return replies, nil
}

// Flush drains the batch, classifying each reply as success or error and
// discarding the body.
func (e *Endpoint) Flush() error {
	if e.count <= 0 {
		return nil
	}
	if err := e.writer.Flush(); err != nil {
		return errors.Errorf("%w : flush : %v", errors.ErrIo, err)
	}
	for i := 0; i < e.count; i++ {
		reply, err := e.reader.ReadReply()
		if err != nil {
			return e.readErr(err)
		}
		if reply.IsError() {
			e.logger.Errorf("failure[respond] [%s]", reply.Str)
			e.stats.failure(e.address, FailureRespond)
		} else {
			e.stats.success(e.address)
		}
	}
	e.count = 0
	return nil
}

// FlushQuietly is the best-effort release-path variant : failures are
// logged, never raised.
func (e *Endpoint) FlushQuietly() {
	if err := e.Flush(); err != nil {
		e.logger.Errorf("failed to flush : %v", err)
	}
}

func (e *Endpoint) readErr(err error) error {
	if errors.Is(err, errors.ErrProtocol) {
		return err
	}
	if util.IsNetError(err) {
		return errors.Errorf("%w : read : %v", errors.ErrIo, err)
	}
	return err
}

// NoteSuccess counts a success observed by a caller that classifies replies
// itself (the synchronous restore path).
func (e *Endpoint) NoteSuccess() {
	e.stats.success(e.address)
}

// NoteFailure counts a failure with a reason tag.
func (e *Endpoint) NoteFailure(reason string) {
	e.stats.failure(e.address, reason)
}

// CountFailure records a failure for work that never reached an endpoint,
// e.g. a cross-slot command dropped at routing time.
func CountFailure(addr string, reason string) {
	failureCounter.Inc(sanitizeAddress(addr), reason)
}

// Close tears down the connection. Teardown errors are swallowed; there is
// nothing useful a caller can do with them.
func (e *Endpoint) Close() error {
	if e.conn != nil {
		e.conn.Close()
	}
	return nil
}

// Reopen closes the endpoint quietly and builds a fresh one on the same
// host/port with the same pipe budget, stats and slot set. Inflight
// commands at the time of failure are lost.
func Reopen(e *Endpoint, db int) (*Endpoint, error) {
	e.stats.reconnect(e.address)
	e.Close()
	opts := e.opts
	opts.Db = db
	fresh, err := open(opts, e.stats)
	if err != nil {
		return nil, err
	}
	fresh.slots = e.slots
	return fresh, nil
}

func commandArgv(cmd string, args [][]byte) [][]byte {
	argv := make([][]byte, 0, len(args)+1)
	argv = append(argv, []byte(cmd))
	return append(argv, args...)
}
