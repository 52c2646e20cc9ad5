package migrate

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/atomic"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/log"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/cluster"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/endpoint"
	usync "github.com/mgtv-tech/redis-ferry/pkg/sync"
	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

// Config drives one engine run.
type Config struct {
	// Standalone target; ignored when SlotMap is set.
	TargetHost string
	TargetPort int

	// SlotMap switches the engine to cluster mode : every key is routed to
	// its owning master. Immutable for the duration of the run.
	SlotMap *cluster.SlotMap

	Threads         int // lanes per target (migrate_threads)
	BatchSize       int // pipeline budget per endpoint (migrate_batch_size); -1 disables count-based drain
	FlushPerCommand bool
	Retries         int // socket-failure retries; only effective with FlushPerCommand

	AuthUser       string
	AuthPassword   string
	TlsEnable      bool
	ConnectTimeout time.Duration

	Replace  ReplaceMode
	Legacy   bool // DEL+RESTORE via EVAL for pre-3.0 targets
	TargetDb int  // -1 keeps the source db; clusters force 0

	Stats  bool
	Filter *Filter

	// DefaultLane carries keyless commands.
	DefaultLane int
}

func (c *Config) fix() error {
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.BatchSize == 0 {
		c.BatchSize = 128
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 3 * time.Second
	}
	if c.SlotMap != nil {
		// SELECT does not exist on a cluster
		c.TargetDb = 0
	}
	if c.Retries > 0 && !c.FlushPerCommand {
		return errors.Errorf("%w : migrate_retries requires migrate_flush=yes, the failed command is unknown otherwise", errors.ErrConfig)
	}
	if c.SlotMap == nil && (c.TargetHost == "" || c.TargetPort == 0) {
		return errors.Errorf("%w : no migration target", errors.ErrConfig)
	}
	if c.DefaultLane < 0 || c.DefaultLane >= c.Threads {
		c.DefaultLane = 0
	}
	return nil
}

type laneItem struct {
	ev   *Event
	pool *endpoint.Pool
}

// Engine fans the upstream event stream out over per-lane workers and
// pipelined endpoints. One worker drives lane i of every target pool, so a
// lane's endpoint is never concurrently mutated; a key always hashes to the
// same lane, which preserves per-key ordering for the whole run.
type Engine struct {
	cfg    Config
	logger log.Logger

	pools  []*endpoint.Pool          // stable order; standalone holds one
	poolOf map[string]*endpoint.Pool // cluster : master address -> pool
	queues []chan *laneItem

	sentRt     atomic.Int64
	filteredRt atomic.Int64
	droppedRt  atomic.Int64
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.fix(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:    cfg,
		logger: log.WithLogger("[migrate] "),
		poolOf: make(map[string]*endpoint.Pool),
	}, nil
}

// Sent reports the number of commands handed to endpoints so far.
func (en *Engine) Sent() int64 { return en.sentRt.Load() }

// Filtered reports the number of events rejected by the filter.
func (en *Engine) Filtered() int64 { return en.filteredRt.Load() }

// Dropped reports the number of commands dropped at routing time.
func (en *Engine) Dropped() int64 { return en.droppedRt.Load() }

// Run replays src until it reports io.EOF (snapshot mode) or ctx is done
// (sync-follow mode), then drains and closes every endpoint. The returned
// error is nil only if no fatal class fired.
func (en *Engine) Run(ctx context.Context, src Source) error {
	if err := en.openPools(); err != nil {
		return err
	}
	defer en.closePools()

	wc := usync.NewWaitCloserFromContext(ctx, nil)
	defer wc.Close(nil)

	en.queues = make([]chan *laneItem, en.cfg.Threads)
	qcap := en.cfg.BatchSize * 4
	if qcap <= 0 {
		qcap = 512
	}
	for i := range en.queues {
		en.queues[i] = make(chan *laneItem, qcap)
	}

	wc.WgAdd(en.cfg.Threads)
	for i := 0; i < en.cfg.Threads; i++ {
		lane := i
		usync.SafeGo(func() {
			defer wc.WgDone()
			en.runWorker(wc, lane)
		}, func(interface{}) {
			wc.Close(errors.Errorf("worker %d panicked", lane))
		})
	}
	en.startProgressLog(wc)

	en.demux(wc, src)

	for _, q := range en.queues {
		close(q)
	}
	wc.WgWait()

	err := wc.Error()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	en.logger.Log(err, "migration done : sent(%d), filtered(%d), dropped(%d), err(%v)",
		en.Sent(), en.Filtered(), en.Dropped(), err)
	return err
}

func (en *Engine) openPools() error {
	opts := endpoint.Options{
		Db:             0,
		Pipe:           en.cfg.BatchSize,
		Stats:          en.cfg.Stats,
		AuthUser:       en.cfg.AuthUser,
		AuthPassword:   en.cfg.AuthPassword,
		TlsEnable:      en.cfg.TlsEnable,
		ConnectTimeout: en.cfg.ConnectTimeout,
	}
	if en.cfg.SlotMap == nil {
		opts.Host, opts.Port = en.cfg.TargetHost, en.cfg.TargetPort
		pool, err := endpoint.NewPool(opts, en.cfg.Threads)
		if err != nil {
			return err
		}
		en.pools = append(en.pools, pool)
		return nil
	}
	for _, node := range en.cfg.SlotMap.Masters() {
		opts.Host, opts.Port = node.Host, node.Port
		pool, err := endpoint.NewPool(opts, en.cfg.Threads)
		if err != nil {
			en.closePools()
			return err
		}
		pool.SetSlots(node.Ranges)
		en.pools = append(en.pools, pool)
		en.poolOf[node.Addr()] = pool
	}
	return nil
}

func (en *Engine) closePools() {
	for _, p := range en.pools {
		p.Close()
	}
}

func (en *Engine) startProgressLog(wc usync.WaitCloser) {
	usync.SafeGo(func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-wc.Done():
				return
			case <-ticker.C:
			}
			en.logger.Infof("migrate progress : sent(%d), filtered(%d), dropped(%d)",
				en.Sent(), en.Filtered(), en.Dropped())
		}
	}, nil)
}

// demux assigns each upstream event to a lane. It is the only reader of
// src; back-pressure is the bounded lane queue.
func (en *Engine) demux(wc usync.WaitCloser, src Source) {
	for !wc.IsClosed() {
		ev, err := src.Next(wc.Context())
		if err != nil {
			if err != io.EOF && wc.Context().Err() == nil {
				wc.Close(err)
			}
			return
		}
		en.dispatch(wc, ev)
	}
}

func (en *Engine) dispatch(wc usync.WaitCloser, ev *Event) {
	switch ev.Kind {
	case EventBeginRdb:
		en.logger.Infof("snapshot replay begins")
		return
	case EventEndRdb:
		en.broadcast(wc, ev)
		return
	}

	if !en.cfg.Filter.Pass(ev) {
		en.filteredRt.Inc()
		filterCounter.Inc(en.targetLabel())
		return
	}

	switch ev.Kind {
	case EventKeyValue:
		pool := en.routeKey(ev.Key)
		en.enqueue(wc, en.laneFor(ev.Key), &laneItem{ev: ev, pool: pool})
	case EventCommand, EventStreamCommand:
		en.dispatchCommand(wc, ev)
	}
}

func (en *Engine) dispatchCommand(wc usync.WaitCloser, ev *Event) {
	if en.cfg.SlotMap != nil {
		slot, keyed, err := cluster.SameSlot(ev.Argv)
		if err != nil {
			// a multi-key command spanning slots cannot be decomposed here
			en.logger.Warnf("drop cross-slot command : %s", util.BytesToString(ev.Argv[0]))
			en.droppedRt.Inc()
			dropCounter.Inc(en.targetLabel(), endpoint.FailureCrossSlot)
			endpoint.CountFailure(en.targetLabel(), endpoint.FailureCrossSlot)
			return
		}
		if !keyed {
			// keyless commands ride the first master's default lane
			en.enqueue(wc, en.cfg.DefaultLane, &laneItem{ev: ev, pool: en.pools[0]})
			return
		}
		owner := en.cfg.SlotMap.OwnerOfSlot(slot)
		keys, _ := cluster.CommandKeys(ev.Argv)
		en.enqueue(wc, en.laneFor(keys[0]), &laneItem{ev: ev, pool: en.poolOf[owner.Addr()]})
		return
	}

	keys, err := cluster.CommandKeys(ev.Argv)
	if err != nil {
		en.logger.Warnf("drop malformed command : %v", err)
		en.droppedRt.Inc()
		return
	}
	lane := en.cfg.DefaultLane
	if len(keys) > 0 {
		lane = en.laneFor(keys[0])
	}
	en.enqueue(wc, lane, &laneItem{ev: ev, pool: en.pools[0]})
}

func (en *Engine) routeKey(key []byte) *endpoint.Pool {
	if en.cfg.SlotMap == nil {
		return en.pools[0]
	}
	return en.poolOf[en.cfg.SlotMap.Owner(key).Addr()]
}

func (en *Engine) laneFor(key []byte) int {
	return int(util.FnvHash(key) % uint32(en.cfg.Threads))
}

func (en *Engine) enqueue(wc usync.WaitCloser, lane int, item *laneItem) {
	select {
	case en.queues[lane] <- item:
	case <-wc.Done():
	}
}

func (en *Engine) broadcast(wc usync.WaitCloser, ev *Event) {
	for lane := range en.queues {
		en.enqueue(wc, lane, &laneItem{ev: ev})
	}
}

func (en *Engine) targetLabel() string {
	if en.cfg.SlotMap != nil {
		return "cluster"
	}
	return fmt.Sprintf("%s:%d", en.cfg.TargetHost, en.cfg.TargetPort)
}

// runWorker drives lane i : it is the only goroutine touching that lane's
// endpoints. Pending batches are drained whenever the queue goes idle, at
// EndRdb, and at shutdown.
func (en *Engine) runWorker(wc usync.WaitCloser, lane int) {
	q := en.queues[lane]
	for {
		var item *laneItem
		var ok bool
		select {
		case item, ok = <-q:
		default:
			// idle : drain what is pipelined before blocking
			en.flushLane(wc, lane)
			select {
			case item, ok = <-q:
			case <-wc.Done():
				en.flushLane(wc, lane)
				return
			}
		}
		if !ok {
			en.flushLane(wc, lane)
			return
		}
		if wc.IsClosed() {
			return
		}
		en.handle(wc, lane, item)
	}
}

func (en *Engine) handle(wc usync.WaitCloser, lane int, item *laneItem) {
	switch item.ev.Kind {
	case EventEndRdb:
		en.flushLane(wc, lane)
	case EventKeyValue:
		en.handleKeyValue(wc, lane, item)
	case EventCommand, EventStreamCommand:
		argv := item.ev.Argv
		db := en.targetDb(item.ev.Db)
		en.ensureDb(wc, lane, item.pool, db)
		en.emit(wc, lane, item.pool, db, util.BytesToString(argv[0]), argv[1:])
	}
}

func (en *Engine) handleKeyValue(wc usync.WaitCloser, lane int, item *laneItem) {
	ev := item.ev
	db := en.targetDb(ev.Db)
	en.ensureDb(wc, lane, item.pool, db)
	if wc.IsClosed() {
		return
	}

	if en.cfg.Replace == ReplaceFallback {
		ep := item.pool.Lane(lane)
		reply, err := sendRestoreFallback(ep, ev)
		if err != nil {
			en.recoverLane(wc, lane, item.pool, db, err)
			return
		}
		if reply.IsError() {
			en.logger.Errorf("failure[respond] [%s]", reply.Str)
			ep.NoteFailure(endpoint.FailureRespond)
		} else {
			ep.NoteSuccess()
		}
		en.sentRt.Inc()
		sendCounter.Inc(en.targetLabel())
		return
	}

	if !en.cfg.Legacy && len(ev.Payload) >= streamBulkMin {
		// large dump payloads are streamed, not copied through the argv path
		pre, post := restoreStreamArgv(ev, en.cfg.Replace == ReplaceForce)
		en.emitFunc(wc, lane, item.pool, db, "RESTORE", func(force bool, ep *endpoint.Endpoint) error {
			return ep.BatchStream(force, "RESTORE", pre, util.NewByteChain(ev.Payload), post...)
		})
		return
	}

	cmd, args := restoreArgv(ev, en.cfg.Replace == ReplaceForce, en.cfg.Legacy)
	en.emit(wc, lane, item.pool, db, cmd, args)
}

func (en *Engine) targetDb(sourceDb int) int {
	if en.cfg.TargetDb >= 0 {
		return en.cfg.TargetDb
	}
	return sourceDb
}

// ensureDb pipelines a SELECT when the lane's endpoint sits on another
// database, caching the new one optimistically.
func (en *Engine) ensureDb(wc usync.WaitCloser, lane int, pool *endpoint.Pool, db int) {
	if db < 0 {
		return
	}
	ep := pool.Lane(lane)
	if ep.DB() == db {
		return
	}
	if err := ep.Select(en.cfg.FlushPerCommand, db); err != nil {
		// the rebuilt endpoint selects db during its handshake
		en.recoverLane(wc, lane, pool, db, err)
	}
}

// emit pipelines one command through the lane's endpoint, running the
// reconnect supervisor on socket-level failure.
func (en *Engine) emit(wc usync.WaitCloser, lane int, pool *endpoint.Pool, db int, cmd string, args [][]byte) {
	en.emitFunc(wc, lane, pool, db, cmd, func(force bool, ep *endpoint.Endpoint) error {
		return ep.Batch(force, cmd, args...)
	})
}

// emitFunc runs write against the lane's endpoint. On a socket-level fault
// the lane is rebuilt; with per-command flushes the failed command is
// unambiguous and is replayed up to migrate_retries times.
func (en *Engine) emitFunc(wc usync.WaitCloser, lane int, pool *endpoint.Pool, db int, label string, write func(force bool, ep *endpoint.Endpoint) error) {
	err := write(en.cfg.FlushPerCommand, pool.Lane(lane))
	if err == nil {
		en.countSend()
		return
	}
	if !isEndpointFault(err) {
		if errors.IsFatal(err) {
			wc.Close(err)
			return
		}
		en.logger.Errorf("send %s to %s : %v", label, pool.Addr(), err)
		return
	}

	if !en.cfg.FlushPerCommand || en.cfg.Retries == 0 {
		// batched-flush mode : the batch boundary is ambiguous, lost
		// commands are not replayed; rebuild the endpoint and move on
		if rerr := pool.Reopen(lane, db); rerr != nil {
			if errors.IsFatal(rerr) {
				wc.Close(rerr)
				return
			}
			en.logger.Errorf("reopen %s lane(%d) : %v", pool.Addr(), lane, rerr)
		}
		en.logger.Errorf("send %s to %s lane(%d) : %v", label, pool.Addr(), lane, err)
		return
	}

	rerr := util.RetryLinearJitter(wc.Context(), func() error {
		if err := pool.Reopen(lane, db); err != nil {
			return err
		}
		return write(true, pool.Lane(lane))
	}, en.cfg.Retries, time.Second, 0.3)
	if rerr == nil {
		en.countSend()
		return
	}
	if errors.IsFatal(rerr) {
		wc.Close(rerr)
		return
	}
	en.logger.Errorf("send %s to %s lane(%d) : %v", label, pool.Addr(), lane, rerr)
}

func (en *Engine) countSend() {
	en.sentRt.Inc()
	sendCounter.Inc(en.targetLabel())
}

// recoverLane rebuilds a lane endpoint after a failed synchronous exchange.
func (en *Engine) recoverLane(wc usync.WaitCloser, lane int, pool *endpoint.Pool, db int, err error) {
	if errors.IsFatal(err) {
		wc.Close(err)
		return
	}
	if !isEndpointFault(err) {
		en.logger.Errorf("lane(%d) %s : %v", lane, pool.Addr(), err)
		return
	}
	if rerr := pool.Reopen(lane, db); rerr != nil {
		if errors.IsFatal(rerr) {
			wc.Close(rerr)
			return
		}
		en.logger.Errorf("reopen %s lane(%d) : %v", pool.Addr(), lane, rerr)
	}
}

func (en *Engine) flushLane(wc usync.WaitCloser, lane int) {
	for _, pool := range en.pools {
		ep := pool.Lane(lane)
		if ep.Count() == 0 {
			continue
		}
		if err := ep.Flush(); err != nil {
			en.recoverLane(wc, lane, pool, ep.DB(), err)
		}
	}
}

func isEndpointFault(err error) bool {
	return errors.Is(err, errors.ErrIo) || errors.Is(err, errors.ErrProtocol) ||
		errors.Is(err, errors.ErrConnect)
}
