package endpoint

import (
	"fmt"

	"github.com/mgtv-tech/redis-ferry/pkg/log"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/cluster"
	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

// Pool holds the parallel endpoints of one logical target (a standalone
// server or one cluster master). A work item maps to a lane by key hash, so
// one key always rides one lane and per-key ordering holds for a whole run.
//
// The pool is the single point of endpoint lookup : callers fetch the lane's
// endpoint per dispatch and never hold a reference across Reopen.
type Pool struct {
	opts   Options
	lanes  []*Endpoint
	logger log.Logger
}

func NewPool(opts Options, lanes int) (*Pool, error) {
	if lanes <= 0 {
		lanes = 1
	}
	p := &Pool{
		opts:   opts,
		lanes:  make([]*Endpoint, lanes),
		logger: log.WithLogger(fmt.Sprintf("[pool %s] ", opts.Addr())),
	}
	var shared *Stats
	if opts.Stats {
		shared = &Stats{}
	}
	for i := range p.lanes {
		e, err := open(opts, shared)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.lanes[i] = e
	}
	return p, nil
}

func (p *Pool) Addr() string {
	return p.opts.Addr()
}

func (p *Pool) Lanes() int {
	return len(p.lanes)
}

func (p *Pool) Lane(i int) *Endpoint {
	return p.lanes[i]
}

// LaneFor shards a key onto a lane deterministically.
func (p *Pool) LaneFor(key []byte) int {
	return int(util.FnvHash(key) % uint32(len(p.lanes)))
}

// Reopen rebuilds the lane's endpoint in place, preserving lane identity,
// pipe budget, stats and slot assignment.
func (p *Pool) Reopen(i int, db int) error {
	fresh, err := Reopen(p.lanes[i], db)
	if err != nil {
		return err
	}
	p.lanes[i] = fresh
	return nil
}

func (p *Pool) SetSlots(slots []cluster.SlotRange) {
	for _, e := range p.lanes {
		if e != nil {
			e.SetSlots(slots)
		}
	}
}

// Stats returns the shared per-target stats, nil when disabled.
func (p *Pool) Stats() *Stats {
	for _, e := range p.lanes {
		if e != nil {
			return e.Stats()
		}
	}
	return nil
}

// FlushAll drains every lane; the first failure wins but every lane is
// attempted.
func (p *Pool) FlushAll() error {
	var first error
	for _, e := range p.lanes {
		if e == nil {
			continue
		}
		if err := e.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *Pool) Close() {
	for _, e := range p.lanes {
		if e != nil {
			e.Close()
		}
	}
}
