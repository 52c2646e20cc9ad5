package migrate

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/log"
)

// ScanOptions configure a live source server walk.
type ScanOptions struct {
	Addr        string
	Username    string
	Password    string
	TlsEnable   bool
	Db          int
	Count       int64 // SCAN hint
	DialTimeout time.Duration
}

// ScanSource walks a live server with SCAN and emits one KeyValue event per
// key, carrying the DUMP payload and remaining ttl. It is the online
// counterpart of an RDB snapshot : same engine, same replay semantics.
type ScanSource struct {
	opts   ScanOptions
	cli    *goredis.Client
	logger log.Logger

	cursor  uint64
	started bool
	ended   bool
	buf     []*Event
}

func NewScanSource(opts ScanOptions) *ScanSource {
	if opts.Count <= 0 {
		opts.Count = 512
	}
	var tlsCfg *tls.Config
	if opts.TlsEnable {
		tlsCfg = &tls.Config{InsecureSkipVerify: true}
	}
	cli := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DB:          opts.Db,
		DialTimeout: opts.DialTimeout,
		TLSConfig:   tlsCfg,
	})
	return &ScanSource{
		opts:   opts,
		cli:    cli,
		logger: log.WithLogger("[scan source] "),
	}
}

func (s *ScanSource) Next(ctx context.Context) (*Event, error) {
	if !s.started {
		s.started = true
		return &Event{Kind: EventBeginRdb}, nil
	}
	for len(s.buf) == 0 {
		if s.ended {
			s.cli.Close()
			return nil, io.EOF
		}
		if err := s.fill(ctx); err != nil {
			s.cli.Close()
			return nil, err
		}
	}
	ev := s.buf[0]
	s.buf = s.buf[1:]
	return ev, nil
}

func (s *ScanSource) fill(ctx context.Context) error {
	keys, cursor, err := s.cli.Scan(ctx, s.cursor, "", s.opts.Count).Result()
	if err != nil {
		return errors.Errorf("%w : scan %s : %v", errors.ErrIo, s.opts.Addr, err)
	}
	s.cursor = cursor
	if cursor == 0 {
		s.ended = true
		defer func() {
			s.buf = append(s.buf, &Event{Kind: EventEndRdb})
		}()
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := s.cli.Pipeline()
	dumps := make([]*goredis.StringCmd, len(keys))
	ttls := make([]*goredis.DurationCmd, len(keys))
	types := make([]*goredis.StatusCmd, len(keys))
	for i, key := range keys {
		dumps[i] = pipe.Dump(ctx, key)
		ttls[i] = pipe.PTTL(ctx, key)
		types[i] = pipe.Type(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return errors.Errorf("%w : dump pipeline %s : %v", errors.ErrIo, s.opts.Addr, err)
	}

	for i, key := range keys {
		payload, err := dumps[i].Result()
		if err != nil {
			// the key expired or was deleted between SCAN and DUMP
			if err == goredis.Nil {
				continue
			}
			s.logger.Warnf("dump %s : %v", key, err)
			continue
		}
		var ttlMs int64
		if ttl, err := ttls[i].Result(); err == nil && ttl > 0 {
			ttlMs = ttl.Milliseconds()
		}
		typ, _ := types[i].Result()
		s.buf = append(s.buf, &Event{
			Kind:    EventKeyValue,
			Db:      s.opts.Db,
			Key:     []byte(key),
			Type:    typ,
			TtlMs:   ttlMs,
			Payload: []byte(payload),
		})
	}
	return nil
}
