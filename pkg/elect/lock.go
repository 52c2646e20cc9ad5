// Package elect guards a migration target : at most one ferry instance may
// replay into a target at a time. Backed by an etcd session lock.
package elect

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/log"
)

type Options struct {
	Endpoints []string `yaml:"endpoints"`
	Ttl       int      `yaml:"ttl"` // session ttl, seconds
	Prefix    string   `yaml:"prefix"`
}

func (o *Options) Fix() {
	if o.Ttl <= 0 {
		o.Ttl = 10
	}
	if o.Prefix == "" {
		o.Prefix = "/redis-ferry/lock/"
	}
}

// Lock is a held target lock. Release it when the run finishes; losing the
// etcd session releases it implicitly.
type Lock struct {
	cli    *clientv3.Client
	sess   *concurrency.Session
	mutex  *concurrency.Mutex
	logger log.Logger
}

// Acquire blocks until the lock for target is held or ctx is done.
func Acquire(ctx context.Context, opts Options, target string) (*Lock, error) {
	opts.Fix()
	cli, err := clientv3.New(clientv3.Config{
		Endpoints: opts.Endpoints,
		Context:   ctx,
	})
	if err != nil {
		return nil, errors.Errorf("%w : etcd client : %v", errors.ErrConfig, err)
	}
	sess, err := concurrency.NewSession(cli, concurrency.WithTTL(opts.Ttl))
	if err != nil {
		cli.Close()
		return nil, errors.WithStack(err)
	}
	mutex := concurrency.NewMutex(sess, opts.Prefix+target)
	if err := mutex.Lock(ctx); err != nil {
		sess.Close()
		cli.Close()
		return nil, errors.WithStack(err)
	}
	l := &Lock{
		cli:    cli,
		sess:   sess,
		mutex:  mutex,
		logger: log.WithLogger("[elect] "),
	}
	l.logger.Infof("target lock acquired : %s", target)
	return l, nil
}

// Done is closed when the backing session expires; the run should stop,
// another instance may already be replaying.
func (l *Lock) Done() <-chan struct{} {
	return l.sess.Done()
}

func (l *Lock) Release(ctx context.Context) error {
	err := l.mutex.Unlock(ctx)
	err = errors.Join(err, l.sess.Close())
	return errors.Join(err, l.cli.Close())
}
