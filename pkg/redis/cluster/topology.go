package cluster

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
)

type TopologyOptions struct {
	Addr        string
	Username    string
	Password    string
	TlsEnable   bool
	DialTimeout time.Duration
}

// FetchSlotMap asks a live node for CLUSTER NODES (the nodes.conf line
// format) and builds the slot map from it.
func FetchSlotMap(ctx context.Context, opts TopologyOptions, strict bool) (*SlotMap, error) {
	var tlsCfg *tls.Config
	if opts.TlsEnable {
		tlsCfg = &tls.Config{InsecureSkipVerify: true}
	}
	cli := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DialTimeout: opts.DialTimeout,
		TLSConfig:   tlsCfg,
	})
	defer cli.Close()

	desc, err := cli.ClusterNodes(ctx).Result()
	if err != nil {
		return nil, errors.Errorf("%w : cluster nodes from %s : %v", errors.ErrConnect, opts.Addr, err)
	}
	nodes, err := ParseNodes(strings.NewReader(desc), strict)
	if err != nil {
		return nil, err
	}
	return BuildSlotMap(nodes)
}
