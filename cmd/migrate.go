package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mgtv-tech/redis-ferry/config"
	"github.com/mgtv-tech/redis-ferry/migrate"
	"github.com/mgtv-tech/redis-ferry/pkg/elect"
	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/log"
	"github.com/mgtv-tech/redis-ferry/pkg/metric"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/cluster"
	usync "github.com/mgtv-tech/redis-ferry/pkg/sync"
)

// MigrateCmd wires the configured source, slot map and engine together and
// replays until the source drains or a signal stops it.
type MigrateCmd struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger log.Logger
	engine *migrate.Engine
}

func NewMigrateCmd() *MigrateCmd {
	ctx, cancel := context.WithCancel(context.Background())
	return &MigrateCmd{
		ctx:    ctx,
		cancel: cancel,
		logger: log.WithLogger("[migrate cmd] "),
	}
}

func (mc *MigrateCmd) Name() string {
	return "ferry.migrate"
}

func (mc *MigrateCmd) Stop() error {
	mc.cancel()
	return nil
}

func (mc *MigrateCmd) Run() error {
	c := config.Get()

	mc.startMetricGateway(c)

	if c.Lock != nil {
		lock, err := elect.Acquire(mc.ctx, *c.Lock, c.Target.Uri)
		if err != nil {
			return err
		}
		defer lock.Release(context.Background())
		usync.SafeGo(func() {
			select {
			case <-lock.Done():
				mc.logger.Errorf("target lock lost, stopping")
				mc.cancel()
			case <-mc.ctx.Done():
			}
		}, nil)
	}

	slotMap, err := mc.buildSlotMap(c)
	if err != nil {
		return err
	}

	filter, err := migrate.NewFilter(c.Filter.Dbs, c.Filter.Types, c.Filter.KeyPatterns)
	if err != nil {
		return err
	}

	replace, ok := migrate.ParseReplaceMode(c.Migrate.Replace)
	if !ok {
		return errors.Errorf("%w : unknown replace mode %q", errors.ErrConfig, c.Migrate.Replace)
	}

	engineCfg := migrate.Config{
		TargetHost:      c.Target.Host(),
		TargetPort:      c.Target.Port(),
		SlotMap:         slotMap,
		Threads:         c.Migrate.Threads,
		BatchSize:       c.Migrate.BatchSize,
		FlushPerCommand: c.Migrate.FlushPerCommand(),
		Retries:         c.Migrate.Retries,
		AuthUser:        authUser(c),
		AuthPassword:    authPassword(c),
		TlsEnable:       c.Target.TlsEnable(),
		ConnectTimeout:  c.Migrate.ConnectionTimeout.Duration(),
		Replace:         replace,
		Legacy:          c.Migrate.Legacy,
		TargetDb:        c.Migrate.TargetDb,
		Stats:           c.Migrate.Stats,
		Filter:          filter,
	}
	mc.engine, err = migrate.NewEngine(engineCfg)
	if err != nil {
		return err
	}

	if c.Server.HttpListen != "" {
		mc.startHttp(c.Server.HttpListen)
	}

	src, err := mc.buildSource(c)
	if err != nil {
		return err
	}

	return mc.engine.Run(mc.ctx, src)
}

// credentials configured under migrate win; the target uri is the fallback
func authUser(c *config.Config) string {
	if c.Migrate.AuthUser != "" {
		return c.Migrate.AuthUser
	}
	return c.Target.User()
}

func authPassword(c *config.Config) string {
	if c.Migrate.AuthPassword != "" {
		return c.Migrate.AuthPassword
	}
	return c.Target.Password()
}

func (mc *MigrateCmd) buildSlotMap(c *config.Config) (*cluster.SlotMap, error) {
	if !c.Target.IsCluster() {
		return nil, nil
	}
	if c.Target.ClusterConf != "" {
		file, err := os.Open(c.Target.ClusterConf)
		if err != nil {
			return nil, errors.Errorf("%w : open %s : %v", errors.ErrConfig, c.Target.ClusterConf, err)
		}
		defer file.Close()
		nodes, err := cluster.ParseNodes(file, c.Target.StrictSlots)
		if err != nil {
			return nil, err
		}
		return cluster.BuildSlotMap(nodes)
	}
	return cluster.FetchSlotMap(mc.ctx, cluster.TopologyOptions{
		Addr:        c.Target.Host() + ":" + strconv.Itoa(c.Target.Port()),
		Username:    authUser(c),
		Password:    authPassword(c),
		TlsEnable:   c.Target.TlsEnable(),
		DialTimeout: c.Migrate.ConnectionTimeout.Duration(),
	}, c.Target.StrictSlots)
}

func (mc *MigrateCmd) buildSource(c *config.Config) (migrate.Source, error) {
	if c.Source.RdbPath != "" {
		return migrate.NewRdbFileSource(c.Source.RdbPath), nil
	}
	host, port, user, password, tlsEnable, err := config.ParseRedisUri(c.Source.Uri)
	if err != nil {
		return nil, err
	}
	return migrate.NewScanSource(migrate.ScanOptions{
		Addr:        host + ":" + strconv.Itoa(port),
		Username:    user,
		Password:    password,
		TlsEnable:   tlsEnable,
		Db:          c.Source.Db,
		Count:       c.Source.ScanCount,
		DialTimeout: c.Migrate.ConnectionTimeout.Duration(),
	}), nil
}

func (mc *MigrateCmd) startMetricGateway(c *config.Config) {
	switch strings.ToLower(c.Migrate.MetricGateway) {
	case "influxdb":
		metric.StartInfluxGateway(mc.ctx, c.Metric.Influx, c.Metric.Interval.Duration())
	case "prometheus":
		metric.StartPusher(mc.ctx, c.Metric.PushGateway, c.Metric.Job, nil, c.Metric.Interval.Duration())
	}
}

func (mc *MigrateCmd) startHttp(listen string) {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	router.HandlerFunc(http.MethodGet, "/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{
			"sent":     mc.engine.Sent(),
			"filtered": mc.engine.Filtered(),
			"dropped":  mc.engine.Dropped(),
		})
	})
	server := &http.Server{Addr: listen, Handler: router}
	usync.SafeGo(func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mc.logger.Errorf("http server : %v", err)
		}
	}, nil)
	usync.SafeGo(func() {
		<-mc.ctx.Done()
		server.Close()
	}, nil)
}
