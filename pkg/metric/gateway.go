package metric

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"

	"github.com/mgtv-tech/redis-ferry/pkg/log"
	usync "github.com/mgtv-tech/redis-ferry/pkg/sync"
)

// StartPusher ships the default registry to a prometheus push gateway
// until ctx is done.
func StartPusher(ctx context.Context, pushGateway string, jobName string, group map[string]string, interval time.Duration) {
	pusher := push.New(pushGateway, jobName)
	pusher.Gatherer(prometheus.DefaultGatherer)
	for k, v := range group {
		pusher.Grouping(k, v)
	}

	usync.SafeGo(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			if err := pusher.Push(); err != nil {
				log.Errorf("push metric to %s error : %v", pushGateway, err)
			}
		}
	}, nil)
}

type InfluxOptions struct {
	Url    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// StartInfluxGateway periodically snapshots the default registry into
// influxdb measurements, one point per labelled series.
func StartInfluxGateway(ctx context.Context, opts InfluxOptions, interval time.Duration) {
	client := influxdb2.NewClient(opts.Url, opts.Token)
	writeApi := client.WriteAPIBlocking(opts.Org, opts.Bucket)

	usync.SafeGo(func() {
		defer client.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			families, err := prometheus.DefaultGatherer.Gather()
			if err != nil {
				log.Errorf("gather metric error : %v", err)
				continue
			}
			points := snapshot(families)
			if len(points) == 0 {
				continue
			}
			if err := writeApi.WritePoint(ctx, points...); err != nil {
				log.Errorf("write metric to %s error : %v", opts.Url, err)
			}
		}
	}, nil)
}

func snapshot(families []*dto.MetricFamily) []*write.Point {
	now := time.Now()
	points := make([]*write.Point, 0, len(families))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			tags := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				tags[lp.GetName()] = lp.GetValue()
			}
			fields := map[string]interface{}{}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				fields["value"] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				fields["value"] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				fields["count"] = float64(m.GetHistogram().GetSampleCount())
				fields["sum"] = m.GetHistogram().GetSampleSum()
			default:
				continue
			}
			points = append(points, write.NewPoint(mf.GetName(), tags, fields, now))
		}
	}
	return points
}
