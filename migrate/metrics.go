package migrate

import (
	"github.com/mgtv-tech/redis-ferry/pkg/metric"
)

var (
	sendCounter = metric.NewCounterVec(metric.CounterVecOpts{
		Namespace: "redisferry",
		Subsystem: "migrate",
		Name:      "send_cmd",
		Labels:    []string{"target"},
	})
	filterCounter = metric.NewCounterVec(metric.CounterVecOpts{
		Namespace: "redisferry",
		Subsystem: "migrate",
		Name:      "filter_cmd",
		Labels:    []string{"target"},
	})
	dropCounter = metric.NewCounterVec(metric.CounterVecOpts{
		Namespace: "redisferry",
		Subsystem: "migrate",
		Name:      "drop_cmd",
		Labels:    []string{"target", "reason"},
	})
)
