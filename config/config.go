package config

import (
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mgtv-tech/redis-ferry/pkg/elect"
	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/log"
	"github.com/mgtv-tech/redis-ferry/pkg/metric"
)

var (
	cfg *Config
)

func init() {
	cfg = &Config{}
}

func Get() *Config {
	return cfg
}

type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Target  TargetConfig  `yaml:"target"`
	Migrate MigrateConfig `yaml:"migrate"`
	Filter  FilterConfig  `yaml:"filter"`
	Metric  MetricConfig  `yaml:"metric"`
	Log     *log.Options  `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	// Lock guards the target : at most one ferry instance replays into it.
	Lock *elect.Options `yaml:"lock"`
}

func InitConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}
	// -1 keeps the source db; yaml overrides when target_db is set
	c := &Config{Migrate: MigrateConfig{TargetDb: -1}}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Errorf("%w : %v", errors.ErrConfig, err)
	}
	if err := c.fix(); err != nil {
		return err
	}
	cfg = c
	return nil
}

func (c *Config) fix() error {
	if c.Log == nil {
		c.Log = &log.Options{StdOut: true}
	}
	for _, fix := range []interface{ fix() error }{
		&c.Source, &c.Target, &c.Migrate, &c.Metric, &c.Server,
	} {
		if err := fix.fix(); err != nil {
			return err
		}
	}
	if c.Source.RdbPath == "" && c.Source.Uri == "" {
		return errors.Errorf("%w : no source configured", errors.ErrConfig)
	}
	return nil
}

// SourceConfig selects the upstream : an RDB snapshot file, or a live
// server walked with SCAN+DUMP.
type SourceConfig struct {
	RdbPath   string `yaml:"rdb"`
	Uri       string `yaml:"uri"`
	Db        int    `yaml:"db"`
	ScanCount int64  `yaml:"scan_count"`
}

func (sc *SourceConfig) fix() error {
	if sc.ScanCount <= 0 {
		sc.ScanCount = 512
	}
	return nil
}

// TargetConfig names the replay destination. Uri points at a standalone
// server; cluster mode is entered through a nodes.conf-style file
// (ClusterConf) or by fetching CLUSTER NODES from Uri (ClusterFromNode).
type TargetConfig struct {
	Uri             string `yaml:"uri"`
	ClusterConf     string `yaml:"cluster_conf"`
	ClusterFromNode bool   `yaml:"cluster_from_node"`
	// StrictSlots rejects descriptions with migrating/importing slots.
	StrictSlots bool `yaml:"strict_slots"`

	host      string
	port      int
	user      string
	password  string
	tlsEnable bool
}

func (tc *TargetConfig) fix() error {
	if tc.Uri == "" && tc.ClusterConf == "" {
		return errors.Errorf("%w : no migration target", errors.ErrConfig)
	}
	if tc.Uri != "" {
		host, port, user, password, tlsEnable, err := ParseRedisUri(tc.Uri)
		if err != nil {
			return err
		}
		tc.host, tc.port = host, port
		tc.user, tc.password = user, password
		tc.tlsEnable = tlsEnable
	}
	return nil
}

func (tc *TargetConfig) Host() string     { return tc.host }
func (tc *TargetConfig) Port() int        { return tc.port }
func (tc *TargetConfig) User() string     { return tc.user }
func (tc *TargetConfig) Password() string { return tc.password }
func (tc *TargetConfig) TlsEnable() bool  { return tc.tlsEnable }

func (tc *TargetConfig) IsCluster() bool {
	return tc.ClusterConf != "" || tc.ClusterFromNode
}

// ParseRedisUri understands redis://[user[:password]@]host:port and the TLS
// scheme rediss://.
func ParseRedisUri(uri string) (host string, port int, user, password string, tlsEnable bool, err error) {
	u, perr := url.Parse(uri)
	if perr != nil {
		err = errors.Errorf("%w : bad redis uri %q : %v", errors.ErrConfig, uri, perr)
		return
	}
	switch u.Scheme {
	case "redis":
	case "rediss":
		tlsEnable = true
	default:
		err = errors.Errorf("%w : unsupported scheme %q", errors.ErrConfig, u.Scheme)
		return
	}
	host = u.Hostname()
	if host == "" {
		err = errors.Errorf("%w : no host in %q", errors.ErrConfig, uri)
		return
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	port, perr = strconv.Atoi(portStr)
	if perr != nil {
		err = errors.Errorf("%w : bad port in %q", errors.ErrConfig, uri)
		return
	}
	if u.User != nil {
		user = u.User.Username()
		password, _ = u.User.Password()
	}
	return
}

// MigrateConfig carries the engine knobs. The yaml keys are fixed for
// ecosystem compatibility.
type MigrateConfig struct {
	BatchSize         int      `yaml:"migrate_batch_size"`
	Threads           int      `yaml:"migrate_threads"`
	Flush             string   `yaml:"migrate_flush"` // yes : per command, no : per 64 KiB
	Retries           int      `yaml:"migrate_retries"`
	AuthUser          string   `yaml:"auth_user"`
	AuthPassword      string   `yaml:"auth_password"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
	MetricGateway     string   `yaml:"metric_gateway"` // none | influxdb | prometheus

	Replace  string `yaml:"replace"` // no | yes | fallback
	Legacy   bool   `yaml:"legacy"`
	TargetDb int    `yaml:"target_db"`
	Stats    bool   `yaml:"stats"`
}

func (mc *MigrateConfig) fix() error {
	if mc.BatchSize == 0 {
		mc.BatchSize = 128
	}
	if mc.Threads <= 0 {
		mc.Threads = runtime.NumCPU()
	}
	switch strings.ToLower(mc.Flush) {
	case "":
		mc.Flush = "yes"
	case "yes", "no":
	default:
		return errors.Errorf("%w : migrate_flush must be yes or no", errors.ErrConfig)
	}
	if mc.Retries > 0 && !mc.FlushPerCommand() {
		return errors.Errorf("%w : migrate_retries is only valid with migrate_flush=yes", errors.ErrConfig)
	}
	if mc.ConnectionTimeout <= 0 {
		mc.ConnectionTimeout = Duration(3 * time.Second)
	}
	switch mc.MetricGateway {
	case "", "none", "influxdb", "prometheus":
	default:
		return errors.Errorf("%w : unknown metric_gateway %q", errors.ErrConfig, mc.MetricGateway)
	}
	return nil
}

func (mc *MigrateConfig) FlushPerCommand() bool {
	return strings.EqualFold(mc.Flush, "yes")
}

type FilterConfig struct {
	Dbs         []int    `yaml:"dbs"`
	Types       []string `yaml:"types"`
	KeyPatterns []string `yaml:"key_patterns"`
}

type MetricConfig struct {
	PushGateway string               `yaml:"push_gateway"`
	Influx      metric.InfluxOptions `yaml:"influxdb"`
	Interval    Duration             `yaml:"interval"`
	Job         string               `yaml:"job"`
}

func (mc *MetricConfig) fix() error {
	if mc.Interval <= 0 {
		mc.Interval = Duration(10 * time.Second)
	}
	if mc.Job == "" {
		mc.Job = "redis-ferry"
	}
	return nil
}

type ServerConfig struct {
	HttpListen          string   `yaml:"http_listen"`
	GracefulStopTimeout Duration `yaml:"graceful_stop_timeout"`
}

func (sc *ServerConfig) fix() error {
	if sc.GracefulStopTimeout < Duration(time.Second) {
		sc.GracefulStopTimeout = Duration(5 * time.Second)
	}
	return nil
}
