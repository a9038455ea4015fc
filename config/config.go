// Package config loads the controller daemon's configuration from a
// JSON-with-comments file.
package config

import (
	"time"

	jsconf "github.com/funkygao/jsconf"
)

// Config holds the controller daemon's settings.
type Config struct {
	ZkAddrs        string
	ZkTimeout      time.Duration
	ControllerID   int32
	LogLevel       string
	MetricsFlushMs int
}

// Default returns sane defaults, used by tests and by a daemon run without
// a config file.
func Default() *Config {
	return &Config{
		ZkAddrs:        "localhost:2181",
		ZkTimeout:      time.Minute,
		ControllerID:   0,
		LogLevel:       "info",
		MetricsFlushMs: 10000,
	}
}

// Load reads fn, a jsconf file, and overlays it onto Default().
func Load(fn string) (*Config, error) {
	cf, err := jsconf.Load(fn)
	if err != nil {
		return nil, err
	}

	c := Default()
	c.ZkAddrs = cf.String("zk_addrs", c.ZkAddrs)
	c.LogLevel = cf.String("loglevel", c.LogLevel)
	c.ControllerID = int32(cf.Int("controller_id", int(c.ControllerID)))
	c.MetricsFlushMs = cf.Int("metrics_flush_ms", c.MetricsFlushMs)
	if timeoutMs := cf.Int("zk_timeout_ms", 0); timeoutMs > 0 {
		c.ZkTimeout = time.Duration(timeoutMs) * time.Millisecond
	}

	return c, nil
}
