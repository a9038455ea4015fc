package config

import (
	"os"
	"testing"
	"time"

	"github.com/funkygao/assert"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "localhost:2181", c.ZkAddrs)
	assert.Equal(t, time.Minute, c.ZkTimeout)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	f, err := os.CreateTemp("", "controllerd-*.cf")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())

	_, err = f.WriteString(`{
		"zk_addrs": "zk1:2181,zk2:2181",
		"controller_id": 3,
		"loglevel": "debug",
		"zk_timeout_ms": 5000
	}`)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	c, err := Load(f.Name())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, "zk1:2181,zk2:2181", c.ZkAddrs)
	assert.Equal(t, int32(3), c.ControllerID)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 5*time.Second, c.ZkTimeout)
	assert.Equal(t, 10000, c.MetricsFlushMs)
}
