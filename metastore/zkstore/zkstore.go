// Package zkstore implements metastore.Store against a real ZooKeeper
// ensemble: connect-with-backoff, "parent may not exist" tolerance on
// Children, and conditional update by znode version.
package zkstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	log "github.com/funkygao/log4go"
	"github.com/funkygao/partition-controller/metastore"
	"github.com/samuel/go-zookeeper/zk"
)

// Config holds the ZooKeeper connection settings.
type Config struct {
	Addrs        string
	Timeout      time.Duration
	PanicOnError bool
}

// DefaultConfig returns sane defaults for addrs.
func DefaultConfig(addrs string) *Config {
	return &Config{
		Addrs:        addrs,
		Timeout:      time.Minute,
		PanicOnError: false,
	}
}

// Store is a metastore.Store backed by a single ZooKeeper connection.
type Store struct {
	conf *Config

	mu   sync.Mutex
	conn *zk.Conn
	evt  <-chan zk.Event
}

// New returns an unconnected Store; it dials lazily on first use.
func New(conf *Config) *Store {
	return &Store{conf: conf}
}

func (this *Store) connectIfNecessary() error {
	this.mu.Lock()
	defer this.mu.Unlock()
	if this.conn != nil {
		return nil
	}

	var err error
	addrs := strings.Split(this.conf.Addrs, ",")
	for i := 1; i <= 3; i++ {
		log.Debug("zkstore #%d try connecting %s", i, this.conf.Addrs)
		this.conn, this.evt, err = zk.Connect(addrs, this.conf.Timeout)
		if err == nil {
			log.Debug("zkstore connected with %s after %d retries", this.conf.Addrs, i-1)
			return nil
		}

		time.Sleep(time.Millisecond * 200 * time.Duration(i))
	}

	if this.conf.PanicOnError {
		panic(this.conf.Addrs + ": " + err.Error())
	}
	return fmt.Errorf("%w: %s: %s", metastore.ErrNoNode, this.conf.Addrs, err)
}

// Close closes the underlying connection.
func (this *Store) Close() {
	this.mu.Lock()
	defer this.mu.Unlock()
	if this.conn != nil {
		this.conn.Close()
	}
}

func (this *Store) GetChildren(ctx context.Context, path string) ([]string, error) {
	if err := this.connectIfNecessary(); err != nil {
		return nil, err
	}

	children, _, err := this.conn.Children(path)
	if err == zk.ErrNoNode {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", metastore.ErrNoNode, path, err)
	}
	return children, nil
}

func (this *Store) ReadData(ctx context.Context, path string) ([]byte, int32, bool, error) {
	if err := this.connectIfNecessary(); err != nil {
		return nil, 0, false, err
	}

	data, stat, err := this.conn.Get(path)
	if err == zk.ErrNoNode {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: %s: %s", metastore.ErrNoNode, path, err)
	}
	return data, stat.Version, true, nil
}

func (this *Store) CreatePersistent(ctx context.Context, p string, data []byte) error {
	if err := this.connectIfNecessary(); err != nil {
		return err
	}

	if err := this.mkdirRecursive(path.Dir(p)); err != nil {
		return err
	}

	acl := zk.WorldACL(zk.PermAll)
	_, err := this.conn.Create(p, data, 0, acl)
	if err == zk.ErrNodeExists {
		return metastore.ErrNodeExists
	}
	return err
}

// mkdirRecursive creates node and every missing ancestor as an empty
// persistent znode: a create's target may be several levels below any
// path this store has created before (e.g. a partition's state znode).
func (this *Store) mkdirRecursive(node string) error {
	if node == "/" || node == "" {
		return nil
	}

	parent := path.Dir(node)
	if parent != node {
		if err := this.mkdirRecursive(parent); err != nil {
			return err
		}
	}

	_, err := this.conn.Create(node, nil, 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return err
	}
	return nil
}

func (this *Store) ConditionalUpdate(ctx context.Context, path string, data []byte, expectedVersion int32) (int32, error) {
	if err := this.connectIfNecessary(); err != nil {
		return 0, err
	}

	stat, err := this.conn.Set(path, data, expectedVersion)
	if err == zk.ErrBadVersion {
		return 0, metastore.ErrVersionMismatch
	}
	if err != nil {
		return 0, err
	}
	return stat.Version, nil
}

func (this *Store) SubscribeChildChanges(path string, listener metastore.ChildListener) (cancel func()) {
	stopCh := make(chan struct{})

	go func() {
		for {
			select {
			case <-stopCh:
				return
			default:
			}

			if err := this.connectIfNecessary(); err != nil {
				log.Error("zkstore watch %s: %s", path, err)
				time.Sleep(time.Second)
				continue
			}

			_, _, events, err := this.conn.ChildrenW(path)
			if err != nil {
				log.Error("zkstore watch %s: %s", path, err)
				time.Sleep(time.Second)
				continue
			}

			select {
			case <-stopCh:
				return
			case evt := <-events:
				if evt.Err != nil {
					log.Error("zkstore watch %s: %s", path, evt.Err)
					continue
				}
				// The event carries no payload; re-read so the listener
				// sees the post-change child set.
				children, _, err := this.conn.Children(path)
				if err != nil {
					log.Error("zkstore watch %s: %s", path, err)
					continue
				}
				listener(path, children)
			}
		}
	}()

	return func() { close(stopCh) }
}
