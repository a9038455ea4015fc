// Package memstore is an in-process metastore.Store used by controller
// tests that do not want a live ZooKeeper ensemble. It
// reproduces the same version-fencing and child-watch semantics as
// metastore/zkstore without a network round trip.
package memstore

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/funkygao/partition-controller/metastore"
)

type node struct {
	data    []byte
	version int32
}

// Store is a mutex-guarded, map-backed metastore.Store.
type Store struct {
	mu    sync.Mutex
	nodes map[string]*node

	watchers map[string][]metastore.ChildListener
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		nodes:    make(map[string]*node),
		watchers: make(map[string][]metastore.ChildListener),
	}
}

func (this *Store) GetChildren(ctx context.Context, p string) ([]string, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	return this.childrenLocked(p), nil
}

func (this *Store) childrenLocked(p string) []string {
	p = strings.TrimSuffix(p, "/")
	seen := make(map[string]bool)
	var children []string
	for candidate := range this.nodes {
		if path.Dir(candidate) != p {
			continue
		}
		name := path.Base(candidate)
		if !seen[name] {
			seen[name] = true
			children = append(children, name)
		}
	}
	return children
}

func (this *Store) ReadData(ctx context.Context, p string) ([]byte, int32, bool, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	n, ok := this.nodes[p]
	if !ok {
		return nil, 0, false, nil
	}
	data := make([]byte, len(n.data))
	copy(data, n.data)
	return data, n.version, true, nil
}

func (this *Store) CreatePersistent(ctx context.Context, p string, data []byte) error {
	this.mu.Lock()
	if _, exists := this.nodes[p]; exists {
		this.mu.Unlock()
		return metastore.ErrNodeExists
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	this.nodes[p] = &node{data: stored, version: 0}
	this.mu.Unlock()

	this.notify(path.Dir(p))
	return nil
}

func (this *Store) ConditionalUpdate(ctx context.Context, p string, data []byte, expectedVersion int32) (int32, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	n, ok := this.nodes[p]
	if !ok {
		return 0, metastore.ErrNoNode
	}
	if n.version != expectedVersion {
		return 0, metastore.ErrVersionMismatch
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	n.data = stored
	n.version++
	return n.version, nil
}

func (this *Store) SubscribeChildChanges(p string, listener metastore.ChildListener) (cancel func()) {
	this.mu.Lock()
	this.watchers[p] = append(this.watchers[p], listener)
	index := len(this.watchers[p]) - 1
	this.mu.Unlock()

	cancelled := false
	return func() {
		this.mu.Lock()
		defer this.mu.Unlock()
		if cancelled {
			return
		}
		cancelled = true
		// Replace with a no-op rather than reslicing, so indices recorded by
		// other still-live subscriptions on the same path stay valid.
		this.watchers[p][index] = func(string, []string) {}
	}
}

// notify fires any listeners registered on p synchronously, on the caller's
// goroutine, mirroring the at-least-once delivery contract: a test writing
// through Store observes listener side effects before the write call
// returns.
func (this *Store) notify(p string) {
	this.mu.Lock()
	listeners := append([]metastore.ChildListener(nil), this.watchers[p]...)
	children := this.childrenLocked(p)
	this.mu.Unlock()

	for _, l := range listeners {
		l(p, children)
	}
}

// Seed installs data at p directly, bypassing CreatePersistent's
// already-exists check, for test fixtures that need to pre-populate
// metadata before the controller starts up.
func (this *Store) Seed(p string, data []byte) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.nodes[p] = &node{data: data, version: 0}
}

// NotifyChildren re-fires watchers registered on p. Tests use this to
// simulate an external topic-creation event once fixtures are seeded.
func (this *Store) NotifyChildren(p string) {
	this.notify(p)
}
