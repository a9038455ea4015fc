// Package metastore abstracts the hierarchical, versioned key-value store
// that backs cluster metadata: topic lists, replica assignments, and
// leader/ISR records. It is modeled directly on ZooKeeper's operation set
// (children, versioned reads, conditional writes, child-change watches),
// but the controller core only ever depends on this interface.
package metastore

import (
	"context"
	"errors"
)

// Sentinel errors a Store implementation must surface for the specific
// conditions the controller core branches on.
var (
	// ErrNodeExists is returned by CreatePersistent when the path is
	// already occupied.
	ErrNodeExists = errors.New("metastore: node already exists")

	// ErrVersionMismatch is returned by ConditionalUpdate when the
	// expected version no longer matches the stored node.
	ErrVersionMismatch = errors.New("metastore: version mismatch")

	// ErrNoNode is returned by ReadData's error channel for transport
	// failures distinct from "absent", and by operations that require an
	// existing parent.
	ErrNoNode = errors.New("metastore: no such node")
)

// ChildListener is invoked, at-least-once, with the full current set of
// children whenever the watched path's child set changes.
type ChildListener func(path string, currentChildren []string)

// Store is the metadata store client this core consumes. Implementations
// must be safe for concurrent use; the controller serializes its own calls
// under the controller lock, but a Store may also be shared with other
// subsystems out of this core's scope.
type Store interface {
	// GetChildren lists the child names of path. An absent path yields an
	// empty slice and a nil error, matching ZooKeeper's "parent may not
	// exist" convenience behavior.
	GetChildren(ctx context.Context, path string) ([]string, error)

	// ReadData returns the node's bytes and version. exists is false, with
	// a zero version and nil error, when the node is absent.
	ReadData(ctx context.Context, path string) (data []byte, version int32, exists bool, err error)

	// CreatePersistent creates path with data. It fails with ErrNodeExists
	// if the node is already present.
	CreatePersistent(ctx context.Context, path string, data []byte) error

	// ConditionalUpdate writes data to path only if the node's current
	// version equals expectedVersion, returning the version the store
	// assigned on success. It fails with ErrVersionMismatch otherwise.
	ConditionalUpdate(ctx context.Context, path string, data []byte, expectedVersion int32) (newVersion int32, err error)

	// SubscribeChildChanges registers listener for child-set changes under
	// path and returns a function that cancels the subscription.
	SubscribeChildChanges(path string, listener ChildListener) (cancel func())
}
