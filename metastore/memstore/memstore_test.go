package memstore

import (
	"context"
	"testing"

	"github.com/funkygao/assert"
	"github.com/funkygao/partition-controller/metastore"
)

func TestCreatePersistentRejectsDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.Equal(t, nil, s.CreatePersistent(ctx, "/brokers/topics/foo", []byte("a")))
	err := s.CreatePersistent(ctx, "/brokers/topics/foo", []byte("b"))
	assert.Equal(t, true, err == metastore.ErrNodeExists)
}

func TestConditionalUpdateFencesOnStaleVersion(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.Equal(t, nil, s.CreatePersistent(ctx, "/p", []byte("v0")))
	_, _, _, err := s.ReadData(ctx, "/p")
	assert.Equal(t, nil, err)

	newVersion, err := s.ConditionalUpdate(ctx, "/p", []byte("v1"), 0)
	assert.Equal(t, nil, err)
	assert.Equal(t, int32(1), newVersion)

	_, err = s.ConditionalUpdate(ctx, "/p", []byte("v2"), 0)
	assert.Equal(t, true, err == metastore.ErrVersionMismatch)

	data, version, exists, err := s.ReadData(ctx, "/p")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, exists)
	assert.Equal(t, int32(1), version)
	assert.Equal(t, "v1", string(data))
}

func TestGetChildrenOnAbsentParentIsEmpty(t *testing.T) {
	s := New()
	children, err := s.GetChildren(context.Background(), "/brokers/topics")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(children))
}

func TestSubscribeChildChangesFiresOnCreate(t *testing.T) {
	s := New()
	var seen []string
	cancel := s.SubscribeChildChanges("/brokers/topics", func(path string, children []string) {
		seen = append(seen, children...)
	})
	defer cancel()

	assert.Equal(t, nil, s.CreatePersistent(context.Background(), "/brokers/topics/orders", []byte("{}")))
	assert.Equal(t, 1, len(seen))
	assert.Equal(t, "orders", seen[0])
}

func TestSubscribeChildChangesCancel(t *testing.T) {
	s := New()
	calls := 0
	cancel := s.SubscribeChildChanges("/brokers/topics", func(path string, children []string) {
		calls++
	})
	cancel()

	assert.Equal(t, nil, s.CreatePersistent(context.Background(), "/brokers/topics/orders", []byte("{}")))
	assert.Equal(t, 0, calls)
}
