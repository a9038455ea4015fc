package controller

import (
	"testing"

	"github.com/funkygao/assert"
)

func TestContextReplicaAssignmentIsolatesCaller(t *testing.T) {
	ctx := NewContext(1)
	p := PartitionID{Topic: "orders", Partition: 0}
	ctx.SetReplicaAssignment(p, ReplicaAssignment{1, 2, 3})

	ra, ok := ctx.ReplicaAssignment(p)
	assert.Equal(t, true, ok)
	ra[0] = 99

	ra2, _ := ctx.ReplicaAssignment(p)
	assert.Equal(t, BrokerID(1), ra2[0])
}

func TestContextPartitionsInStates(t *testing.T) {
	ctx := NewContext(1)
	p0 := PartitionID{Topic: "orders", Partition: 0}
	p1 := PartitionID{Topic: "orders", Partition: 1}
	p2 := PartitionID{Topic: "orders", Partition: 2}

	ctx.SetState(p0, Online)
	ctx.SetState(p1, New)
	ctx.SetState(p2, Offline)

	pending := ctx.PartitionsInStates(New, Offline)
	assert.Equal(t, 2, len(pending))
}

func TestContextClearResetsStateButNotCaches(t *testing.T) {
	ctx := NewContext(1)
	p := PartitionID{Topic: "orders", Partition: 0}
	ctx.SetState(p, Online)
	ctx.SetReplicaAssignment(p, ReplicaAssignment{1})

	ctx.Clear()
	assert.Equal(t, NonExistent, ctx.State(p))

	_, ok := ctx.ReplicaAssignment(p)
	assert.Equal(t, true, ok)
}

func TestContextLiveBrokerIDsSnapshotIsolatesCaller(t *testing.T) {
	ctx := NewContext(1)
	ctx.SetLiveBrokers([]BrokerID{1, 2})

	live := ctx.LiveBrokerIDs()
	live[3] = true

	live2 := ctx.LiveBrokerIDs()
	assert.Equal(t, 2, len(live2))
}
