package selector

import (
	"testing"

	"github.com/funkygao/assert"
	"github.com/funkygao/partition-controller/meta"
)

func TestOfflinePrefersLiveIsrMember(t *testing.T) {
	current := meta.LeaderAndIsr{Leader: 1, LeaderEpoch: 3, Isr: []meta.BrokerID{1, 2, 3}, ZkVersion: 7}
	live := map[meta.BrokerID]bool{2: true, 3: true}

	next, notify, err := Offline{}.Select(meta.PartitionID{Topic: "t", Partition: 0}, meta.ReplicaAssignment{1, 2, 3}, current, live)
	assert.Equal(t, nil, err)
	assert.Equal(t, meta.BrokerID(2), next.Leader)
	assert.Equal(t, int32(4), next.LeaderEpoch)
	assert.Equal(t, 2, len(notify))
}

func TestOfflineFallsBackToAssignedWhenIsrAllDead(t *testing.T) {
	current := meta.LeaderAndIsr{Leader: 1, LeaderEpoch: 3, Isr: []meta.BrokerID{1}, ZkVersion: 7}
	live := map[meta.BrokerID]bool{4: true}

	next, notify, err := Offline{}.Select(meta.PartitionID{Topic: "t", Partition: 0}, meta.ReplicaAssignment{1, 4}, current, live)
	assert.Equal(t, nil, err)
	assert.Equal(t, meta.BrokerID(4), next.Leader)
	assert.Equal(t, 1, len(notify))
}

func TestOfflineNoCandidateReturnsErr(t *testing.T) {
	current := meta.LeaderAndIsr{Leader: 1, LeaderEpoch: 3, Isr: []meta.BrokerID{1}, ZkVersion: 7}
	live := map[meta.BrokerID]bool{}

	_, _, err := Offline{}.Select(meta.PartitionID{Topic: "t", Partition: 0}, meta.ReplicaAssignment{1}, current, live)
	assert.Equal(t, true, err == ErrNoReplicaOnline)
}

func TestPreferredReplicaNoOpIfAlreadyLeader(t *testing.T) {
	current := meta.LeaderAndIsr{Leader: 1, LeaderEpoch: 2, Isr: []meta.BrokerID{1, 2}, ZkVersion: 5}
	live := map[meta.BrokerID]bool{1: true, 2: true}

	next, notify, err := PreferredReplica{}.Select(meta.PartitionID{Topic: "t", Partition: 0}, meta.ReplicaAssignment{1, 2}, current, live)
	assert.Equal(t, nil, err)
	assert.Equal(t, current, next)
	assert.Equal(t, 0, len(notify))
}

func TestPreferredReplicaRebalances(t *testing.T) {
	current := meta.LeaderAndIsr{Leader: 2, LeaderEpoch: 2, Isr: []meta.BrokerID{1, 2}, ZkVersion: 5}
	live := map[meta.BrokerID]bool{1: true, 2: true}

	next, notify, err := PreferredReplica{}.Select(meta.PartitionID{Topic: "t", Partition: 0}, meta.ReplicaAssignment{1, 2}, current, live)
	assert.Equal(t, nil, err)
	assert.Equal(t, meta.BrokerID(1), next.Leader)
	assert.Equal(t, int32(3), next.LeaderEpoch)
	assert.Equal(t, 2, len(notify))
}

func TestReassignedPicksFirstLiveIsrMemberOfNewReplicas(t *testing.T) {
	current := meta.LeaderAndIsr{Leader: 1, LeaderEpoch: 2, Isr: []meta.BrokerID{1, 2, 3}, ZkVersion: 4}
	live := map[meta.BrokerID]bool{2: true, 3: true}

	sel := Reassigned{NewReplicas: []meta.BrokerID{4, 3, 2}}
	next, notify, err := sel.Select(meta.PartitionID{Topic: "t", Partition: 0}, meta.ReplicaAssignment{1, 2, 3}, current, live)
	assert.Equal(t, nil, err)
	assert.Equal(t, meta.BrokerID(3), next.Leader)
	assert.Equal(t, int32(3), next.LeaderEpoch)
	assert.Equal(t, 3, len(notify))
}

func TestReassignedFailsWhenNoNewReplicaEligible(t *testing.T) {
	current := meta.LeaderAndIsr{Leader: 1, LeaderEpoch: 2, Isr: []meta.BrokerID{1}, ZkVersion: 4}
	live := map[meta.BrokerID]bool{4: true}

	sel := Reassigned{NewReplicas: []meta.BrokerID{4, 5}}
	_, _, err := sel.Select(meta.PartitionID{Topic: "t", Partition: 0}, meta.ReplicaAssignment{1}, current, live)
	assert.Equal(t, true, err == ErrNoReplicaOnline)
}

func TestControlledShutdownExcludesShuttingDownBroker(t *testing.T) {
	current := meta.LeaderAndIsr{Leader: 1, LeaderEpoch: 1, Isr: []meta.BrokerID{1, 2, 3}, ZkVersion: 2}
	live := map[meta.BrokerID]bool{1: true, 2: true, 3: true}

	sel := ControlledShutdown{ShuttingDown: 1}
	next, notify, err := sel.Select(meta.PartitionID{Topic: "t", Partition: 0}, meta.ReplicaAssignment{1, 2, 3}, current, live)
	assert.Equal(t, nil, err)
	assert.Equal(t, meta.BrokerID(2), next.Leader)
	for _, id := range next.Isr {
		assert.Equal(t, true, id != 1)
	}
	assert.Equal(t, 2, len(notify))
}
