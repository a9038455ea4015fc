// Package selector implements the pluggable leader-election policies that
// the partition state machine delegates to when it needs to pick a
// partition's next leader and ISR. Each policy is a distinct
// implementation of one interface.
package selector

import (
	"errors"

	"github.com/funkygao/partition-controller/meta"
)

// ErrNoReplicaOnline is returned by Select when no candidate replica is
// live; the state machine re-raises this to its caller as
// controller.ErrPartitionOffline.
var ErrNoReplicaOnline = errors.New("no replica online")

// Selector computes a partition's next leader and ISR given its current
// durable leader/ISR record, its replica assignment, and the live-broker
// set. It returns the proposed next record and the set of replicas that
// must be notified of the change.
type Selector interface {
	Select(p meta.PartitionID, assignment meta.ReplicaAssignment, current meta.LeaderAndIsr, liveBrokers map[meta.BrokerID]bool) (next meta.LeaderAndIsr, notify []meta.BrokerID, err error)
}

func isrContains(isr []meta.BrokerID, id meta.BrokerID) bool {
	for _, b := range isr {
		if b == id {
			return true
		}
	}
	return false
}

// liveInOrder returns the subset of ids that are live, preserving order.
func liveInOrder(ids []meta.BrokerID, live map[meta.BrokerID]bool) []meta.BrokerID {
	var out []meta.BrokerID
	for _, id := range ids {
		if live[id] {
			out = append(out, id)
		}
	}
	return out
}

// Offline is the default re-election policy used by
// triggerOnlinePartitionStateChange and by broker-failure handling. It
// prefers the live members of the current ISR, in ISR order; if none of
// the current ISR is live, it falls back to any live assigned replica.
// The new ISR becomes whichever live subset was chosen.
type Offline struct{}

func (Offline) Select(p meta.PartitionID, assignment meta.ReplicaAssignment, current meta.LeaderAndIsr, liveBrokers map[meta.BrokerID]bool) (meta.LeaderAndIsr, []meta.BrokerID, error) {
	liveIsr := liveInOrder(current.Isr, liveBrokers)
	if len(liveIsr) > 0 {
		next := meta.LeaderAndIsr{
			Leader:      liveIsr[0],
			LeaderEpoch: current.LeaderEpoch + 1,
			Isr:         liveIsr,
			ZkVersion:   current.ZkVersion,
		}
		return next, liveIsr, nil
	}

	liveAssigned := liveInOrder([]meta.BrokerID(assignment), liveBrokers)
	if len(liveAssigned) == 0 {
		return meta.LeaderAndIsr{}, nil, ErrNoReplicaOnline
	}

	next := meta.LeaderAndIsr{
		Leader:      liveAssigned[0],
		LeaderEpoch: current.LeaderEpoch + 1,
		Isr:         []meta.BrokerID{liveAssigned[0]},
		ZkVersion:   current.ZkVersion,
	}
	return next, liveAssigned, nil
}

// PreferredReplica re-elects the head of the replica assignment whenever it
// is live, a member of the current ISR, and not already leader, for
// preferred-leader rebalancing; if it is dead or outside the ISR, Select
// returns ErrNoReplicaOnline. The current ISR is kept unchanged, in its
// existing order.
type PreferredReplica struct{}

func (PreferredReplica) Select(p meta.PartitionID, assignment meta.ReplicaAssignment, current meta.LeaderAndIsr, liveBrokers map[meta.BrokerID]bool) (meta.LeaderAndIsr, []meta.BrokerID, error) {
	if len(assignment) == 0 {
		return meta.LeaderAndIsr{}, nil, ErrNoReplicaOnline
	}

	preferred := assignment[0]
	if !liveBrokers[preferred] || !isrContains(current.Isr, preferred) {
		return meta.LeaderAndIsr{}, nil, ErrNoReplicaOnline
	}

	if current.Leader == preferred {
		return current, nil, nil
	}

	next := meta.LeaderAndIsr{
		Leader:      preferred,
		LeaderEpoch: current.LeaderEpoch + 1,
		Isr:         current.Isr,
		ZkVersion:   current.ZkVersion,
	}
	return next, []meta.BrokerID(assignment), nil
}

// Reassigned elects a leader from a partition's post-reassignment replica
// set: the first reassigned replica that is both live and in the current
// ISR becomes leader. The ISR is left as-is; the reassignment subsystem
// shrinks it separately once the old replicas are retired.
type Reassigned struct {
	NewReplicas []meta.BrokerID
}

func (this Reassigned) Select(p meta.PartitionID, assignment meta.ReplicaAssignment, current meta.LeaderAndIsr, liveBrokers map[meta.BrokerID]bool) (meta.LeaderAndIsr, []meta.BrokerID, error) {
	var leader meta.BrokerID
	found := false
	for _, id := range this.NewReplicas {
		if liveBrokers[id] && isrContains(current.Isr, id) {
			leader = id
			found = true
			break
		}
	}
	if !found {
		return meta.LeaderAndIsr{}, nil, ErrNoReplicaOnline
	}

	next := meta.LeaderAndIsr{
		Leader:      leader,
		LeaderEpoch: current.LeaderEpoch + 1,
		Isr:         current.Isr,
		ZkVersion:   current.ZkVersion,
	}
	return next, this.NewReplicas, nil
}

// ControlledShutdown removes a shutting-down broker from leadership and
// from the ISR, choosing a replacement leader from the remaining live ISR
// members. Used by the broker-failure/controlled-shutdown handler, which
// is out of this core's scope but plugs in at this same interface.
type ControlledShutdown struct {
	ShuttingDown meta.BrokerID
}

func (this ControlledShutdown) Select(p meta.PartitionID, assignment meta.ReplicaAssignment, current meta.LeaderAndIsr, liveBrokers map[meta.BrokerID]bool) (meta.LeaderAndIsr, []meta.BrokerID, error) {
	var remaining []meta.BrokerID
	for _, id := range current.Isr {
		if id != this.ShuttingDown && liveBrokers[id] {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) == 0 {
		return meta.LeaderAndIsr{}, nil, ErrNoReplicaOnline
	}

	next := meta.LeaderAndIsr{
		Leader:      remaining[0],
		LeaderEpoch: current.LeaderEpoch + 1,
		Isr:         remaining,
		ZkVersion:   current.ZkVersion,
	}
	return next, remaining, nil
}
