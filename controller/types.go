// Package controller implements the partition lifecycle engine that lives
// inside a cluster controller: the state machine that decides, for every
// partition, whether it has a live leader, and that propagates that decision
// to the metadata store and to the brokers hosting the replicas.
package controller

import "github.com/funkygao/partition-controller/meta"

// Type aliases onto package meta so callers working with the state machine
// never need to import meta directly for the common shapes.
type (
	BrokerID                    = meta.BrokerID
	PartitionID                 = meta.PartitionID
	ReplicaAssignment           = meta.ReplicaAssignment
	LeaderAndIsr                = meta.LeaderAndIsr
	LeaderIsrAndControllerEpoch = meta.LeaderIsrAndControllerEpoch
	LeaderAndIsrRequest         = meta.LeaderAndIsrRequest
	LeaderAndIsrPartitionState  = meta.LeaderAndIsrPartitionState
)

// PartitionState is the tagged state of a single partition's lifecycle.
type PartitionState byte

const (
	// NonExistent means the partition was never created, or was fully
	// torn down by topic deletion.
	NonExistent PartitionState = iota
	// New means the replica assignment is known but no leader exists yet.
	New
	// Online means a leader exists in durable metadata.
	Online
	// Offline means a leader existed but is not currently live, or
	// election failed.
	Offline
)

func (s PartitionState) String() string {
	switch s {
	case NonExistent:
		return "NonExistent"
	case New:
		return "New"
	case Online:
		return "Online"
	case Offline:
		return "Offline"
	default:
		return "Unknown"
	}
}
