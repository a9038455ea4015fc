package controller

import "sync"

// Context is the controller's in-memory cache: live broker ids, all known
// topics, each partition's replica assignment, and each partition's last
// known leader/ISR plus the epoch that wrote it. It also holds the
// controller epoch itself.
//
// The controller's own state-machine mutations are serialized by its
// single work-queue worker; the mutex here additionally covers callers
// that reach in from outside that worker (e.g. a metrics reporter
// reading LiveBrokerIDs).
type Context struct {
	mu sync.Mutex

	epoch int32

	liveBrokerIDs map[BrokerID]bool
	allTopics     map[string]bool

	partitionReplicaAssignment map[PartitionID]ReplicaAssignment
	allLeaders                 map[PartitionID]LeaderIsrAndControllerEpoch
	partitionState             map[PartitionID]PartitionState
}

// NewContext returns an empty Context at the given controller epoch.
func NewContext(epoch int32) *Context {
	return &Context{
		epoch:                      epoch,
		liveBrokerIDs:              make(map[BrokerID]bool),
		allTopics:                  make(map[string]bool),
		partitionReplicaAssignment: make(map[PartitionID]ReplicaAssignment),
		allLeaders:                 make(map[PartitionID]LeaderIsrAndControllerEpoch),
		partitionState:             make(map[PartitionID]PartitionState),
	}
}

// Epoch returns the controller's current generation number.
func (this *Context) Epoch() int32 {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.epoch
}

// SetLiveBrokers replaces the live-broker set wholesale, as a broker
// membership change listener would on every callback.
func (this *Context) SetLiveBrokers(ids []BrokerID) {
	this.mu.Lock()
	defer this.mu.Unlock()

	this.liveBrokerIDs = make(map[BrokerID]bool, len(ids))
	for _, id := range ids {
		this.liveBrokerIDs[id] = true
	}
}

// LiveBrokerIDs returns a snapshot of the currently live broker ids.
func (this *Context) LiveBrokerIDs() map[BrokerID]bool {
	this.mu.Lock()
	defer this.mu.Unlock()

	out := make(map[BrokerID]bool, len(this.liveBrokerIDs))
	for id := range this.liveBrokerIDs {
		out[id] = true
	}
	return out
}

func (this *Context) isLive(id BrokerID) bool {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.liveBrokerIDs[id]
}

// AllTopics returns the cached set of all known topic names.
func (this *Context) AllTopics() map[string]bool {
	this.mu.Lock()
	defer this.mu.Unlock()

	out := make(map[string]bool, len(this.allTopics))
	for t := range this.allTopics {
		out[t] = true
	}
	return out
}

// SetAllTopics replaces the cached topic set.
func (this *Context) SetAllTopics(topics map[string]bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.allTopics = topics
}

// ReplicaAssignment returns the cached assignment for p, if any.
func (this *Context) ReplicaAssignment(p PartitionID) (ReplicaAssignment, bool) {
	this.mu.Lock()
	defer this.mu.Unlock()

	ra, ok := this.partitionReplicaAssignment[p]
	if !ok {
		return nil, false
	}
	return ra.Clone(), true
}

// SetReplicaAssignment caches ra for p. Per invariant 4 of the data model,
// this core never mutates an assignment once cached; reassignment is a
// separate, out-of-scope subsystem.
func (this *Context) SetReplicaAssignment(p PartitionID, ra ReplicaAssignment) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.partitionReplicaAssignment[p] = ra.Clone()
}

// RemoveReplicaAssignment drops the cached assignment for p, used when a
// topic is deleted from allTopics.
func (this *Context) RemoveReplicaAssignment(p PartitionID) {
	this.mu.Lock()
	defer this.mu.Unlock()
	delete(this.partitionReplicaAssignment, p)
}

// Leader returns the cached leader/ISR record for p, if any.
func (this *Context) Leader(p PartitionID) (LeaderIsrAndControllerEpoch, bool) {
	this.mu.Lock()
	defer this.mu.Unlock()

	l, ok := this.allLeaders[p]
	return l, ok
}

// SetLeader caches the leader/ISR record for p.
func (this *Context) SetLeader(p PartitionID, l LeaderIsrAndControllerEpoch) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.allLeaders[p] = l
}

// State returns the current PartitionState for p, defaulting to
// NonExistent for a partition this context has never seen.
func (this *Context) State(p PartitionID) PartitionState {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.partitionState[p]
}

// SetState installs s as the current state for p.
func (this *Context) SetState(p PartitionID, s PartitionState) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.partitionState[p] = s
}

// PartitionsInStates returns every partition currently in one of states,
// used by triggerOnlinePartitionStateChange to find candidates for
// election.
func (this *Context) PartitionsInStates(states ...PartitionState) []PartitionID {
	this.mu.Lock()
	defer this.mu.Unlock()

	want := make(map[PartitionState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}

	var out []PartitionID
	for p, s := range this.partitionState {
		if want[s] {
			out = append(out, p)
		}
	}
	return out
}

// Clear resets the state map, used by shutdown().
func (this *Context) Clear() {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.partitionState = make(map[PartitionID]PartitionState)
}
