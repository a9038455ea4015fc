package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/funkygao/log4go"
	"github.com/funkygao/partition-controller/controller/selector"
	"github.com/funkygao/partition-controller/metastore"
)

// legalTransitions enumerates the only admissible (from, to) state pairs.
// Any other requested transition is a programming error.
var legalTransitions = map[PartitionState]map[PartitionState]bool{
	New:         {NonExistent: true},
	Online:      {New: true, Online: true, Offline: true},
	Offline:     {New: true, Online: true},
	NonExistent: {Offline: true},
}

// znodeLeaderIsr is the on-wire JSON shape of the durable leader/ISR node.
// Readers tolerate additional unknown fields because json.Unmarshal does by
// default.
type znodeLeaderIsr struct {
	Version         int     `json:"version"`
	ControllerEpoch int32   `json:"controller_epoch"`
	Leader          int32   `json:"leader"`
	LeaderEpoch     int32   `json:"leader_epoch"`
	Isr             []int32 `json:"isr"`
}

func encodeLeaderIsr(l LeaderAndIsr, controllerEpoch int32) []byte {
	isr := make([]int32, len(l.Isr))
	for i, id := range l.Isr {
		isr[i] = int32(id)
	}
	data, _ := json.Marshal(znodeLeaderIsr{
		Version:         1,
		ControllerEpoch: controllerEpoch,
		Leader:          int32(l.Leader),
		LeaderEpoch:     l.LeaderEpoch,
		Isr:             isr,
	})
	return data
}

func decodeLeaderIsr(data []byte, zkVersion int32) (LeaderIsrAndControllerEpoch, error) {
	var z znodeLeaderIsr
	if err := json.Unmarshal(data, &z); err != nil {
		return LeaderIsrAndControllerEpoch{}, err
	}

	isr := make([]BrokerID, len(z.Isr))
	for i, id := range z.Isr {
		isr[i] = BrokerID(id)
	}

	return LeaderIsrAndControllerEpoch{
		LeaderAndIsr: LeaderAndIsr{
			Leader:      BrokerID(z.Leader),
			LeaderEpoch: z.LeaderEpoch,
			Isr:         isr,
			ZkVersion:   zkVersion,
		},
		ControllerEpoch: z.ControllerEpoch,
	}, nil
}

// StateMachine owns (topic, partition) -> PartitionState for the whole
// cluster and orchestrates the metadata store, the context cache, and the
// outgoing broker request batch to carry partitions through their legal
// transitions.
type StateMachine struct {
	ctx     *Context
	store   metastore.Store
	send    SendFunc
	metrics MetricsSink

	shutdown bool
}

// MetricsSink receives the state machine's observability events. A nil
// MetricsSink is replaced with a no-op at construction time, matching
// telemetry.Registry's counters one-for-one.
type MetricsSink interface {
	// OnOffline fires once per StateChangeFailed outcome that leaves (or
	// finds) a partition without a live leader.
	OnOffline()

	// OnLeaderElected fires once per successful leader/ISR write, unclean
	// reporting whether the new leader was not a member of the prior ISR
	// (i.e. the offline selector's fallback path fired).
	OnLeaderElected(unclean bool)
}

type noopMetricsSink struct{}

func (noopMetricsSink) OnOffline()           {}
func (noopMetricsSink) OnLeaderElected(bool) {}

// NewStateMachine returns a StateMachine over ctx and store. send
// delivers outgoing LeaderAndIsrRequests; metrics, if non-nil, observes
// offline and election outcomes.
func NewStateMachine(ctx *Context, store metastore.Store, send SendFunc, metrics MetricsSink) *StateMachine {
	if metrics == nil {
		metrics = noopMetricsSink{}
	}
	return &StateMachine{ctx: ctx, store: store, send: send, metrics: metrics}
}

// Context returns the state machine's backing Context.
func (this *StateMachine) Context() *Context { return this.ctx }

// Startup is idempotent. It clears the shutdown flag, reconstructs
// partition state from durable metadata, and attempts to bring every New
// or Offline partition Online. Registering the topic-change listener is
// the owning Controller's responsibility (see Controller.Start),
// since the listener's callback needs to reach the controller's
// onNewTopicCreation hook, not just this state machine. Callers must hold
// the controller lock or guarantee single-threaded entry.
func (this *StateMachine) Startup(ctx context.Context) error {
	this.shutdown = false

	if err := this.InitializePartitionState(ctx); err != nil {
		return err
	}

	this.TriggerOnlinePartitionStateChange(ctx)
	return nil
}

// Shutdown sets the shutdown flag and clears the state map. Listener
// callbacks observe the flag and no-op from this point on.
func (this *StateMachine) Shutdown() {
	this.shutdown = true
	this.ctx.Clear()
}

// IsShutdown reports whether Shutdown has been called since the last
// Startup.
func (this *StateMachine) IsShutdown() bool { return this.shutdown }

// InitializePartitionState runs once at controller startup (or whenever a
// freshly elected controller takes over). For every partition already
// known in the metadata store it computes New/Online/Offline purely from
// what is durably there; no durable writes are performed here.
func (this *StateMachine) InitializePartitionState(ctx context.Context) error {
	topics, err := this.store.GetChildren(ctx, brokerTopicsPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMetadataStore, err)
	}

	allTopics := make(map[string]bool, len(topics))
	for _, t := range topics {
		allTopics[t] = true
	}
	this.ctx.SetAllTopics(allTopics)

	live := this.ctx.LiveBrokerIDs()

	for _, topic := range topics {
		assignment, err := this.readReplicaAssignment(ctx, topic)
		if err != nil {
			return fmt.Errorf("%w: topic %s: %s", ErrMetadataStore, topic, err)
		}

		for partitionID, ra := range assignment {
			p := PartitionID{Topic: topic, Partition: partitionID}
			this.ctx.SetReplicaAssignment(p, ra)

			data, _, exists, err := this.store.ReadData(ctx, partitionStatePath(topic, partitionID))
			if err != nil {
				return fmt.Errorf("%w: %s: %s", ErrMetadataStore, p, err)
			}

			if !exists {
				this.ctx.SetState(p, New)
				continue
			}

			decoded, err := decodeLeaderIsr(data, 0)
			if err != nil {
				return fmt.Errorf("%w: %s: %s", ErrMetadataStore, p, err)
			}
			this.ctx.SetLeader(p, decoded)

			if live[decoded.LeaderAndIsr.Leader] {
				this.ctx.SetState(p, Online)
			} else {
				this.ctx.SetState(p, Offline)
			}
		}
	}

	return nil
}

// TriggerOnlinePartitionStateChange scans the state map and attempts to
// bring every partition currently New or Offline to Online, using the
// default offline selector. Called after controller election and on
// broker-membership changes. Calling it twice with no intervening change
// is idempotent: the second call finds nothing in New or Offline and
// sends no broker requests.
func (this *StateMachine) TriggerOnlinePartitionStateChange(ctx context.Context) {
	partitions := this.ctx.PartitionsInStates(New, Offline)
	if len(partitions) == 0 {
		return
	}

	this.HandleStateChanges(ctx, partitions, Online, selector.Offline{})
}

// HandleStateChanges is the bulk driver: it opens a fresh request batch,
// dispatches each partition through HandleStateChange, then flushes the
// batch in one message per affected broker. Per-partition errors are
// logged and do not abort the loop; a metadata-store error aborts the
// pass without flushing and is returned, as is a flush error.
func (this *StateMachine) HandleStateChanges(ctx context.Context, partitions []PartitionID, target PartitionState, sel selector.Selector) error {
	batch := NewRequestBatch()
	if err := batch.NewBatch(this.ctx.Epoch()); err != nil {
		return err
	}

	for _, p := range partitions {
		if err := this.handleStateChange(ctx, p, target, sel, batch); err != nil {
			log.Error("partition %s -> %s: %s", p, target, err)
			if errors.Is(err, ErrMetadataStore) {
				return err
			}
		}
	}

	if err := batch.SendRequestsToBrokers(this.ctx.LiveBrokerIDs(), this.send); err != nil {
		return err
	}
	return nil
}

// ElectLeaderForPartition is exposed because the reassignment subsystem
// and the broker-failure handler call it directly, outside a full
// handleStateChanges pass. It opens its own single-partition batch.
func (this *StateMachine) ElectLeaderForPartition(ctx context.Context, p PartitionID, sel selector.Selector) error {
	batch := NewRequestBatch()
	if err := batch.NewBatch(this.ctx.Epoch()); err != nil {
		return err
	}

	if err := this.electLeaderForPartition(ctx, p, sel, batch); err != nil {
		return err
	}

	return batch.SendRequestsToBrokers(this.ctx.LiveBrokerIDs(), this.send)
}

// handleStateChange dispatches one partition through its target-state
// contract.
func (this *StateMachine) handleStateChange(ctx context.Context, p PartitionID, target PartitionState, sel selector.Selector, batch *RequestBatch) error {
	current := this.ctx.State(p)

	if !legalTransitions[target][current] {
		return &IllegalStateTransitionError{Partition: p, From: current, To: target}
	}

	switch target {
	case New:
		return this.toNew(ctx, p)

	case Online:
		var err error
		if current == New {
			err = this.initializeLeaderAndIsrForPartition(ctx, p, batch)
		} else {
			err = this.electLeaderForPartition(ctx, p, sel, batch)
		}
		if err != nil {
			return err
		}
		this.ctx.SetState(p, Online)
		return nil

	case Offline:
		this.ctx.SetState(p, Offline)
		return nil

	case NonExistent:
		this.ctx.SetState(p, NonExistent)
		return nil
	}

	return &IllegalStateTransitionError{Partition: p, From: current, To: target}
}

// toNew reads the replica assignment for p from the metadata store and
// caches it, then marks p New.
func (this *StateMachine) toNew(ctx context.Context, p PartitionID) error {
	assignment, err := this.readReplicaAssignment(ctx, p.Topic)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMetadataStore, err)
	}

	ra, ok := assignment[p.Partition]
	if !ok {
		return newStateChangeFailed(p, fmt.Errorf("no replica assignment for partition %d of topic %s", p.Partition, p.Topic))
	}

	this.ctx.SetReplicaAssignment(p, ra)
	this.ctx.SetState(p, New)
	return nil
}

// initializeLeaderAndIsrForPartition carries a New partition to Online for
// the first time: pick the first live assigned replica as leader, put
// every live assigned replica in the ISR, and create the durable node
// conditional on its absence.
func (this *StateMachine) initializeLeaderAndIsrForPartition(ctx context.Context, p PartitionID, batch *RequestBatch) error {
	assignment, ok := this.ctx.ReplicaAssignment(p)
	if !ok {
		return newStateChangeFailed(p, fmt.Errorf("no cached replica assignment"))
	}

	live := this.ctx.LiveBrokerIDs()
	liveAssigned := make([]BrokerID, 0, len(assignment))
	for _, id := range assignment {
		if live[id] {
			liveAssigned = append(liveAssigned, id)
		}
	}

	if len(liveAssigned) == 0 {
		this.metrics.OnOffline()
		return newStateChangeFailed(p, ErrNoLiveReplica)
	}

	leaderIsr := LeaderIsrAndControllerEpoch{
		LeaderAndIsr: LeaderAndIsr{
			Leader:      liveAssigned[0],
			LeaderEpoch: 0,
			Isr:         liveAssigned,
			ZkVersion:   0,
		},
		ControllerEpoch: this.ctx.Epoch(),
	}

	path := partitionStatePath(p.Topic, p.Partition)
	data := encodeLeaderIsr(leaderIsr.LeaderAndIsr, leaderIsr.ControllerEpoch)

	err := this.store.CreatePersistent(ctx, path, data)
	if err == nil {
		batch.AddLeaderAndIsrRequestForBrokers(liveAssigned, p.Topic, p.Partition, leaderIsr, assignment)
		this.ctx.SetLeader(p, leaderIsr)
		this.metrics.OnLeaderElected(false)
		return nil
	}

	if err == metastore.ErrNodeExists {
		// Soft controller failover: a prior controller may have returned
		// from a long pause and already initialized this partition. Do
		// not guess whether to fall through to election here; surface
		// the observed value and let a later reconciliation pass decide.
		existingData, existingVersion, exists, readErr := this.store.ReadData(ctx, path)
		this.metrics.OnOffline()
		if readErr != nil || !exists {
			return newStateChangeFailed(p, fmt.Errorf("node exists but could not be read: %v", readErr))
		}
		existing, decodeErr := decodeLeaderIsr(existingData, existingVersion)
		if decodeErr != nil {
			return newStateChangeFailed(p, fmt.Errorf("node exists but could not be decoded: %v", decodeErr))
		}
		return newStateChangeFailedWithExisting(p, metastore.ErrNodeExists, &existing)
	}

	return fmt.Errorf("%w: %s", ErrMetadataStore, err)
}

// electLeaderForPartition carries an Offline or Online partition to
// Online by re-reading the durable node, checking the controller-epoch
// fence, delegating to sel for the next leader/ISR, and retrying the
// conditional write until it lands or the epoch fence aborts it. After
// maxAttempts version mismatches it gives up with a StateChangeFailedError.
func (this *StateMachine) electLeaderForPartition(ctx context.Context, p PartitionID, sel selector.Selector, batch *RequestBatch) error {
	assignment, _ := this.ctx.ReplicaAssignment(p)
	path := partitionStatePath(p.Topic, p.Partition)

	const maxAttempts = 1000 // cap on the otherwise-unbounded conditional-update retry loop

	for attempt := 0; attempt < maxAttempts; attempt++ {
		data, version, exists, err := this.store.ReadData(ctx, path)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMetadataStore, err)
		}
		if !exists {
			return newStateChangeFailed(p, ErrLeaderIsrNotFound)
		}

		stored, err := decodeLeaderIsr(data, version)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMetadataStore, err)
		}

		if stored.ControllerEpoch > this.ctx.Epoch() {
			return newStateChangeFailed(p, ErrStaleControllerEpoch)
		}

		live := this.ctx.LiveBrokerIDs()
		next, notify, err := sel.Select(p, assignment, stored.LeaderAndIsr, live)
		if err != nil {
			this.metrics.OnOffline()
			return ErrPartitionOffline
		}

		newVersion, err := this.store.ConditionalUpdate(ctx, path, encodeLeaderIsr(next, this.ctx.Epoch()), version)
		if err == metastore.ErrVersionMismatch {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMetadataStore, err)
		}

		next.ZkVersion = newVersion
		leaderIsr := LeaderIsrAndControllerEpoch{LeaderAndIsr: next, ControllerEpoch: this.ctx.Epoch()}
		this.ctx.SetLeader(p, leaderIsr)
		this.metrics.OnLeaderElected(!stored.LeaderAndIsr.IsrContains(next.Leader))
		if len(notify) > 0 {
			batch.AddLeaderAndIsrRequestForBrokers(notify, p.Topic, p.Partition, leaderIsr, assignment)
		}
		return nil
	}

	return newStateChangeFailed(p, fmt.Errorf("exhausted %d conditional-update retries", maxAttempts))
}

// readReplicaAssignment fetches and decodes the per-partition replica
// assignment map for topic from the metadata store.
func (this *StateMachine) readReplicaAssignment(ctx context.Context, topic string) (map[int32]ReplicaAssignment, error) {
	data, _, exists, err := this.store.ReadData(ctx, topicPath(topic))
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[int32]ReplicaAssignment{}, nil
	}

	var raw map[string][]int32
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(map[int32]ReplicaAssignment, len(raw))
	for partitionStr, ids := range raw {
		var partitionID int32
		if _, err := fmt.Sscanf(partitionStr, "%d", &partitionID); err != nil {
			continue
		}
		ra := make(ReplicaAssignment, len(ids))
		for i, id := range ids {
			ra[i] = BrokerID(id)
		}
		out[partitionID] = ra
	}
	return out, nil
}
