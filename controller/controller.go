package controller

import (
	"context"
	"sync"

	log "github.com/funkygao/log4go"
	"github.com/funkygao/partition-controller/controller/selector"
	"github.com/funkygao/partition-controller/metastore"
)

// Controller is the top-level entity this process runs once it has been
// elected controller: it owns the controller epoch, the context cache,
// the partition state machine, and the metadata-change listeners, and it
// is the sole caller of state-machine entry points. The election procedure
// itself (becoming the single elected controller) is out of this core's
// scope, modeled as the caller invoking Start once it has already won.
//
// External entry points from metastore watch goroutines never touch the
// context or state machine directly: they enqueue a closure onto
// workQueue, which a single worker goroutine drains, giving every
// mutation single-threaded execution without any caller needing to
// acquire a lock explicitly.
type Controller struct {
	epoch int32

	sm    *StateMachine
	store metastore.Store

	workQueue chan func()
	stopCh    chan struct{}
	wg        sync.WaitGroup

	topicListenerCancel      func()
	partitionListenerCancels map[string]func()
}

// New returns a Controller at the given epoch, wired to store for
// metadata and send for outgoing broker notifications. metrics may be nil.
func New(epoch int32, store metastore.Store, send SendFunc, metrics MetricsSink) *Controller {
	ctx := NewContext(epoch)
	return &Controller{
		epoch:     epoch,
		sm:        NewStateMachine(ctx, store, send, metrics),
		store:     store,
		workQueue: make(chan func(), 256),
		stopCh:    make(chan struct{}),
	}
}

// Epoch returns the controller's generation number.
func (this *Controller) Epoch() int32 { return this.epoch }

// Context exposes the backing Context, e.g. for a membership tracker to
// call SetLiveBrokers.
func (this *Controller) Context() *Context { return this.sm.Context() }

// StateMachine exposes the backing StateMachine for direct use by callers
// that are themselves already running on the controller's single worker.
func (this *Controller) StateMachine() *StateMachine { return this.sm }

// enqueue schedules fn to run on the controller's single worker goroutine.
// Safe to call from any goroutine, including metastore watch callbacks.
func (this *Controller) enqueue(fn func()) {
	select {
	case this.workQueue <- fn:
	case <-this.stopCh:
	}
}

// Start first starts the single worker that will serialize every
// subsequent listener-driven mutation, then runs startup() synchronously
// on the caller's goroutine (the goroutine that just won controller
// election), and finally registers the partition- and topic-change
// listeners.
func (this *Controller) Start(ctx context.Context) error {
	this.wg.Add(1)
	go this.runWorker()

	if err := this.sm.Startup(ctx); err != nil {
		return err
	}

	for topic := range this.sm.Context().AllTopics() {
		this.registerPartitionChangeListener(topic)
	}

	listener := newTopicChangeListener(this)
	this.topicListenerCancel = registerListeners(ctx, this.store, listener)
	return nil
}

func (this *Controller) runWorker() {
	defer this.wg.Done()
	for {
		select {
		case fn := <-this.workQueue:
			fn()
		case <-this.stopCh:
			return
		}
	}
}

// Stop calls the state machine's shutdown(), cancels the topic listener,
// and stops the worker goroutine. This does not cancel an in-flight
// election retry loop; that loop terminates naturally, either on success
// or on observing a higher stored controller epoch.
func (this *Controller) Stop() {
	this.sm.Shutdown()
	if this.topicListenerCancel != nil {
		this.topicListenerCancel()
		this.topicListenerCancel = nil
	}
	for topic, cancel := range this.partitionListenerCancels {
		cancel()
		delete(this.partitionListenerCancels, topic)
	}
	close(this.stopCh)
	this.wg.Wait()
}

// onNewTopicCreation drives NonExistent -> New -> Online for every newly
// discovered partition. Invoked from the topic listener, already running
// on the controller's single worker.
func (this *Controller) onNewTopicCreation(ctx context.Context, topics []string, newPartitions []PartitionID) {
	log.Info("new topics: %v (%d partitions)", topics, len(newPartitions))

	for _, topic := range topics {
		this.registerPartitionChangeListener(topic)
	}

	if err := this.sm.HandleStateChanges(ctx, newPartitions, New, nil); err != nil {
		log.Error("onNewTopicCreation: %s", err)
		return
	}
	if err := this.sm.HandleStateChanges(ctx, newPartitions, Online, selector.Offline{}); err != nil {
		log.Error("onNewTopicCreation: %s", err)
	}
}

// OnBrokerChange updates the live-broker set and reacts to it: any Online
// partition whose leader just went dark is moved Offline, then every New
// or Offline partition is retried toward Online. Broker liveness tracking
// itself is out of this core's scope; callers feed the current live set
// in on every membership change.
func (this *Controller) OnBrokerChange(ctx context.Context, liveBrokerIDs []BrokerID) {
	this.enqueue(func() {
		this.sm.Context().SetLiveBrokers(liveBrokerIDs)
		live := this.sm.Context().LiveBrokerIDs()

		var wentOffline []PartitionID
		for _, p := range this.sm.Context().PartitionsInStates(Online) {
			leader, ok := this.sm.Context().Leader(p)
			if ok && !live[leader.LeaderAndIsr.Leader] {
				wentOffline = append(wentOffline, p)
			}
		}

		if len(wentOffline) > 0 {
			if err := this.sm.HandleStateChanges(ctx, wentOffline, Offline, nil); err != nil {
				log.Error("OnBrokerChange marking offline: %s", err)
			}
		}

		this.sm.TriggerOnlinePartitionStateChange(ctx)
	})
}

// ElectLeaderForPartition is exposed for the reassignment subsystem and
// the broker-failure handler, both out of this core's scope, to call
// directly.
func (this *Controller) ElectLeaderForPartition(ctx context.Context, p PartitionID, sel selector.Selector) error {
	return this.sm.ElectLeaderForPartition(ctx, p, sel)
}
