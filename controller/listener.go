package controller

import (
	"context"
	"sort"

	log "github.com/funkygao/log4go"
	"github.com/funkygao/partition-controller/metastore"
)

// TopicChangeListener subscribes to the topics directory and, on every
// child-set change, diffs against the cached topic set to find newly
// created and deleted topics.
//
// Listener callbacks check the shutdown flag before touching controller
// state; here that means checking it before enqueuing onto the
// Controller's work queue, which a shut-down controller no longer drains
// with new work.
type TopicChangeListener struct {
	controller *Controller
}

func newTopicChangeListener(c *Controller) *TopicChangeListener {
	return &TopicChangeListener{controller: c}
}

// onTopicsChanged computes newTopics and deletedTopics against allTopics,
// updates the cache, merges replica assignments for newTopics (dropping
// entries for deletedTopics), and, if newTopics is non-empty, invokes
// the controller's onNewTopicCreation hook.
func (this *TopicChangeListener) onTopicsChanged(ctx context.Context, path string, currentChildren []string) {
	if this.controller.sm.IsShutdown() {
		return
	}

	this.controller.enqueue(func() {
		sm := this.controller.sm
		current := make(map[string]bool, len(currentChildren))
		for _, t := range currentChildren {
			current[t] = true
		}

		previous := sm.Context().AllTopics()

		var newTopics, deletedTopics []string
		for t := range current {
			if !previous[t] {
				newTopics = append(newTopics, t)
			}
		}
		for t := range previous {
			if !current[t] {
				deletedTopics = append(deletedTopics, t)
			}
		}
		sort.Strings(newTopics)
		sort.Strings(deletedTopics)

		sm.Context().SetAllTopics(current)

		for _, topic := range deletedTopics {
			// Cache eviction only: driving the dangling state-map entries
			// Offline -> NonExistent belongs to the topic-deletion
			// subsystem, which does not exist yet.
			for _, p := range sm.Context().PartitionsInStates(New, Online, Offline) {
				if p.Topic == topic {
					sm.Context().RemoveReplicaAssignment(p)
				}
			}
		}

		var newPartitions []PartitionID
		for _, topic := range newTopics {
			assignment, err := sm.readReplicaAssignment(ctx, topic)
			if err != nil {
				log.Error("topic change: read replica assignment for %s: %s", topic, err)
				continue
			}
			for partitionID, ra := range assignment {
				p := PartitionID{Topic: topic, Partition: partitionID}
				sm.Context().SetReplicaAssignment(p, ra)
				newPartitions = append(newPartitions, p)
			}
		}

		if len(newTopics) > 0 {
			this.controller.onNewTopicCreation(ctx, newTopics, newPartitions)
		}
	})
}

// PartitionChangeListener is subscribed per topic and reserved for future
// partition-count increases; it is currently a no-op on the controller's
// worker.
type PartitionChangeListener struct {
	controller *Controller
	topic      string
}

func newPartitionChangeListener(c *Controller, topic string) *PartitionChangeListener {
	return &PartitionChangeListener{controller: c, topic: topic}
}

func (this *PartitionChangeListener) onPartitionsChanged(path string, currentChildren []string) {
	if this.controller.sm.IsShutdown() {
		return
	}

	this.controller.enqueue(func() {
		// No-op: partition-count increases for an existing topic are not
		// driven by this core yet.
	})
}

// registerPartitionChangeListener subscribes a PartitionChangeListener for
// topic and remembers its cancel function so Controller.Stop can tear it
// down alongside the topic listener.
func (this *Controller) registerPartitionChangeListener(topic string) {
	if this.partitionListenerCancels == nil {
		this.partitionListenerCancels = make(map[string]func())
	}
	if _, already := this.partitionListenerCancels[topic]; already {
		return
	}

	l := newPartitionChangeListener(this, topic)
	cancel := this.store.SubscribeChildChanges(partitionsPath(topic), l.onPartitionsChanged)
	this.partitionListenerCancels[topic] = cancel
}

// registerListeners wires the topic-change listener onto the metadata
// store's /brokers/topics path and returns a cancel function.
func registerListeners(ctx context.Context, store metastore.Store, l *TopicChangeListener) func() {
	return store.SubscribeChildChanges(brokerTopicsPath, func(path string, children []string) {
		l.onTopicsChanged(ctx, path, children)
	})
}
