// Package telemetry wraps github.com/funkygao/go-metrics with the handful
// of counters the partition controller core emits. The controller has no
// user-visible failures, only log lines and these metrics.
package telemetry

import (
	metrics "github.com/funkygao/go-metrics"
)

// Registry bundles the controller's observable counters. The zero value
// is not usable; construct with New.
type Registry struct {
	registry metrics.Registry

	// OfflinePartitionRate counts every failed state change that leaves
	// (or finds) a partition without a live leader.
	OfflinePartitionRate metrics.Counter

	// LeaderElectionRate counts every successful leader/ISR write: the
	// initial create in initializeLeaderAndIsrForPartition and each
	// electLeaderForPartition conditional write.
	LeaderElectionRate metrics.Counter

	// UncleanLeaderElectionRate counts elections where the chosen leader
	// was not a member of the prior ISR (i.e. selector.Offline's fallback
	// to any live assigned replica fired).
	UncleanLeaderElectionRate metrics.Counter
}

// New registers and returns a fresh Registry.
func New() *Registry {
	r := metrics.NewRegistry()
	return &Registry{
		registry:                  r,
		OfflinePartitionRate:      metrics.NewRegisteredCounter("controller.offline-partition-rate", r),
		LeaderElectionRate:        metrics.NewRegisteredCounter("controller.leader-election-rate", r),
		UncleanLeaderElectionRate: metrics.NewRegisteredCounter("controller.unclean-leader-election-rate", r),
	}
}

// MetricsRegistry exposes the underlying metrics.Registry, e.g. for a
// reporter goroutine to flush somewhere durable.
func (this *Registry) MetricsRegistry() metrics.Registry {
	return this.registry
}

// OnOffline implements controller.MetricsSink.
func (this *Registry) OnOffline() {
	this.OfflinePartitionRate.Inc(1)
}

// OnLeaderElected implements controller.MetricsSink.
func (this *Registry) OnLeaderElected(unclean bool) {
	this.LeaderElectionRate.Inc(1)
	if unclean {
		this.UncleanLeaderElectionRate.Inc(1)
	}
}
