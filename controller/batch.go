package controller

import (
	"fmt"
	"sort"

	log "github.com/funkygao/log4go"
)

// SendFunc delivers one aggregated LeaderAndIsrRequest to a broker.
// Fire-and-forget: the batch does not wait for or interpret a reply.
// Concrete implementations (e.g. transport.Sender) live outside this
// package; the state machine only ever depends on this shape.
type SendFunc func(brokerID BrokerID, req *LeaderAndIsrRequest) error

// RequestBatch accumulates per-broker leader-and-ISR notifications during
// one handleStateChanges pass and flushes them atomically at the end.
// Coalescing N per-partition updates into one message per broker bounds
// worst-case controller-to-broker message count at O(brokers) per pass
// rather than O(partitions).
type RequestBatch struct {
	open            bool
	controllerEpoch int32
	pending         map[BrokerID][]LeaderAndIsrPartitionState
}

// NewRequestBatch returns an unopened batch.
func NewRequestBatch() *RequestBatch {
	return &RequestBatch{}
}

// NewBatch clears internal buffers and opens the batch. It fails if a
// batch is already open, since passes never interleave under the
// controller lock.
func (this *RequestBatch) NewBatch(controllerEpoch int32) error {
	if this.open {
		return ErrBatchAlreadyOpen
	}
	this.open = true
	this.controllerEpoch = controllerEpoch
	this.pending = make(map[BrokerID][]LeaderAndIsrPartitionState)
	return nil
}

// AddLeaderAndIsrRequestForBrokers appends one partition entry to the
// pending request for each broker id in brokerIDs.
func (this *RequestBatch) AddLeaderAndIsrRequestForBrokers(brokerIDs []BrokerID, topic string, partition int32, leaderIsr LeaderIsrAndControllerEpoch, replicas []BrokerID) {
	entry := LeaderAndIsrPartitionState{
		Topic:        topic,
		Partition:    partition,
		LeaderAndIsr: leaderIsr.LeaderAndIsr,
		Replicas:     append([]BrokerID(nil), replicas...),
	}

	for _, id := range brokerIDs {
		this.pending[id] = append(this.pending[id], entry)
	}
}

// SendRequestsToBrokers builds one aggregated LeaderAndIsrRequest per
// broker with pending entries and dispatches it via send. Brokers not in
// liveBrokers are skipped silently: there is no point notifying a broker
// that is not around to receive it. Closes the batch whether or not every
// send succeeds; the first error encountered is returned to the caller
// wrapped in ErrBatchFlush, after every live broker has been attempted.
func (this *RequestBatch) SendRequestsToBrokers(liveBrokers map[BrokerID]bool, send SendFunc) error {
	defer func() {
		this.open = false
		this.pending = nil
	}()

	brokerIDs := make([]BrokerID, 0, len(this.pending))
	for id := range this.pending {
		brokerIDs = append(brokerIDs, id)
	}
	sort.Slice(brokerIDs, func(i, j int) bool { return brokerIDs[i] < brokerIDs[j] })

	var firstErr error
	for _, id := range brokerIDs {
		if !liveBrokers[id] {
			log.Debug("skip leader-and-isr request to dead broker %d", id)
			continue
		}

		req := &LeaderAndIsrRequest{
			ControllerEpoch: this.controllerEpoch,
			Partitions:      this.pending[id],
		}
		if err := send(id, req); err != nil {
			log.Error("leader-and-isr request to broker %d: %s", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return fmt.Errorf("%w: %s", ErrBatchFlush, firstErr)
	}
	return nil
}
