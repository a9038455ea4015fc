package controller

import (
	"testing"

	"github.com/funkygao/assert"
)

func TestRequestBatchRejectsDoubleOpen(t *testing.T) {
	b := NewRequestBatch()
	assert.Equal(t, nil, b.NewBatch(1))
	assert.Equal(t, true, b.NewBatch(1) == ErrBatchAlreadyOpen)
}

func TestRequestBatchCoalescesPerBroker(t *testing.T) {
	b := NewRequestBatch()
	assert.Equal(t, nil, b.NewBatch(1))

	li := LeaderIsrAndControllerEpoch{
		LeaderAndIsr:    LeaderAndIsr{Leader: 1, LeaderEpoch: 0, Isr: []BrokerID{1, 2}},
		ControllerEpoch: 1,
	}
	b.AddLeaderAndIsrRequestForBrokers([]BrokerID{1, 2}, "orders", 0, li, []BrokerID{1, 2})
	b.AddLeaderAndIsrRequestForBrokers([]BrokerID{1, 2}, "orders", 1, li, []BrokerID{1, 2})

	var sent []BrokerID
	err := b.SendRequestsToBrokers(map[BrokerID]bool{1: true, 2: true}, func(id BrokerID, req *LeaderAndIsrRequest) error {
		sent = append(sent, id)
		assert.Equal(t, 2, len(req.Partitions))
		return nil
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(sent))
}

func TestRequestBatchSkipsDeadBrokers(t *testing.T) {
	b := NewRequestBatch()
	assert.Equal(t, nil, b.NewBatch(1))

	li := LeaderIsrAndControllerEpoch{LeaderAndIsr: LeaderAndIsr{Leader: 1, Isr: []BrokerID{1}}, ControllerEpoch: 1}
	b.AddLeaderAndIsrRequestForBrokers([]BrokerID{1, 2}, "orders", 0, li, []BrokerID{1, 2})

	var sent []BrokerID
	err := b.SendRequestsToBrokers(map[BrokerID]bool{1: true}, func(id BrokerID, req *LeaderAndIsrRequest) error {
		sent = append(sent, id)
		return nil
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(sent))
	assert.Equal(t, BrokerID(1), sent[0])
}

func TestRequestBatchClosesAfterFlushEvenOnError(t *testing.T) {
	b := NewRequestBatch()
	assert.Equal(t, nil, b.NewBatch(1))

	li := LeaderIsrAndControllerEpoch{LeaderAndIsr: LeaderAndIsr{Leader: 1, Isr: []BrokerID{1}}, ControllerEpoch: 1}
	b.AddLeaderAndIsrRequestForBrokers([]BrokerID{1}, "orders", 0, li, []BrokerID{1})

	err := b.SendRequestsToBrokers(map[BrokerID]bool{1: true}, func(id BrokerID, req *LeaderAndIsrRequest) error {
		return ErrMetadataStore
	})
	if err == nil {
		t.Fatal("expected an error")
	}

	assert.Equal(t, nil, b.NewBatch(1))
}
