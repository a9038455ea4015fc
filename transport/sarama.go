// Package transport supplies a concrete controller.SendFunc. The
// controller core only depends on an injected send function; this package
// is the one concrete adapter this repository ships, resolving broker ids
// to addresses from the cluster's own metadata via sarama.
package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	log "github.com/funkygao/log4go"
	"github.com/funkygao/partition-controller/controller"
)

// BrokerResolver maps a broker id to its host:port, refreshed from the
// cluster's own metadata via a sarama.Client.
type BrokerResolver struct {
	mu     sync.Mutex
	client sarama.Client
}

// NewBrokerResolver dials seedBrokers with sarama to bootstrap cluster
// metadata.
func NewBrokerResolver(seedBrokers []string) (*BrokerResolver, error) {
	client, err := sarama.NewClient(seedBrokers, sarama.NewConfig())
	if err != nil {
		return nil, err
	}
	return &BrokerResolver{client: client}, nil
}

// Addr returns the host:port for id, refreshing metadata once if id is not
// yet known.
func (this *BrokerResolver) Addr(id controller.BrokerID) (string, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	for _, b := range this.client.Brokers() {
		if b.ID() == int32(id) {
			return b.Addr(), nil
		}
	}

	if err := this.client.RefreshMetadata(); err != nil {
		return "", err
	}
	for _, b := range this.client.Brokers() {
		if b.ID() == int32(id) {
			return b.Addr(), nil
		}
	}

	return "", fmt.Errorf("broker %d not found in cluster metadata", id)
}

// Close releases the underlying sarama client.
func (this *BrokerResolver) Close() error {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.client.Close()
}

// Sender is a controller.SendFunc implementation that resolves each
// broker id to an address via BrokerResolver and delivers the request as
// a JSON frame over a plain TCP connection, fire-and-forget, with no
// reply read. The Kafka wire encoding of LeaderAndIsrRequest belongs to
// the replica-side transport, which is a separate subsystem.
type Sender struct {
	resolver    *BrokerResolver
	dialTimeout time.Duration
}

// NewSender returns a Sender over resolver.
func NewSender(resolver *BrokerResolver) *Sender {
	return &Sender{resolver: resolver, dialTimeout: 5 * time.Second}
}

// Send implements controller.SendFunc.
func (this *Sender) Send(brokerID controller.BrokerID, req *controller.LeaderAndIsrRequest) error {
	addr, err := this.resolver.Addr(brokerID)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", addr, this.dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(this.dialTimeout))
	if _, err := conn.Write(data); err != nil {
		return err
	}

	log.Debug("sent leader-and-isr request to broker %d (%s): %d partitions", brokerID, addr, len(req.Partitions))
	return nil
}
