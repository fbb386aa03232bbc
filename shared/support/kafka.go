package support

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// AuditEvent is the wire shape of an audit entry on the event topic.
type AuditEvent struct {
	ID            string    `json:"id"`
	SupportUserID string    `json:"support_user_id"`
	TenantID      string    `json:"tenant_id"`
	Action        string    `json:"action"`
	Reason        string    `json:"reason,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditEventProducer mirrors audit entries to Kafka with a worker pool so
// publishing never blocks the synchronous audit write.
type AuditEventProducer struct {
	writer       *kafka.Writer
	eventChan    chan AuditEvent
	workerCount  int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewAuditEventProducer creates a producer for the given broker and topic
func NewAuditEventProducer(broker, topic string) *AuditEventProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	p := &AuditEventProducer{
		writer:       writer,
		eventChan:    make(chan AuditEvent, 1000),
		workerCount:  4,
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

// worker drains the event channel and publishes synchronously.
func (p *AuditEventProducer) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case event := <-p.eventChan:
			if err := p.publishSync(event); err != nil {
				logrus.WithError(err).WithField("worker", id).
					Warn("failed to publish audit event")
			}
		case <-p.shutdownChan:
			return
		}
	}
}

// Publish queues an audit event without blocking. Events are dropped with a
// warning when the queue is full; the Postgres row is the record of truth.
func (p *AuditEventProducer) Publish(event AuditEvent) {
	select {
	case p.eventChan <- event:
	default:
		logrus.WithField("action", event.Action).
			Warn("audit event queue full, event dropped")
	}
}

// publishSync sends one event to Kafka.
func (p *AuditEventProducer) publishSync(event AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.TenantID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	return nil
}

// Close shuts down the workers and the underlying writer.
func (p *AuditEventProducer) Close() error {
	close(p.shutdownChan)
	p.wg.Wait()

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close audit event writer: %w", err)
	}
	return nil
}
