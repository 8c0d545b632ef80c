package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"bintracker/internal/fleet"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher appends fleet events to a topic, keyed by event type.
type KafkaPublisher struct {
	w       messageWriter
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewKafkaPublisher writes asynchronously; delivery failures are logged from
// the writer's completion callback.
func NewKafkaPublisher(brokers []string, topic string, log logrus.FieldLogger) *KafkaPublisher {
	log = log.WithFields(logrus.Fields{"component": "kafka", "topic": topic})
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.WithError(err).WithField("messages", len(msgs)).Warn("fleet events not delivered")
			}
		},
	}
	return newKafkaPublisher(w, log)
}

func newKafkaPublisher(w messageWriter, log logrus.FieldLogger) *KafkaPublisher {
	return &KafkaPublisher{w: w, timeout: 2 * time.Second, log: log}
}

func (p *KafkaPublisher) Publish(evt fleet.Event) {
	value, err := json.Marshal(evt)
	if err != nil {
		p.log.WithError(err).Warn("fleet event not encoded")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	msg := kafka.Message{Key: []byte(evt.Type), Value: value, Time: evt.At}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithField("event", evt.Type).Warn("fleet event not written")
	}
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
