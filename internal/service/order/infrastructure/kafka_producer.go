package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"atelier/internal/pkg/mq"
	"atelier/internal/service/order/domain"
	"atelier/internal/service/order/domain/port"
)

// KafkaEventPublisher routes each event to the writer for its topic. Messages
// are keyed by order id, which keeps every event of one order on one
// partition.
type KafkaEventPublisher struct {
	writers map[string]*kafka.Writer
}

func NewKafkaEventPublisher(brokers []string, topics ...string) *KafkaEventPublisher {
	writers := make(map[string]*kafka.Writer, len(topics))
	for _, topic := range topics {
		writers[topic] = mq.NewKafkaWriter(brokers, topic)
	}
	return &KafkaEventPublisher{writers: writers}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	writer, ok := p.writers[event.Type]
	if !ok {
		return errors.Errorf("no writer configured for topic %s", event.Type)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	if err := mq.ProduceMessage(ctx, writer, []byte(event.OrderID), payload); err != nil {
		return errors.Wrapf(port.ErrPublishUnavailable, "write %s: %v", event.Type, err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() {
	for _, w := range p.writers {
		w.Close()
	}
}
