package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/order/domain"
)

// Feed consumes the order topics and pushes each event to the owning
// account's sockets. Every gateway node consumes with its own group id so
// all nodes see all events; the hub decides which connections care.
type Feed struct {
	hub     *Hub
	readers []*kafka.Reader
}

func NewFeed(hub *Hub, brokers []string, groupID string) *Feed {
	return &Feed{
		hub: hub,
		readers: []*kafka.Reader{
			mq.NewKafkaReader(brokers, domain.TopicOrderCreated, groupID),
			mq.NewKafkaReader(brokers, domain.TopicOrderCancelled, groupID),
		},
	}
}

// Run starts one consume loop per topic and blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	for _, reader := range f.readers {
		go f.consume(ctx, reader)
	}
	<-ctx.Done()
}

func (f *Feed) consume(ctx context.Context, reader *kafka.Reader) {
	defer reader.Close()
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("status feed read failed, retrying")
			time.Sleep(time.Second)
			continue
		}

		var event domain.Event
		if err := json.Unmarshal(msg.Value, &event); err == nil && event.AccountID != "" {
			f.hub.Broadcast(event.AccountID, msg.Value)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("status feed commit failed")
		}
	}
}
