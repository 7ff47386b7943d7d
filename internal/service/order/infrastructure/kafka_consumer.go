package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/order/domain"
)

// paymentEventHandler is the application callback a consumer drives.
type paymentEventHandler func(ctx context.Context, event *domain.PaymentEvent) error

// PaymentConsumer is a driving adapter: it reads one payment topic and feeds
// each event to the orchestrator. Delivery is at-least-once; the handler is
// idempotent, so a redelivery after a failed offset commit is harmless.
type PaymentConsumer struct {
	reader   *kafka.Reader
	handler  paymentEventHandler
	failures *mq.FailureHandler
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

func NewPaymentConsumer(brokers []string, topic, groupID string, handler paymentEventHandler, failures *mq.FailureHandler) *PaymentConsumer {
	return &PaymentConsumer{
		reader:   mq.NewKafkaReader(brokers, topic, groupID),
		handler:  handler,
		failures: failures,
	}
}

// Start launches the consume loop. Long-running; returns immediately.
func (c *PaymentConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("payment consumer started")
		for {
			if c.stopped.Load() {
				return
			}
			// FetchMessage instead of ReadMessage so the offset commit stays
			// under our control.
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("payment consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(time.Second)
				continue
			}

			c.processMessage(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit offset")
			}
		}
	}()
}

// Stop drains the loop and closes the reader.
func (c *PaymentConsumer) Stop() {
	c.stopped.Store(true)
	c.reader.Close()
	c.wg.Wait()
}

func (c *PaymentConsumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	var event domain.PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// poison message; skip rather than block the partition
		logger.Ctx(parentCtx).Error().Err(err).
			Str("topic", msg.Topic).
			Msg("unparseable payment event skipped")
		return
	}

	propagator := otel.GetTextMapPropagator()
	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	ctx := propagator.Extract(parentCtx, &carrier)

	if err := c.handler(ctx, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", event.OrderID).
			Msg("payment event handling failed, handing off")
		if c.failures != nil {
			c.failures.Handle(ctx, msg, err)
		}
	}
}
