package mq

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"atelier/internal/pkg/logger"
)

const (
	attemptsHeader  = "x-attempts"
	lastErrorHeader = "x-last-error"
)

// FailureHandler moves messages a consumer could not process onto a retry
// topic, and onto a dead-letter topic once the attempt budget is spent. The
// consumer commits the original offset afterwards, so the partition never
// blocks behind one bad message.
type FailureHandler struct {
	writer      *kafka.Writer
	maxAttempts int
}

func NewFailureHandler(brokers []string, maxAttempts int) *FailureHandler {
	return &FailureHandler{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		maxAttempts: maxAttempts,
	}
}

// Handle forwards msg to "<topic>.retry", or "<topic>.dlt" once it has been
// attempted maxAttempts times.
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	attempts := attemptCount(msg.Headers) + 1

	target := msg.Topic + ".retry"
	if attempts >= h.maxAttempts {
		target = msg.Topic + ".dlt"
	}

	headers := append(stripBookkeeping(msg.Headers),
		kafka.Header{Key: attemptsHeader, Value: []byte(strconv.Itoa(attempts))},
		kafka.Header{Key: lastErrorHeader, Value: []byte(cause.Error())},
	)

	forward := kafka.Message{Topic: target, Key: msg.Key, Value: msg.Value, Headers: headers}
	if err := h.writer.WriteMessages(ctx, forward); err != nil {
		// the offset commit still happens; losing the forward means the
		// message is only recoverable from the source topic's retention
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", target).
			Str("key", string(msg.Key)).
			Msg("failed to forward unprocessable message")
		return
	}
	logger.Ctx(ctx).Warn().
		Str("topic", target).
		Int("attempts", attempts).
		Err(cause).
		Msg("message handed off after processing failure")
}

func (h *FailureHandler) Close() error {
	return h.writer.Close()
}

func attemptCount(headers []kafka.Header) int {
	for _, header := range headers {
		if header.Key == attemptsHeader {
			if n, err := strconv.Atoi(string(header.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

func stripBookkeeping(headers []kafka.Header) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
	for _, header := range headers {
		if header.Key == attemptsHeader || header.Key == lastErrorHeader {
			continue
		}
		out = append(out, header)
	}
	return out
}
