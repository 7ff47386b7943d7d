package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestAttemptCount(t *testing.T) {
	assert.Equal(t, 0, attemptCount(nil))
	assert.Equal(t, 0, attemptCount([]kafka.Header{{Key: "x-attempts", Value: []byte("junk")}}))
	assert.Equal(t, 2, attemptCount([]kafka.Header{
		{Key: "traceparent", Value: []byte("00-abc")},
		{Key: "x-attempts", Value: []byte("2")},
	}))
}

func TestStripBookkeeping(t *testing.T) {
	in := []kafka.Header{
		{Key: "traceparent", Value: []byte("00-abc")},
		{Key: "x-attempts", Value: []byte("2")},
		{Key: "x-last-error", Value: []byte("boom")},
	}
	out := stripBookkeeping(in)
	assert.Len(t, out, 1)
	assert.Equal(t, "traceparent", out[0].Key)
}
