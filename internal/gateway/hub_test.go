package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(h *Hub, accountID string) *Client {
	return &Client{hub: h, send: make(chan []byte, 4), accountID: accountID}
}

func TestHubRoutesByAccount(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	alice := newHubClient(hub, "acct-alice")
	bob := newHubClient(hub, "acct-bob")
	hub.register <- alice
	hub.register <- bob

	// registration is async; wait for both to land
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 2
	}, time.Second, 5*time.Millisecond)

	hub.Broadcast("acct-alice", []byte(`{"orderId":"o-1"}`))

	select {
	case payload := <-alice.send:
		assert.JSONEq(t, `{"orderId":"o-1"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("alice never received the event")
	}

	select {
	case payload := <-bob.send:
		t.Fatalf("bob must not receive alice's event, got %s", payload)
	default:
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := newHubClient(hub, "acct-alice")
	hub.register <- client
	hub.unregister <- client

	require.Eventually(t, func() bool {
		select {
		case _, open := <-client.send:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	// broadcasting to a departed account is a no-op
	hub.Broadcast("acct-alice", []byte("late"))
}
