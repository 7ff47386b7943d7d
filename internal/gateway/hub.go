// Package gateway pushes order status changes to connected back-office
// clients over WebSocket. It consumes the order topics and fans each event
// out to the sockets of the account it belongs to.
package gateway

import (
	"context"
	"sync"

	"atelier/internal/pkg/logger"
)

// Hub tracks the active connections per account and routes event payloads to
// them. Registration goes through channels so the bookkeeping runs on one
// goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]map[*Client]struct{}),
	}
}

// Run blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.accountID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.accountID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			logger.Ctx(ctx).Info().Str("account_id", client.accountID).Msg("status client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[client.accountID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
					if len(set) == 0 {
						delete(h.clients, client.accountID)
					}
				}
			}
			h.mu.Unlock()
			logger.Ctx(ctx).Info().Str("account_id", client.accountID).Msg("status client disconnected")
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast delivers payload to every connection of the account. A client
// whose send buffer is full is dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(accountID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[accountID] {
		select {
		case client.send <- payload:
		default:
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}
