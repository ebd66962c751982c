// Copyright 2026 The Palisade Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package serve

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/holt/palisade/internal/audit"
)

const (
	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may go silent before the read side
	// gives up. pingInterval must be shorter so a healthy client always
	// has a pong in flight.
	pongWait     = 90 * time.Second
	pingInterval = 30 * time.Second

	// sendBuffer is the per-client outbound queue. A client that falls
	// this far behind is dropped.
	sendBuffer = 64
)

// hub fans decision events out to connected WebSocket clients.
type hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	SetEventSubscribers(n)
	return c
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	SetEventSubscribers(n)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast sends one event to every connected client. The send is
// non-blocking: a client whose queue is full is dropped rather than
// allowed to stall the gate.
func (h *hub) broadcast(event audit.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("serve: marshal broadcast event", "error", err)
		return
	}

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("serve: event client too slow, dropping")
		}
	}
	n := len(h.clients)
	h.mu.Unlock()
	SetEventSubscribers(n)
}

// closeAll disconnects every client, used during shutdown.
func (h *hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	SetEventSubscribers(0)
}

// writePump drains the client's send queue onto the wire and keeps the
// connection alive with pings. It exits when the queue is closed or a
// write fails; closing the connection wakes readPump for cleanup.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames. The feed is one-way, but reading is
// required to process pongs and notice a closed connection.
func (c *client) readPump(h *hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
