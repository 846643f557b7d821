// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// clientBuffer is how many events a slow client may fall behind before
	// it starts missing them.
	clientBuffer = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	// The editor is served from a different origin during development.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

type hubClient struct {
	id   string
	send chan []byte
}

// Hub broadcasts chain events to connected websocket clients.
//
// Description:
//
//	Hub implements pipeline.Observer. OnEvent never blocks the chain: each
//	client has a bounded queue and events that do not fit are dropped for
//	that client only.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	closed  bool
}

// NewHub creates a hub with no clients.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With(slog.String("component", "event_hub")),
		clients: make(map[*hubClient]struct{}),
	}
}

// OnEvent implements pipeline.Observer.
func (h *Hub) OnEvent(e pipeline.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn("failed to encode chain event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("dropping chain event for slow client",
				slog.String("client", c.id),
				slog.String("type", string(e.Type)),
			)
		}
	}
	if len(h.clients) > 0 {
		eventsBroadcast.Inc()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	wsClients.Set(0)
}

func (h *Hub) register() (*hubClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &hubClient{id: uuid.NewString()[:12], send: make(chan []byte, clientBuffer)}
	h.clients[c] = struct{}{}
	wsClients.Set(float64(len(h.clients)))
	return c, true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		wsClients.Set(float64(len(h.clients)))
	}
}

// handleEvents upgrades the request and streams events until the client
// goes away or the hub closes.
func (h *Hub) handleEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade the websocket", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	client, ok := h.register()
	if !ok {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		return
	}
	h.logger.Info("websocket client connected", slog.String("client", client.id))

	go h.readLoop(ws, client)
	h.writeLoop(ws, client)
	h.logger.Info("websocket client disconnected", slog.String("client", client.id))
}

// readLoop discards client messages; it exists to process pongs and to
// notice when the client closes the connection.
func (h *Hub) readLoop(ws *websocket.Conn, client *hubClient) {
	defer h.unregister(client)
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(ws *websocket.Conn, client *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(client)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(client)
				return
			}
		}
	}
}
