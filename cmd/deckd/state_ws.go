package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps
// ============================================================================
//
// External UIs attach here instead of an in-process GUI. On connect a client
// receives a "state_init" snapshot; afterwards every reducer Broadcast is
// fanned out as a JSON envelope {type, ts, data}.
//
// Design constraints:
//   - DeckState stays dispatcher-owned; the hub keeps its own cache, fed only
//     through Broadcasts.
//   - Per-client write pumps so one slow client doesn't block others; slow
//     clients are disconnected when their send buffer fills.
// ============================================================================

// wsEnvelope is the wire format for WS messages.
type wsEnvelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// wsSnapshot is the "state_init" payload.
type wsSnapshot struct {
	Volume        int      `json:"volume"`
	Muted         bool     `json:"muted"`
	LinkConnected bool     `json:"link_connected"`
	LinkPort      string   `json:"link_port"`
	ButtonKeys    []string `json:"button_keys"`
}

type wsSerialLineData struct {
	Line string `json:"line"`
}

type wsVolumeChangedData struct {
	Volume int `json:"volume"`
	Delta  int `json:"delta"`
}

type wsMuteChangedData struct {
	Muted bool `json:"muted"`
}

type wsActionData struct {
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
}

type wsLinkStatusData struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port"`
	Reason    string `json:"reason,omitempty"`
}

type wsButtonsChangedData struct {
	Keys []string `json:"keys"`
}

// broadcastEnvelope serializes a Broadcast into its wire envelope.
// Returns false for broadcasts that have no external representation.
func broadcastEnvelope(b Broadcast) ([]byte, bool) {
	var env wsEnvelope

	stamp := func(at time.Time) *time.Time {
		if at.IsZero() {
			now := time.Now()
			return &now
		}
		return &at
	}

	switch b := b.(type) {
	case BroadcastSerialLine:
		env = wsEnvelope{Type: "serial_line", Ts: stamp(b.At), Data: wsSerialLineData{Line: b.Raw}}
	case BroadcastVolumeChanged:
		env = wsEnvelope{Type: "volume_changed", Ts: stamp(b.At), Data: wsVolumeChangedData{Volume: b.Volume, Delta: b.Delta}}
	case BroadcastMuteChanged:
		env = wsEnvelope{Type: "mute_changed", Ts: stamp(b.At), Data: wsMuteChangedData{Muted: b.Muted}}
	case BroadcastMediaToggled:
		env = wsEnvelope{Type: "media_toggled", Ts: stamp(b.At)}
	case BroadcastActionDispatched:
		env = wsEnvelope{Type: "action_dispatched", Ts: stamp(b.At), Data: wsActionData{Key: b.Key, Kind: b.Kind}}
	case BroadcastActionFailed:
		env = wsEnvelope{Type: "action_failed", Ts: stamp(b.At), Data: wsActionData{Key: b.Key, Kind: b.Kind, Error: b.Err}}
	case BroadcastLinkStatus:
		env = wsEnvelope{Type: "link_status", Ts: stamp(time.Time{}), Data: wsLinkStatusData{Connected: b.Connected, Port: b.Port, Reason: b.Reason}}
	case BroadcastButtonsChanged:
		env = wsEnvelope{Type: "buttons_changed", Ts: stamp(time.Time{}), Data: wsButtonsChangedData{Keys: b.Keys}}
	default:
		// Token discards and store errors stay in the logs.
		return nil, false
	}

	msg, err := json.Marshal(env)
	if err != nil {
		return nil, false
	}
	return msg, true
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int

	// Cached deck state for state_init, fed exclusively through Broadcasts.
	stateMu sync.Mutex
	state   wsSnapshot
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, buttonKeys []string) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, 128),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    32,
		state: wsSnapshot{
			ButtonKeys: buttonKeys,
		},
	}
}

// OnBroadcast is the sink wired into the dispatcher: it updates the snapshot
// cache and fans the envelope out to clients. Called from the dispatch
// goroutine; must not block.
func (h *Hub) OnBroadcast(b Broadcast) {
	h.updateState(b)

	msg, ok := broadcastEnvelope(b)
	if !ok {
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

func (h *Hub) updateState(b Broadcast) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	switch b := b.(type) {
	case BroadcastVolumeChanged:
		h.state.Volume = b.Volume
	case BroadcastMuteChanged:
		h.state.Muted = b.Muted
	case BroadcastLinkStatus:
		h.state.LinkConnected = b.Connected
		h.state.LinkPort = b.Port
	case BroadcastButtonsChanged:
		h.state.ButtonKeys = b.Keys
	}
}

func (h *Hub) snapshot() wsSnapshot {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Avoid mutating the clients map while ranging over it.
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("ws writePump exiting", "remote_addr", c.remoteAddr, "error", err)
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("ws writePump exiting (ping)", "remote_addr", c.remoteAddr, "error", err)
				}
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP wiring
// ============================================================================

var upgrader = websocket.Upgrader{
	// Local daemon; UI clients connect from file:// or localhost origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (h *Hub) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		remoteAddr: r.RemoteAddr,
		logger:     h.logger,
	}

	// Queue the snapshot before registering so state_init precedes any
	// broadcast the client sees.
	now := time.Now()
	init, err := json.Marshal(wsEnvelope{Type: "state_init", Ts: &now, Data: h.snapshot()})
	if err == nil {
		client.send <- init
	}

	h.register <- client

	// The pumps are not tied to the request context: net/http cancels it when
	// this handler returns, which would tear the connection down prematurely.
	go client.writePump()
	go client.readPump()
}

// runStateWSServer serves the state websocket until ctx is canceled.
func runStateWSServer(ctx context.Context, cfg StateWSConfig, hub *Hub, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, hub.handleStateWS)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("state websocket listening", "addr", cfg.ListenAddr, "path", cfg.Path)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
