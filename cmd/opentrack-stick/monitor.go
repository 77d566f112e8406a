package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Monitor WebSocket: hub + per-client pumps + frame broadcaster
// ============================================================================
//
// Optional live view of the pipeline: every dispatched frame is published
// as a JSON text message so an overlay or debugging page can watch raw
// tracking values next to the cooked joystick values.
//
// Design constraints:
//   - The ingest loop must never block on observers: the dispatcher sends
//     snapshots into a buffered channel and drops when it is full.
//   - One slow websocket client must not block others: per-client write
//     pumps with bounded queues; a client that can't keep up is dropped.
//   - Frames arrive at up to 1 kHz; broadcasts are coalesced latest-wins
//     to at most one every monitorCoalesceWindow.
//
// Messages are JSON with an envelope: {type, ts, data}. The first message
// on connect is "stream_init" describing the bound outputs; after that
// "frame" messages carry snapshots.
//
// ============================================================================

// outputSnapshot is one cooked value within a frame.
type outputSnapshot struct {
	Channel string `json:"channel"`
	Output  string `json:"output"`
	Value   int32  `json:"value"`
}

// frameSnapshot is the JSON `data` payload for "frame" messages.
type frameSnapshot struct {
	Raw     [6]float64       `json:"raw"`
	Outputs []outputSnapshot `json:"outputs"`
	Settled bool             `json:"settled"`
}

// streamInitData is the JSON `data` payload for "stream_init".
type streamInitData struct {
	Device   string   `json:"device"`
	Channels []string `json:"channels"`
	Bindings []string `json:"bindings"`
}

// envelope is the wire format for monitor messages.
type envelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// Frames are coalesced latest-wins within this window before
	// broadcasting; observers want recency, not every 1 ms sample.
	monitorCoalesceWindow = 50 * time.Millisecond
)

// ----------------------------------------------------------------------------
// Hub
// ----------------------------------------------------------------------------

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

func NewHub(logger *slog.Logger, sendBuf, broadcastBuf int) *Hub {
	if sendBuf <= 0 {
		sendBuf = 32
	}
	if broadcastBuf <= 0 {
		broadcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, broadcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("monitor client connected", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first; don't mutate the map mid-range.
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
		safeCloseChan(c.send)
		h.logger.Info("monitor client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a serialized frame for fanout. Never blocks;
// drops when the hub queue is full.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// ----------------------------------------------------------------------------
// Client
// ----------------------------------------------------------------------------

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// writePump writes queued messages and pings to the websocket. Exits on
// write error or when send is closed by the hub.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump discards inbound messages; it exists to handle control frames
// and to notice disconnects, at which point it unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.unregister <- c
			return
		}
	}
}

// ----------------------------------------------------------------------------
// HTTP handler + broadcaster + server lifecycle
// ----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	// Local observability endpoint; no origin restrictions.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type monitorServer struct {
	logger *slog.Logger
	hub    *Hub
	init   streamInitData
}

func (s *monitorServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("monitor upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Queue stream_init before registering: frames only start flowing
	// once the hub knows the client, so the init message is always
	// first on the wire. The send queue is empty here, no blocking.
	now := time.Now().UTC()
	msg, err := json.Marshal(envelope{Type: "stream_init", Ts: &now, Data: s.init})
	if err != nil {
		s.logger.Error("encode stream_init", "error", err)
		_ = conn.Close()
		return
	}
	client.send <- msg

	s.hub.register <- client

	// Pumps outlive the handler; the hub owns the connection lifetime.
	go client.writePump()
	go client.readPump()
}

// runBroadcaster coalesces frame snapshots latest-wins and fans the most
// recent one out through the hub at most once per monitorCoalesceWindow.
func runBroadcaster(ctx context.Context, hub *Hub, frames <-chan frameSnapshot, logger *slog.Logger) {
	ticker := time.NewTicker(monitorCoalesceWindow)
	defer ticker.Stop()

	var pending *frameSnapshot

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-frames:
			if !ok {
				return
			}
			pending = &snap

		case <-ticker.C:
			if pending == nil {
				continue
			}
			ts := time.Now().UTC()
			msg, err := json.Marshal(envelope{Type: "frame", Ts: &ts, Data: *pending})
			pending = nil
			if err != nil {
				logger.Warn("monitor marshal failed", "error", err)
				continue
			}
			hub.BroadcastBytes(msg)
		}
	}
}

// runMonitor serves the websocket monitor on the given port until ctx is
// canceled. Blocks; intended to run on its own goroutine.
func runMonitor(ctx context.Context, port int, frames <-chan frameSnapshot, init streamInitData, logger *slog.Logger) error {
	hub := NewHub(logger, 0, 0)

	mux := http.NewServeMux()
	ms := &monitorServer{logger: logger, hub: hub, init: init}
	mux.HandleFunc("/ws", ms.handleWS)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		runBroadcaster(ctx, hub, frames, logger)
		return nil
	})
	g.Go(func() error {
		logger.Info("monitor listening", "addr", srv.Addr, "path", "/ws")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("monitor server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
