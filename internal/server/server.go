package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/lotas/tabtimer/internal/applog"
	"github.com/lotas/tabtimer/internal/router"
	"github.com/lotas/tabtimer/internal/types"
)

// ErrNotConnected is returned by host calls while no extension is connected.
var ErrNotConnected = errors.New("extension not connected")

// DefaultCallTimeout bounds how long a command waits for its response.
const DefaultCallTimeout = 10 * time.Second

// IncomingMsg is a message from the extension to the daemon.
type IncomingMsg struct {
	Type     string          `json:"type"`
	Tab      json.RawMessage `json:"tab,omitempty"`
	Tabs     json.RawMessage `json:"tabs,omitempty"`
	TabID    int             `json:"tabId,omitempty"`
	WindowID int             `json:"windowId,omitempty"`
	// Request fields
	Action string          `json:"action,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	// Command response fields
	ID    string `json:"id,omitempty"`
	OK    *bool  `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// OutgoingMsg is a command or push from the daemon to the extension.
type OutgoingMsg struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	TabID    int    `json:"tabId,omitempty"`
	WindowID int    `json:"windowId,omitempty"`
	// Notification fields
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message,omitempty"`
	Count    *int   `json:"count,omitempty"`
	// Reply fields
	OK    *bool  `json:"ok,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Dispatcher receives what the extension reports. *router.Router satisfies it.
type Dispatcher interface {
	HandleCreated(ctx context.Context, ht types.HostTab)
	HandleUpdated(ctx context.Context, ht types.HostTab)
	HandleRemoved(ctx context.Context, id int)
	HandleActivated(ctx context.Context, id, windowID int)
	HandleWindowFocusChanged(ctx context.Context, windowID int)
	Reconcile(ctx context.Context, tabs []types.HostTab)
	Sync(ctx context.Context) error
	Do(ctx context.Context, req router.Request) (any, error)
	Tab(id int) (*types.TrackedTab, bool)
}

// Server manages the WebSocket connection to the extension. It is the
// router's Host and Notifier.
type Server struct {
	port        int
	callTimeout time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	connCtx  context.Context
	pending  map[string]chan IncomingMsg
	dispatch Dispatcher
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:        port,
		callTimeout: DefaultCallTimeout,
		pending:     make(map[string]chan IncomingMsg),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Attach sets the receiver of extension events and requests. It must be
// called before the first connection.
func (s *Server) Attach(d Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch = d
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send sends a message to the connected extension. It is a no-op while
// disconnected.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	applog.Debug("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Call sends a command and waits for the extension's response.
func (s *Server) Call(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	if !s.Connected() {
		return IncomingMsg{}, ErrNotConnected
	}
	msg.ID = uuid.NewString()
	ch := make(chan IncomingMsg, 1)

	s.mu.Lock()
	s.pending[msg.ID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	if err := s.Send(msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	select {
	case resp := <-ch:
		if resp.OK != nil && !*resp.OK {
			return resp, responseError(msg, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ctx.Err())
	}
}

// responseError maps an extension-side failure to the router's sentinels.
func responseError(msg OutgoingMsg, text string) error {
	if strings.Contains(strings.ToLower(text), "no tab with id") ||
		strings.Contains(strings.ToLower(text), "not found") {
		return fmt.Errorf("%s %d: %w", msg.Action, msg.TabID, router.ErrTabNotFound)
	}
	return fmt.Errorf("%s %d: %s", msg.Action, msg.TabID, text)
}

func (s *Server) ListTabs(ctx context.Context) ([]types.HostTab, error) {
	resp, err := s.Call(ctx, OutgoingMsg{Action: "query-tabs"})
	if err != nil {
		return nil, err
	}
	return ParseTabs(resp.Tabs)
}

func (s *Server) GetTab(ctx context.Context, id int) (types.HostTab, error) {
	resp, err := s.Call(ctx, OutgoingMsg{Action: "get-tab", TabID: id})
	if err != nil {
		return types.HostTab{}, err
	}
	if len(resp.Tab) == 0 || string(resp.Tab) == "null" {
		return types.HostTab{}, fmt.Errorf("get-tab %d: %w", id, router.ErrTabNotFound)
	}
	return ParseTab(resp.Tab)
}

func (s *Server) CloseTab(ctx context.Context, id int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: "close", TabID: id})
	return err
}

func (s *Server) ActivateTab(ctx context.Context, id int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: "activate", TabID: id})
	return err
}

func (s *Server) FocusWindow(ctx context.Context, windowID int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: "focus-window", WindowID: windowID})
	return err
}

func (s *Server) Notify(_ context.Context, n types.Notification) error {
	return s.Send(OutgoingMsg{
		ID:       uuid.NewString(),
		Action:   "notify",
		TabID:    n.TabID,
		Category: string(n.Category),
		Title:    n.Title,
		Message:  n.Message,
	})
}

func (s *Server) PublishStats(_ context.Context, st types.RealTimeStats) error {
	return s.Send(OutgoingMsg{ID: uuid.NewString(), Action: "stats", Data: st})
}

func (s *Server) PublishClosingSoon(_ context.Context, count int) error {
	return s.Send(OutgoingMsg{ID: uuid.NewString(), Action: "closing-soon", Count: &count})
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // 16 MB, a snapshot of many tabs can be large

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Events are applied in arrival order on one goroutine. The queue
		// never blocks the read loop, which must stay free to deliver the
		// responses that event handlers wait on.
		events := newEventQueue()
		go events.run(ctx)

		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		d := s.dispatch
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		if d != nil {
			events.push(func() {
				if err := d.Sync(ctx); err != nil {
					applog.Error("ws.sync", err)
				}
			})
		}

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			applog.Debug("ws.recv", "type", msg.Type, "id", msg.ID)
			s.route(ctx, d, events, msg)
		}
	})
}

// route delivers one message. Responses complete a pending Call; requests
// run on their own goroutine; everything else is queued in order.
func (s *Server) route(ctx context.Context, d Dispatcher, events *eventQueue, msg IncomingMsg) {
	if msg.Type == "response" {
		s.mu.Lock()
		ch, ok := s.pending[msg.ID]
		s.mu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
		return
	}
	if d == nil {
		return
	}
	if msg.Type == "request" {
		go s.serveRequest(ctx, d, msg)
		return
	}

	fn, err := eventFunc(ctx, d, msg)
	if err != nil {
		applog.Error("ws.event", err, "type", msg.Type)
		return
	}
	events.push(fn)
}

func eventFunc(ctx context.Context, d Dispatcher, msg IncomingMsg) (func(), error) {
	switch msg.Type {
	case "tabs.snapshot":
		tabs, err := ParseTabs(msg.Tabs)
		if err != nil {
			return nil, err
		}
		return func() { d.Reconcile(ctx, tabs) }, nil
	case "tab.created", "tab.updated":
		ht, err := ParseTab(msg.Tab)
		if err != nil {
			return nil, err
		}
		if msg.Type == "tab.created" {
			return func() { d.HandleCreated(ctx, ht) }, nil
		}
		return func() { d.HandleUpdated(ctx, ht) }, nil
	case "tab.removed":
		return func() { d.HandleRemoved(ctx, msg.TabID) }, nil
	case "tab.activated":
		return func() { d.HandleActivated(ctx, msg.TabID, msg.WindowID) }, nil
	case "window.focus":
		return func() { d.HandleWindowFocusChanged(ctx, msg.WindowID) }, nil
	}
	return nil, fmt.Errorf("unknown message type %q", msg.Type)
}

func (s *Server) serveRequest(ctx context.Context, d Dispatcher, msg IncomingMsg) {
	data, err := s.answer(ctx, d, msg)
	ok := err == nil
	reply := OutgoingMsg{ID: msg.ID, Action: "reply", OK: &ok}
	if err != nil {
		reply.Error = err.Error()
		applog.Error("ws.request", err, "action", msg.Action)
	} else {
		reply.Data = EncodeResult(data)
	}
	if err := s.Send(reply); err != nil {
		applog.Error("ws.reply", err, "action", msg.Action)
	}
}

func (s *Server) answer(ctx context.Context, d Dispatcher, msg IncomingMsg) (any, error) {
	if msg.Action == "getTabData" {
		var p struct {
			TabID int `json:"tabId"`
		}
		if len(msg.Params) > 0 {
			if err := json.Unmarshal(msg.Params, &p); err != nil {
				return nil, fmt.Errorf("%s: %w: %v", msg.Action, router.ErrInvalidRequest, err)
			}
		}
		if p.TabID != 0 {
			t, ok := d.Tab(p.TabID)
			if !ok {
				return nil, fmt.Errorf("tab %d: %w", p.TabID, router.ErrTabNotFound)
			}
			return t, nil
		}
	}
	req, err := ParseRequest(msg.Action, msg.Params)
	if err != nil {
		return nil, err
	}
	return d.Do(ctx, req)
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
