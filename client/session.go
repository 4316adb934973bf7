package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	StateIdle SessionState = iota
	// StateConnecting also covers the wait before a scheduled reconnect.
	StateConnecting
	StateAuthenticating
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is the part of *websocket.Conn a Session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a transport connection. The default uses gorilla/websocket.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

// DefaultDialer dials with gorilla/websocket.
func DefaultDialer(ctx context.Context, url string, header http.Header) (Conn, error) {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := d.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status: %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// ErrorHandler receives transport errors.
type ErrorHandler func(err error)

// ConnectionHandler is called each time a connection is established and the
// auth frame has been sent.
type ConnectionHandler func()

// SessionConfig configures a Session.
type SessionConfig struct {
	URL            string
	Token          string
	ReconnectDelay time.Duration
	// PingInterval enables keepalive pings; the read deadline is twice this value.
	PingInterval time.Duration
	Logger       Logger
	Dialer       Dialer
	// Dispatcher lets several sessions share one dispatch table.
	Dispatcher *Dispatcher
}

// Session keeps one logical WebSocket connection to the event stream open.
//
// After the transport connects, the session sends {"type":"auth","token":...}
// and immediately starts dispatching inbound frames by their "type" field. No
// server acknowledgement is awaited. When the connection drops while the
// session is running, a new connection is made after ReconnectDelay. Close
// stops the session for good.
//
// Handlers run on the session's read goroutine, in frame order.
// It is safe for concurrent use.
type Session struct {
	url            string
	token          string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         Logger
	dial           Dialer
	dispatcher     *Dispatcher

	mu        sync.Mutex
	conn      Conn
	state     SessionState
	running   bool
	epoch     uint64 // bumped by Start and Close so stale reconnects give up
	timer     *time.Timer
	cancel    context.CancelFunc
	stopWatch func() bool
	onError   ErrorHandler
	onConnect ConnectionHandler

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// NewSession creates an idle session. Call Start to connect.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		url:            cfg.URL,
		token:          cfg.Token,
		reconnectDelay: cfg.ReconnectDelay,
		pingInterval:   cfg.PingInterval,
		logger:         cfg.Logger,
		dial:           cfg.Dialer,
		dispatcher:     cfg.Dispatcher,
	}
	if s.url == "" {
		s.url = "wss://" + DefaultDomain + "/v1/ws"
	}
	if s.reconnectDelay <= 0 {
		s.reconnectDelay = DefaultReconnectDelay
	}
	if s.logger == nil {
		s.logger = DefaultLogger()
	}
	if s.dial == nil {
		s.dial = DefaultDialer
	}
	if s.dispatcher == nil {
		s.dispatcher = NewDispatcher()
	}
	return s
}

// Start marks the session running and connects in the background.
// Cancelling ctx closes the session. Start on a running session is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.epoch++
	epoch := s.epoch
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopWatch = context.AfterFunc(ctx, func() { s.Close() })
	s.state = StateConnecting
	s.mu.Unlock()

	go s.connect(runCtx, epoch)
}

// Close stops the session: any pending reconnect is cancelled and the live
// connection is closed. Calling Close again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.running && s.conn == nil {
		s.state = StateClosed
		s.mu.Unlock()
		return nil
	}
	s.logger.Info("Closing WebSocket connection")
	s.running = false
	s.epoch++
	s.state = StateClosed
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	cancel := s.cancel
	stopWatch := s.stopWatch
	s.cancel, s.stopWatch = nil, nil
	s.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return conn.Close()
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether a live, authenticated connection exists.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.state == StateOpen
}

// Running reports whether the session will reconnect when the connection drops.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SendMessage writes msg as a JSON text frame.
func (s *Session) SendMessage(msg OutboundMessage) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return newConnectionError("websocket connection not established", nil)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return newConnectionError("failed to send message", err)
	}
	if err := s.write(conn, websocket.TextMessage, data); err != nil {
		return newConnectionError("failed to send message", err)
	}
	s.logger.Debug("Message sent", "type", msg.Type)
	return nil
}

// --- Handler registry ---

// Dispatcher returns the session's dispatch table.
func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// AddMessageHandler sets the handler for msgType, replacing any previous one.
func (s *Session) AddMessageHandler(msgType string, h MessageHandler) {
	s.dispatcher.Register(msgType, h)
	s.logger.Debug("Added message handler", "type", msgType)
}

// RemoveMessageHandler removes the handler for msgType.
func (s *Session) RemoveMessageHandler(msgType string) {
	s.dispatcher.Unregister(msgType)
	s.logger.Debug("Removed message handler", "type", msgType)
}

// SetErrorHandler sets the transport error callback. Without one, errors are logged.
func (s *Session) SetErrorHandler(h ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = h
}

// SetConnectionHandler sets the callback run after each successful connect.
func (s *Session) SetConnectionHandler(h ConnectionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = h
}

// OnPending registers a typed handler for "pending" events.
func (s *Session) OnPending(h func(PendingEvent)) {
	typed(s.dispatcher, MsgTypePending, h, s.logDecodeError)
}

// OnProgress registers a typed handler for "progress" events.
func (s *Session) OnProgress(h func(ProgressEvent)) {
	typed(s.dispatcher, MsgTypeProgress, h, s.logDecodeError)
}

// OnFinished registers a typed handler for "finished" events.
func (s *Session) OnFinished(h func(FinishedEvent)) {
	typed(s.dispatcher, MsgTypeFinished, h, s.logDecodeError)
}

// OnTaskError registers a typed handler for "error" events.
func (s *Session) OnTaskError(h func(ErrorEvent)) {
	typed(s.dispatcher, MsgTypeError, h, s.logDecodeError)
}

func (s *Session) logDecodeError(msg Message, err error) {
	s.logger.Warn("Failed to decode message", "type", msg.Type, "error", err)
}

// --- Connection lifecycle ---

// current reports whether epoch still belongs to a running session.
// Callers hold s.mu.
func (s *Session) current(epoch uint64) bool {
	return s.running && s.epoch == epoch
}

func (s *Session) connect(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	if !s.current(epoch) {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Debug("Connecting to WebSocket server", "url", s.url)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	conn, err := s.dial(dialCtx, s.url, header)
	cancel()
	if err != nil {
		s.mu.Lock()
		live := s.current(epoch)
		s.mu.Unlock()
		if !live {
			return
		}
		s.reportError(newConnectionError("websocket connect failed", err))
		s.scheduleReconnect(ctx, epoch, websocket.CloseAbnormalClosure, err.Error())
		return
	}

	s.mu.Lock()
	if !s.current(epoch) {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	s.logger.Info("WebSocket connection established")
	if err := s.sendAuth(conn); err != nil {
		s.reportError(newConnectionError("failed to send auth message", err))
	}

	s.mu.Lock()
	if !s.current(epoch) {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = StateOpen
	onConnect := s.onConnect
	s.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}

	s.readLoop(ctx, conn, epoch)
}

func (s *Session) sendAuth(conn Conn) error {
	data, err := json.Marshal(OutboundMessage{
		Type:   MsgTypeAuth,
		Fields: map[string]any{"token": s.token},
	})
	if err != nil {
		return err
	}
	if err := s.write(conn, websocket.TextMessage, data); err != nil {
		return err
	}
	s.logger.Debug("Authentication message sent")
	return nil
}

// readLoop dispatches frames until the connection fails, then hands over to
// handleClose.
func (s *Session) readLoop(ctx context.Context, conn Conn, epoch uint64) {
	done := make(chan struct{})
	defer close(done)

	if s.pingInterval > 0 {
		pongWait := 2 * s.pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go s.pingLoop(conn, done)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(ctx, conn, epoch, err)
			return
		}
		s.handleFrame(data)
	}
}

func (s *Session) pingLoop(conn Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame parses one inbound frame and dispatches it. Malformed frames
// and unknown types are dropped.
func (s *Session) handleFrame(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Warn("Invalid JSON message received", "error", newProtocolError(data, err))
		return
	}

	msg := Message{Type: envelope.Type, Raw: data}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Message handler panicked", "type", msg.Type, "panic", r)
		}
	}()
	if !s.dispatcher.Dispatch(msg) {
		s.logger.Debug("Unhandled message type", "type", msg.Type, "content", string(data))
	}
}

// handleClose runs when the read loop ends. Only the session's current
// connection may schedule a reconnect.
func (s *Session) handleClose(ctx context.Context, conn Conn, epoch uint64, readErr error) {
	s.mu.Lock()
	if s.conn != conn {
		// Close already took this connection away.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()
	conn.Close()

	code, reason := closeInfo(readErr)
	var closeErr *websocket.CloseError
	if !errors.As(readErr, &closeErr) {
		s.reportError(newConnectionError("websocket read failed", readErr))
	}
	s.logger.Info("WebSocket connection closed", "code", code, "reason", reason)

	s.scheduleReconnect(ctx, epoch, code, reason)
}

// scheduleReconnect arms a single reconnect timer if epoch is still running.
func (s *Session) scheduleReconnect(ctx context.Context, epoch uint64, code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(epoch) {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StateConnecting
	s.logger.Info("Attempting to reconnect",
		"delay", s.reconnectDelay,
		"code", code,
		"reason", reason,
	)
	s.timer = time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		if !s.current(epoch) {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		s.connect(ctx, epoch)
	})
}

func (s *Session) reportError(err error) {
	s.mu.Lock()
	h := s.onError
	s.mu.Unlock()

	if h != nil {
		h(err)
		return
	}
	s.logger.Error("WebSocket error", "error", err)
}

func (s *Session) write(conn Conn, messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}

func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
