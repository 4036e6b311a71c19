// Package transport implements the Debug Transport (§4.A): a single
// full-duplex WebSocket carrying correlated JSON-RPC requests, session
// -routed sub-target commands, and fanned-out events. It is grounded on
// k6's common.Connection (exercised only through common/connection_test.go
// and common/session_test.go in the retrieval pack, since the
// implementation file itself did not survive retrieval) and
// generalizes the same "one websocket, one read loop, id-correlated pending
// table, sessionId-routed sub-commands" shape away from k6/goja and onto
// plain cdproto types so any cdproto command (target, accessibility, input,
// dom, page, runtime) can be issued through it via the standard
// cdp.Executor/cdp.WithExecutor pattern.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/sirupsen/logrus"
)

// TransportError reports that the socket was not open for a send, or closed
// while a request was outstanding.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s", e.Op)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError carries the peer-provided error message for a rejected
// command.
type ProtocolError struct {
	Method  cdproto.MethodType
	Code    int64
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("transport: protocol error on %s: %s (code %d)", e.Method, e.Message, e.Code)
}

// EventHandler receives every event frame the connection decodes, fully
// decoded but not yet routed to any particular subsystem. The Target
// Registry and other subscribers filter by msg.Method/msg.SessionID
// themselves, mirroring k6's single-listener fan-out
// (Browser.initEvents).
type EventHandler func(msg *cdproto.Message)

// CloseHandler is invoked exactly once when the socket goes away, with
// intentional reporting whether the close was requested by SetIntentionalClose
// before the socket dropped (§4.A close semantics).
type CloseHandler func(intentional bool, cause error)

type pendingCall struct {
	result easyjson.RawMessage
	err    error
	done   chan struct{}
}

// Connection owns the single WebSocket to the editor's page-level debugging
// endpoint. It implements github.com/chromedp/cdproto/cdp.Executor so any
// generated cdproto command can be dispatched through
// cdp.WithExecutor(ctx, conn).
type Connection struct {
	wsURL  string
	logger *logrus.Entry

	conn *websocket.Conn

	nextID int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	subMu sync.Mutex
	subs  []EventHandler

	closeMu          sync.Mutex
	intentionalClose bool
	closed           bool
	onClose          CloseHandler

	writeMu sync.Mutex

	sessMu  sync.Mutex
	session map[target.SessionID]*Session
}

var _ cdp.Executor = (*Connection)(nil)

// Dial opens the WebSocket at wsURL and starts the read loop. The caller is
// responsible for enabling whatever domains it needs once Dial returns; this
// package has no opinion on which domains a caller enables.
func Dial(ctx context.Context, wsURL string, logger *logrus.Entry) (*Connection, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	wsConn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &Connection{
		wsURL:   wsURL,
		logger:  logger,
		conn:    wsConn,
		pending: make(map[int64]*pendingCall),
		session: make(map[target.SessionID]*Session),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe registers an EventHandler invoked for every inbound event frame
// (any message with Method set). It is never removed automatically; callers
// that want a one-shot subscription must filter and no-op after firing.
func (c *Connection) Subscribe(h EventHandler) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, h)
}

// OnClose installs the handler invoked once when the socket goes away.
func (c *Connection) OnClose(h CloseHandler) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.onClose = h
}

// SetIntentionalClose marks the next observed close as requested by the
// Lifecycle Manager (§4.A: "the Lifecycle Manager sets an
// intentionalClose flag around operations that will close the socket").
func (c *Connection) SetIntentionalClose(v bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.intentionalClose = v
}

// Close closes the underlying socket. It does not itself decide whether the
// close was intentional; call SetIntentionalClose first.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// Session returns (creating if necessary) the Session handle routed through
// sessionId. Target Registry and higher layers use this to issue commands
// against an attached OOPIF/webview sub-target.
func (c *Connection) Session(id target.SessionID) *Session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	if s, ok := c.session[id]; ok {
		return s
	}
	s := &Session{id: id, conn: c}
	c.session[id] = s
	return s
}

// DropSession removes a session's handle once its target detaches. Pending
// calls on that session are left to fail on their own timeout/ctx.Done —
// the transport does not track session liveness beyond routing.
func (c *Connection) DropSession(id target.SessionID) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	delete(c.session, id)
}

// Execute implements cdp.Executor for the main page target (empty sessionId).
func (c *Connection) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return c.send(ctx, cdproto.MethodType(method), "", params, res)
}

func (c *Connection) send(ctx context.Context, method cdproto.MethodType, sessionID target.SessionID, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return &TransportError{Op: string(method), Err: errors.New("socket not open")}
	}

	id := atomic.AddInt64(&c.nextID, 1)

	var rawParams easyjson.RawMessage
	if params != nil {
		w := jwriter.Writer{}
		params.MarshalEasyJSON(&w)
		if w.Error != nil {
			return fmt.Errorf("transport: marshal params for %s: %w", method, w.Error)
		}
		buf, err := w.BuildBytes()
		if err != nil {
			return fmt.Errorf("transport: marshal params for %s: %w", method, err)
		}
		rawParams = buf
	}

	msg := &cdproto.Message{
		ID:        id,
		SessionID: sessionID,
		Method:    method,
		Params:    rawParams,
	}

	call := &pendingCall{done: make(chan struct{})}
	c.pendingMu.Lock()
	c.pending[id] = call
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeMessage(msg); err != nil {
		return &TransportError{Op: string(method), Err: err}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.done:
	}

	if call.err != nil {
		return call.err
	}
	if res != nil && len(call.result) > 0 {
		l := jlexer.Lexer{Data: call.result}
		res.UnmarshalEasyJSON(&l)
		if err := l.Error(); err != nil {
			return fmt.Errorf("transport: decode result for %s: %w", method, err)
		}
	}
	return nil
}

func (c *Connection) writeMessage(msg *cdproto.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	w := jwriter.Writer{}
	msg.MarshalEasyJSON(&w)
	if w.Error != nil {
		return w.Error
	}
	buf, err := w.BuildBytes()
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, buf)
}

// readLoop decodes every inbound frame and either resolves a pending call
// (ID != 0) or fans it out to event subscribers (Method != ""), mirroring
// §4.A correlation rules with a single listener goroutine.
func (c *Connection) readLoop() {
	var closeErr error
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			closeErr = err
			break
		}

		var msg cdproto.Message
		l := jlexer.Lexer{Data: data}
		msg.UnmarshalEasyJSON(&l)
		if err := l.Error(); err != nil {
			if c.logger != nil {
				c.logger.WithError(err).Warn("transport: dropping malformed frame")
			}
			continue
		}

		switch {
		case msg.ID != 0:
			c.resolve(&msg)
		case msg.Method != "":
			c.dispatchEvent(&msg)
		}
	}

	c.failAllPending(closeErr)

	c.closeMu.Lock()
	c.closed = true
	intentional := c.intentionalClose
	handler := c.onClose
	c.closeMu.Unlock()

	if handler != nil {
		handler(intentional, closeErr)
	}
}

func (c *Connection) resolve(msg *cdproto.Message) {
	c.pendingMu.Lock()
	call, ok := c.pending[msg.ID]
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	if msg.Error != nil {
		call.err = &ProtocolError{Code: msg.Error.Code, Message: msg.Error.Message}
	} else {
		call.result = msg.Result
	}
	close(call.done)
}

func (c *Connection) dispatchEvent(msg *cdproto.Message) {
	c.subMu.Lock()
	subs := make([]EventHandler, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	for _, h := range subs {
		h(msg)
	}
}

func (c *Connection) failAllPending(cause error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, call := range c.pending {
		call.err = &TransportError{Op: "pending request", Err: cause}
		close(call.done)
		delete(c.pending, id)
	}
}

// Session is a cdp.Executor that routes every command through a specific
// attached sub-target's sessionId, used by the Accessibility Snapshot
// Engine and Input Dispatcher when operating on an OOPIF or webview.
type Session struct {
	id   target.SessionID
	conn *Connection
}

var _ cdp.Executor = (*Session)(nil)

func (s *Session) ID() target.SessionID { return s.id }

func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return s.conn.send(ctx, cdproto.MethodType(method), s.id, params, res)
}
