// Package transporttest provides a fake CDP-speaking WebSocket server for
// exercising internal/transport, internal/targets, and internal/a11y without
// a real Electron process. It is adapted from k6's
// tests/ws/server.go (xk6-browser's NewWSServerWithCDPHandler), stripped of
// the k6-specific dialer/httpbin/HTTP2 plumbing that existed only to let k6
// VU scripts reach the fake server over k6's own network stack — this
// bridge's tests dial it directly with gorilla/websocket instead.
package transporttest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/stretchr/testify/require"
)

// Dummy identifiers used across fake attach/detach fixtures.
const (
	DummySessionID        = "session_id_0123456789"
	DummyTargetID         = "target_id_0123456789"
	DummyBrowserContextID = "browser_context_id_0123456789"
)

// Handler is invoked once per inbound message; it may push zero or more
// messages onto writeCh in response (e.g. an event followed by the command's
// result), and may close(done) to end the connection.
type Handler func(msg *cdproto.Message, writeCh chan<- cdproto.Message, done chan struct{})

// Server is a running httptest server speaking the CDP WebSocket protocol on
// one path, plus plain /json/version and /json/list HTTP endpoints for the
// Lifecycle Manager's reconnect-probe tests.
type Server struct {
	HTTP *httptest.Server

	// CommandsReceived accumulates every inbound command method, in
	// arrival order, for assertions.
	CommandsReceived []cdproto.MethodType
}

// WSURL returns the ws:// URL of the CDP endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/cdp"
}

// Close tears down the underlying HTTP server.
func (s *Server) Close() { s.HTTP.Close() }

// New starts a Server whose /cdp endpoint is driven by fn.
func New(t testing.TB, fn Handler) *Server {
	t.Helper()

	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/cdp", s.wsHandler(fn))
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Browser":"editor-bridge-test","webSocketDebuggerUrl":"%s"}`, "")
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"id":"%s","type":"page","title":"Workbench","webSocketDebuggerUrl":"%s"}]`, DummyTargetID, s.WSURL())
	})

	s.HTTP = httptest.NewServer(mux)
	return s
}

func (s *Server) wsHandler(fn Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		writeCh := make(chan cdproto.Message)

		go func() {
			for {
				select {
				case msg := <-writeCh:
					writeMsg(conn, &msg)
				case <-done:
					return
				}
			}
		}()

		for {
			msg, err := readMsg(conn)
			if err != nil {
				close(done)
				return
			}
			if msg.Method != "" {
				s.CommandsReceived = append(s.CommandsReceived, msg.Method)
			}
			fn(msg, writeCh, done)
			select {
			case <-done:
				return
			default:
			}
		}
	}
}

func readMsg(conn *websocket.Conn) (*cdproto.Message, error) {
	_, buf, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg cdproto.Message
	l := jlexer.Lexer{Data: buf}
	msg.UnmarshalEasyJSON(&l)
	if err := l.Error(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func writeMsg(conn *websocket.Conn, msg *cdproto.Message) {
	w := jwriter.Writer{}
	msg.MarshalEasyJSON(&w)
	if w.Error != nil {
		return
	}
	buf, err := w.BuildBytes()
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, buf)
}

// EchoResult replies to every command with an empty JSON object result,
// useful when a test only cares about attach/detach event fan-out.
func EchoResult(msg *cdproto.Message, writeCh chan<- cdproto.Message, done chan struct{}) {
	writeCh <- cdproto.Message{ID: msg.ID, SessionID: msg.SessionID, Result: easyjson.RawMessage([]byte("{}"))}
}

// RequireDial dials addr and fails the test immediately on error.
func RequireDial(t testing.TB, addr string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	require.NoError(t, err)
	return conn
}
