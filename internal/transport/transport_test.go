package transport

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/editor-control-bridge/internal/transport/transporttest"
)

func dial(t *testing.T, srv *transporttest.Server) *Connection {
	t.Helper()
	conn, err := Dial(context.Background(), srv.WSURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestExecuteResolvesByID(t *testing.T) {
	srv := transporttest.New(t, transporttest.EchoResult)
	defer srv.Close()

	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, conn))
	require.NoError(t, err)
}

func TestProtocolErrorSurfaces(t *testing.T) {
	srv := transporttest.New(t, func(msg *cdproto.Message, writeCh chan<- cdproto.Message, done chan struct{}) {
		writeCh <- cdproto.Message{
			ID:    msg.ID,
			Error: &cdproto.Error{Code: -32000, Message: "boom"},
		}
	})
	defer srv.Close()

	conn := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, conn))
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "boom", protoErr.Message)
}

func TestEventsFanOutToSubscribers(t *testing.T) {
	srv := transporttest.New(t, func(msg *cdproto.Message, writeCh chan<- cdproto.Message, done chan struct{}) {
		writeCh <- cdproto.Message{
			Method: cdproto.EventTargetAttachedToTarget,
			Params: easyjson.RawMessage([]byte(`{"sessionId":"` + transporttest.DummySessionID + `","targetInfo":{"targetId":"` + transporttest.DummyTargetID + `","type":"page"},"waitingForDebugger":false}`)),
		}
		writeCh <- cdproto.Message{ID: msg.ID, Result: easyjson.RawMessage([]byte("{}"))}
	})
	defer srv.Close()

	conn := dial(t, srv)

	received := make(chan *cdproto.Message, 1)
	conn.Subscribe(func(msg *cdproto.Message) {
		if msg.Method == cdproto.EventTargetAttachedToTarget {
			received <- msg
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, conn)))

	select {
	case msg := <-received:
		assert.Equal(t, cdproto.EventTargetAttachedToTarget, msg.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fanned-out event")
	}
}

func TestSessionRoutesSessionID(t *testing.T) {
	var gotSessionID target.SessionID
	srv := transporttest.New(t, func(msg *cdproto.Message, writeCh chan<- cdproto.Message, done chan struct{}) {
		gotSessionID = msg.SessionID
		writeCh <- cdproto.Message{ID: msg.ID, SessionID: msg.SessionID, Result: easyjson.RawMessage([]byte("{}"))}
	})
	defer srv.Close()

	conn := dial(t, srv)
	sess := conn.Session(target.SessionID(transporttest.DummySessionID))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, sess)))
	assert.Equal(t, target.SessionID(transporttest.DummySessionID), gotSessionID)
}

func TestPendingCallsFailOnClose(t *testing.T) {
	srv := transporttest.New(t, func(msg *cdproto.Message, writeCh chan<- cdproto.Message, done chan struct{}) {
		close(done) // never answer; force a close with a request outstanding
	})
	defer srv.Close()

	conn := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, conn))
	require.Error(t, err)
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestSetIntentionalCloseReportedToHandler(t *testing.T) {
	srv := transporttest.New(t, func(msg *cdproto.Message, writeCh chan<- cdproto.Message, done chan struct{}) {
		close(done)
	})
	defer srv.Close()

	conn := dial(t, srv)
	intentionalCh := make(chan bool, 1)
	conn.OnClose(func(intentional bool, cause error) { intentionalCh <- intentional })
	conn.SetIntentionalClose(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, conn))

	select {
	case got := <-intentionalCh:
		assert.True(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("close handler never fired")
	}
}
