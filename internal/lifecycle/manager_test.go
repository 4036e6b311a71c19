package lifecycle

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/editor-control-bridge/internal/companion"
	"github.com/brennhill/editor-control-bridge/internal/transport/transporttest"
)

// fakeCompanion starts a minimal one-request-per-connection server that
// answers every op with {"ok":true}, matching the real companion extension's
// contract closely enough to exercise the lifecycle's best-effort calls.
func fakeCompanion(t *testing.T) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "companion.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = bufio.NewReader(conn).ReadString('\n')
				_, _ = conn.Write([]byte(`{"ok":true}`))
			}()
		}
	}()
	return sock
}

func TestReconnectUsesPersistedSessionWithoutSpawning(t *testing.T) {
	ws := t.TempDir()
	sock := fakeCompanion(t)

	srv := transporttest.New(t, transporttest.EchoResult)
	defer srv.Close()

	require.NoError(t, writePersistedSession(ws, PersistedSession{
		CDPPort:       serverPort(t, srv),
		ElectronPID:   4242,
		InspectorPort: 9229,
		UserDataDir:   filepath.Join(ws, ".devtools", "user-data"),
	}))

	m := New(Config{
		Workspace: ws,
		Companion: companion.New(sock),
	})

	sess, err := m.EnsureConnected(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.EqualValues(t, 1, sess.Generation)
	assert.Equal(t, Connected, m.State())
}

func TestEnsureConnectedConcurrentCallersShareOneAttempt(t *testing.T) {
	ws := t.TempDir()
	sock := fakeCompanion(t)

	srv := transporttest.New(t, transporttest.EchoResult)
	defer srv.Close()

	require.NoError(t, writePersistedSession(ws, PersistedSession{
		CDPPort:       serverPort(t, srv),
		ElectronPID:   4242,
		InspectorPort: 9229,
		UserDataDir:   filepath.Join(ws, ".devtools", "user-data"),
	}))

	m := New(Config{
		Workspace: ws,
		Companion: companion.New(sock),
	})

	const n = 8
	var wg sync.WaitGroup
	generations := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := m.EnsureConnected(context.Background())
			if err == nil && sess != nil {
				generations[i] = sess.Generation
			}
		}(i)
	}
	wg.Wait()

	for _, g := range generations {
		assert.EqualValues(t, 1, g, "every concurrent caller must observe the single successful attempt's generation")
	}
}

func TestGracefulDetachClearsStateWithoutDeletingPersistedSession(t *testing.T) {
	ws := t.TempDir()
	sock := fakeCompanion(t)

	srv := transporttest.New(t, transporttest.EchoResult)
	defer srv.Close()

	require.NoError(t, writePersistedSession(ws, PersistedSession{
		CDPPort:       serverPort(t, srv),
		ElectronPID:   4242,
		InspectorPort: 9229,
		UserDataDir:   filepath.Join(ws, ".devtools", "user-data"),
	}))

	m := New(Config{Workspace: ws, Companion: companion.New(sock)})
	_, err := m.EnsureConnected(context.Background())
	require.NoError(t, err)

	m.GracefulDetach()
	assert.Equal(t, Detached, m.State())

	ps, err := readPersistedSession(ws)
	require.NoError(t, err)
	assert.NotNil(t, ps, "graceful detach must not delete the persisted session")
}

// serverPort extracts the TCP port transporttest.Server listens on, since
// reconnect probes it over plain HTTP (/json/version, /json/list) rather
// than through the websocket it also serves.
func serverPort(t *testing.T, srv *transporttest.Server) int {
	t.Helper()
	u := srv.HTTP.URL
	_, portStr, err := net.SplitHostPort(u[len("http://"):])
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}
