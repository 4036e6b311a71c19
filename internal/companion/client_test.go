package companion

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve starts a one-shot-per-connection fake companion extension that
// replies with resp to every request it receives, mirroring the real
// extension's "one JSON request per connection" contract (§6).
func serve(t *testing.T, path string, respond func(Request) Response) {
	t.Helper()
	ln, err := net.Listen("unix", path)
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
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				var req Request
				if err := json.Unmarshal([]byte(line), &req); err != nil {
					return
				}
				buf, _ := json.Marshal(respond(req))
				_, _ = conn.Write(buf)
			}()
		}
	}()
}

func TestExecPathRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "companion.sock")
	serve(t, sock, func(req Request) Response {
		assert.Equal(t, "execPath", req.Op)
		result, _ := json.Marshal(map[string]string{"path": "/usr/bin/editor"})
		return Response{OK: true, Result: result}
	})

	c := New(sock)
	path, err := c.ExecPath(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/editor", path)
}

func TestBridgeErrorSurfacesMessage(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "companion.sock")
	serve(t, sock, func(req Request) Response {
		return Response{OK: false, Error: "no active debug session"}
	})

	c := New(sock)
	err := c.AttachDebugger(context.Background(), 9229, "bridge")
	require.Error(t, err)
	var bridgeErr *BridgeError
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, "no active debug session", bridgeErr.Message)
}

func TestProbeConnectableReflectsSocketPresence(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "companion.sock")
	c := New(sock)
	assert.False(t, c.ProbeConnectable(context.Background()))

	serve(t, sock, func(req Request) Response { return Response{OK: true} })
	assert.True(t, c.ProbeConnectable(context.Background()))
}

func TestDerivePathIsDeterministic(t *testing.T) {
	a := DerivePath("/home/user/project")
	b := DerivePath("/home/user/project")
	c := DerivePath("/home/user/other-project")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestBlockingUIStateRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "companion.sock")
	serve(t, sock, func(req Request) Response {
		result, _ := json.Marshal(BlockingUIState{Blocked: true, BlockingMessage: "save?"})
		return Response{OK: true, Result: result}
	})

	c := New(sock)
	c.Timeout = 2 * time.Second
	state, err := c.BlockingUI(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Blocked)
	assert.Equal(t, "save?", state.BlockingMessage)
}
