// Package companion implements the Companion-Extension Bridge Client
// (§4.D): one-shot JSON requests over a per-workspace named pipe into
// the extension loaded inside the controlled editor. k6 talks only CDP and
// has no analogue for this; the one-request-per-connection JSON-RPC
// shape is grounded in idiom on the retrieval pack's other stdio/socket MCP
// bridges (other_examples' sandbox-cmd-mcp-bridge, whose jsonRPCRequest/
// jsonRPCResponse pair this package's Request/Response mirror), adapted onto
// Go's net.Conn / platform named-pipe primitives instead of a persistent
// stdio stream, since the companion bridge is explicitly one-request-per
// -connection (§6: "Transport is one JSON request per connection").
package companion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// Request is the envelope sent over the pipe for every operation.
type Request struct {
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the envelope read back. Exactly one of Result/Error is set.
type Response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BridgeError wraps a companion-side failure so callers can distinguish it
// from a transport-level dial failure.
type BridgeError struct {
	Op      string
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("companion: %s: %s", e.Op, e.Message)
}

// Client sends one-shot requests to the companion extension's named pipe.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

// New returns a Client for socketPath with the default per-call timeout.
func New(socketPath string) *Client {
	return &Client{SocketPath: socketPath, Timeout: 5 * time.Second}
}

// DerivePath computes the deterministic per-workspace pipe path so the
// client can guess it without any discovery step (§4.D / §6).
func DerivePath(workspace string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(workspace)))
	id := hex.EncodeToString(sum[:])[:16]
	return pipePath(id)
}

func (c *Client) call(ctx context.Context, op string, params interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var rawParams json.RawMessage
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("companion: encode params for %s: %w", op, err)
		}
		rawParams = buf
	}

	conn, err := dialPipe(ctx, c.SocketPath, c.Timeout)
	if err != nil {
		return fmt.Errorf("companion: dial %s: %w", op, err)
	}
	defer conn.Close()

	reqBuf, err := json.Marshal(Request{Op: op, Params: rawParams})
	if err != nil {
		return fmt.Errorf("companion: encode request for %s: %w", op, err)
	}
	if _, err := conn.Write(append(reqBuf, '\n')); err != nil {
		return fmt.Errorf("companion: write %s: %w", op, err)
	}

	respBuf, err := io.ReadAll(conn)
	if err != nil && err != io.EOF {
		return fmt.Errorf("companion: read %s: %w", op, err)
	}

	var resp Response
	if err := json.Unmarshal(respBuf, &resp); err != nil {
		return fmt.Errorf("companion: decode response for %s: %w", op, err)
	}
	if !resp.OK {
		return &BridgeError{Op: op, Message: resp.Error}
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("companion: decode result for %s: %w", op, err)
		}
	}
	return nil
}

// ExecuteSnippet runs js in the editor's extension host and returns its
// stringified result.
func (c *Client) ExecuteSnippet(ctx context.Context, js string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	err := c.call(ctx, "executeSnippet", map[string]string{"js": js}, &out)
	return out.Value, err
}

// AttachDebugger asks the extension to attach a debugger session named
// sessionName to inspectorPort, first terminating any prior session
// matching either the name prefix or the port.
func (c *Client) AttachDebugger(ctx context.Context, inspectorPort int, sessionName string) error {
	return c.call(ctx, "attachDebugger", map[string]interface{}{
		"port": inspectorPort,
		"name": sessionName,
	}, nil)
}

// RegisterPID tells the editor to kill pid's process tree when the editor
// itself exits.
func (c *Client) RegisterPID(ctx context.Context, pid int) error {
	return c.call(ctx, "registerPid", map[string]int{"pid": pid}, nil)
}

// UnregisterPID undoes RegisterPID during teardown.
func (c *Client) UnregisterPID(ctx context.Context, pid int) error {
	return c.call(ctx, "unregisterPid", map[string]int{"pid": pid}, nil)
}

// RunTask invokes a named build/VS-Code task and waits for completion.
func (c *Client) RunTask(ctx context.Context, name string) error {
	return c.call(ctx, "runTask", map[string]string{"name": name}, nil)
}

// ExecPath asks the extension host for process.execPath, used to resolve the
// editor executable without requiring the caller to know it up front
// (§4.C step 3, §9 "cyclic process dependencies").
func (c *Client) ExecPath(ctx context.Context) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	err := c.call(ctx, "execPath", nil, &out)
	return out.Path, err
}

// BlockingUIState reports whether a modal dialog or blocking notification is
// currently up (§4.G step 6).
type BlockingUIState struct {
	Blocked          bool   `json:"blocked"`
	BlockingMessage  string `json:"blockingMessage,omitempty"`
	BannerText       string `json:"bannerText,omitempty"`
}

func (c *Client) BlockingUI(ctx context.Context) (BlockingUIState, error) {
	var out BlockingUIState
	err := c.call(ctx, "blockingUiState", nil, &out)
	return out, err
}

// RestartWindow asks the extension to stop the current editor window,
// rebuild the companion extension, and spawn a replacement (§4.G step 4
// extension hot-reload).
func (c *Client) RestartWindow(ctx context.Context) error {
	return c.call(ctx, "restartWindow", nil, nil)
}

// RestartBridge asks the extension/host to restart the bridge process itself
// (§4.H self hot-reload controller).
func (c *Client) RestartBridge(ctx context.Context) error {
	return c.call(ctx, "restartBridge", nil, nil)
}

// CodeQuery forwards a codebase-analyzer query (overview/exports/import-graph
// /symbol-trace) to the extension (§4.J).
func (c *Client) CodeQuery(ctx context.Context, query string, params interface{}) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, "codeQuery:"+query, params, &out)
	return out, err
}

// ProbeConnectable reports whether the socket is currently dialable — the
// single authoritative readiness signal per §4.C steps 6/12.
func (c *Client) ProbeConnectable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	conn, err := dialPipe(ctx, c.SocketPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
