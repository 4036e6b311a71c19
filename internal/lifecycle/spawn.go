package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/brennhill/editor-control-bridge/internal/transport"
)

// resolveExecPath implements §4.C fresh-spawn step 3: prefer asking the
// companion-extension bridge for process.execPath; fall back to the current
// process's own executable when EDITOR_BRIDGE_HOST_IS_EDITOR indicates the
// bridge was launched under a node-compatible host (§9 "cyclic process
// dependencies").
func (m *Manager) resolveExecPath(ctx context.Context) (string, error) {
	if m.opts.EditorPath != "" {
		return m.opts.EditorPath, nil
	}

	if path, err := m.companion.ExecPath(ctx); err == nil && path != "" {
		return path, nil
	}

	if _, ok := os.LookupEnv("EDITOR_BRIDGE_HOST_IS_EDITOR"); ok {
		if self, err := os.Executable(); err == nil {
			return self, nil
		}
	}

	return "", &ConnectionError{
		Op: "resolve editor executable path",
		Causes: []string{
			"no --editor-path flag was given",
			"the companion-extension bridge socket was not reachable",
			"EDITOR_BRIDGE_HOST_IS_EDITOR is not set for a node-compatible host fallback",
			"os.Executable() failed to resolve the current process image",
		},
	}
}

// spawnFresh implements §4.C's fresh-spawn path end to end, steps 1-13.
func (m *Manager) spawnFresh(ctx context.Context) (*EditorSession, error) {
	// Step 1-2: best-effort kill of any orphan PID recorded in a stale
	// persisted session, then delete that stale record.
	if stale, err := readPersistedSession(m.workspace); err == nil && stale != nil {
		if stale.ElectronPID > 0 {
			_ = killProcessTree(stale.ElectronPID)
		}
		_ = deletePersistedSession(m.workspace)
	}

	execPath, err := m.resolveExecPath(ctx)
	if err != nil {
		return nil, err
	}

	cdpPort, inspectorPort, err := allocateTwoPorts()
	if err != nil {
		return nil, &ConnectionError{Op: "allocate ports", Err: err, Causes: []string{
			"the OS ran out of ephemeral ports",
			"a firewall policy blocks loopback listeners",
		}}
	}

	userDataDir := userDataDirPath(m.workspace)
	store := newUserDataStore()
	if _, err := store.ensure(userDataDir); err != nil {
		return nil, &ConnectionError{Op: "prepare user-data directory", Err: err}
	}
	if err := ensureGitignoreEntry(m.workspace); err != nil && m.logger != nil {
		m.logger.WithError(err).Warn("lifecycle: could not update .gitignore")
	}

	args := buildCmdArgs(cdpPort, inspectorPort, m.extensionDevPath, userDataDir, m.workspace, m.opts)

	cmd := exec.Command(execPath, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	stderrBuf := newCappedBuffer(64 * 1024)
	cmd.Stderr = stderrBuf
	cmd.Env = scrubEnv(os.Environ())
	killAfterParent(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &ConnectionError{
			Op:  fmt.Sprintf("spawn %s", execPath),
			Err: err,
			Causes: []string{
				"the editor executable does not exist at this path",
				"the executable bit is not set",
				"a sandbox or security policy blocked exec",
				"the working directory is not accessible",
			},
		}
	}
	go func() { _ = cmd.Wait() }()

	startedAt := time.Now()

	if err := pollDebugPort(ctx, cdpPort, 500*time.Millisecond, 30*time.Second); err != nil {
		return nil, err
	}

	// Step 9: discover the real editor PID, since on the Windows family
	// the launched binary is a launcher stub that forks the real process
	// and exits.
	electronPID, err := discoverListeningPID(cdpPort)
	if err != nil {
		if m.logger != nil {
			m.logger.WithError(err).Warn("lifecycle: could not discover real editor pid; teardown may leak")
		}
		electronPID = cmd.Process.Pid
	}

	// Step 10: best-effort PID registration so the editor kills the
	// window when the editor itself exits.
	if err := m.companion.RegisterPID(ctx, electronPID); err != nil && m.logger != nil {
		m.logger.WithError(err).Warn("lifecycle: companion pid registration failed")
	}

	wsURL, err := resolveWorkbenchTarget(ctx, cdpPort, m.titleSignature)
	if err != nil {
		return nil, &ConnectionError{Op: "resolve workbench target", Err: err}
	}

	conn, err := m.connectAndEnableDomains(ctx, wsURL)
	if err != nil {
		return nil, &ConnectionError{Op: "open debug websocket", Err: err}
	}

	m.waitCompanionAndAttachDebugger(ctx, inspectorPort)

	sess := &EditorSession{
		Process:           cmd,
		LauncherPID:       cmd.Process.Pid,
		ElectronPID:       electronPID,
		CDPPort:           cdpPort,
		InspectorPort:     inspectorPort,
		UserDataDir:       userDataDir,
		CompanionSockPath: m.companion.SocketPath,
		StartedAt:         startedAt,
		Conn:              conn,
	}
	return sess, nil
}

// connectAndEnableDomains dials wsURL and enables the runtime/page/target
// domains plus auto-attach (§4.C step 5/step 11). Target Registry
// construction itself issues the target-domain enables.
func (m *Manager) connectAndEnableDomains(ctx context.Context, wsURL string) (*transport.Connection, error) {
	conn, err := transport.Dial(ctx, wsURL, m.logger)
	if err != nil {
		return nil, err
	}

	if err := runtime.Enable().Do(cdp.WithExecutor(ctx, conn)); err != nil && m.logger != nil {
		m.logger.WithError(err).Warn("lifecycle: runtime.enable failed")
	}
	if err := page.Enable().Do(cdp.WithExecutor(ctx, conn)); err != nil && m.logger != nil {
		m.logger.WithError(err).Warn("lifecycle: page.enable failed")
	}

	return conn, nil
}

// waitCompanionAndAttachDebugger runs §4.C step 12 (reconnect step 6):
// in parallel, wait for the companion socket to become connectable (the
// single authoritative readiness signal) and best-effort request a debugger
// attach to inspectorPort.
func (m *Manager) waitCompanionAndAttachDebugger(ctx context.Context, inspectorPort int) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(15 * time.Second)
		for time.Now().Before(deadline) {
			if m.companion.ProbeConnectable(ctx) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
		if m.logger != nil {
			m.logger.Warn("lifecycle: companion-extension bridge never became ready; proceeding")
		}
	}()

	go func() {
		if err := m.companion.AttachDebugger(ctx, inspectorPort, "editor-bridge"); err != nil && m.logger != nil {
			m.logger.WithError(err).Warn("lifecycle: debugger attach failed (non-fatal)")
		}
	}()

	<-done
}

// cappedBuffer retains only the most recent limit bytes written to it, used
// to capture the editor's stderr without an unbounded memory footprint over
// a long-lived process. Nothing reads the captured text back; it does not
// appear in any returned ConnectionError.
type cappedBuffer struct {
	limit int
	buf   []byte
}

func newCappedBuffer(limit int) *cappedBuffer { return &cappedBuffer{limit: limit} }

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	if len(c.buf) > c.limit {
		c.buf = c.buf[len(c.buf)-c.limit:]
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return string(c.buf) }

var _ io.Writer = (*cappedBuffer)(nil)
