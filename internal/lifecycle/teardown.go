package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Teardown implements §4.C's synchronous teardown: mark intentional
// close, unregister the PID, close the socket, kill the real editor PID
// tree (rediscovering it if necessary), then delete the persisted session.
// Every step is best-effort; a failure in one does not skip the rest.
func (m *Manager) Teardown(ctx context.Context) {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		_ = deletePersistedSession(m.workspace)
		return
	}

	if sess.Conn != nil {
		sess.Conn.SetIntentionalClose(true)
	}

	if err := m.companion.UnregisterPID(ctx, sess.ElectronPID); err != nil && m.logger != nil {
		m.logger.WithError(err).Warn("lifecycle: unregister pid failed")
	}

	if sess.Conn != nil {
		_ = sess.Conn.Close()
	}

	pid := sess.ElectronPID
	if pid <= 0 {
		if discovered, err := discoverListeningPID(sess.CDPPort); err == nil {
			pid = discovered
		}
	}
	if pid > 0 {
		if err := killProcessTree(pid); err != nil && m.logger != nil {
			m.logger.WithError(err).Warn("lifecycle: kill process tree failed")
		}
	} else {
		_ = killByUserDataDir(sess.UserDataDir)
	}

	_ = deletePersistedSession(m.workspace)

	m.mu.Lock()
	m.session = nil
	m.state = Detached
	m.mu.Unlock()
}

// GracefulDetach implements §4.C's graceful-detach variant: close the
// socket and clear in-memory state but do not kill the child and do not
// delete the persisted session, so a restarted bridge can reconnect.
func (m *Manager) GracefulDetach() {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.state = Detached
	if m.registry != nil {
		m.registry.Clear()
	}
	m.mu.Unlock()

	if sess == nil || sess.Conn == nil {
		return
	}
	sess.Conn.SetIntentionalClose(true)
	_ = sess.Conn.Close()
}

// shutdownOnce guards the shutdown handlers so they fire at most once
// (§4.C "Shutdown handlers ... guarded by a single-shot flag").
var shutdownOnce sync.Once

// InstallShutdownHandlers registers the interrupt and termination signal
// handlers: either signal performs graceful detach and exit(0). Stdin end
// and recovered panics are not handled here; HandleStdinEOF and HandlePanic
// cover them under the same single-shot guard.
// exitFunc defaults to os.Exit but is overridable in tests.
func (m *Manager) InstallShutdownHandlers(exitFunc func(code int)) {
	if exitFunc == nil {
		exitFunc = os.Exit
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		shutdownOnce.Do(func() {
			m.GracefulDetach()
			exitFunc(0)
		})
	}()
}

// HandleStdinEOF is called by the agent stdio loop when it observes
// end-of-input; it performs the same graceful-detach-then-exit(0) sequence
// as a signal (§4.C).
func (m *Manager) HandleStdinEOF(exitFunc func(code int)) {
	if exitFunc == nil {
		exitFunc = os.Exit
	}
	shutdownOnce.Do(func() {
		m.GracefulDetach()
		exitFunc(0)
	})
}

// HandlePanic performs full teardown and exits 1; callers recover() a panic
// in main and call this instead of letting the runtime print a bare stack
// trace, mirroring §4.C's "uncaught exceptions perform full teardown
// and exit(1)".
func (m *Manager) HandlePanic(ctx context.Context, exitFunc func(code int)) {
	if exitFunc == nil {
		exitFunc = os.Exit
	}
	shutdownOnce.Do(func() {
		m.Teardown(ctx)
		exitFunc(1)
	})
}
