package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brennhill/editor-control-bridge/internal/companion"
	"github.com/brennhill/editor-control-bridge/internal/targets"
	"github.com/brennhill/editor-control-bridge/internal/transport"
)

// Manager owns the Editor Session singleton and drives the state machine of
// §4.C. All mutation of the session and the persisted-session record
// happens here; every other subsystem only reads through ensureConnected's
// returned *Session snapshot.
type Manager struct {
	workspace        string
	extensionDevPath string
	titleSignature   string
	opts             LaunchOptions

	companion *companion.Client
	logger    *logrus.Entry

	mu       sync.Mutex
	state    State
	session  *EditorSession
	registry *targets.Registry

	inFlight *connectAttempt

	generation   int64
	onUserClosed func(cause error)
}

type connectAttempt struct {
	done    chan struct{}
	session *EditorSession
	err     error
}

// Config bundles the construction-time parameters for a Manager.
type Config struct {
	Workspace        string
	ExtensionDevPath string
	TitleSignature   string
	Options          LaunchOptions
	Companion        *companion.Client
	Logger           *logrus.Entry
}

// New constructs a Manager in the Detached state. It does not itself spawn
// or connect to anything — call EnsureConnected for that.
func New(cfg Config) *Manager {
	return &Manager{
		workspace:        cfg.Workspace,
		extensionDevPath: cfg.ExtensionDevPath,
		titleSignature:   cfg.TitleSignature,
		opts:             cfg.Options,
		companion:        cfg.Companion,
		logger:           cfg.Logger,
		state:            Detached,
	}
}

// Session is the read-only view of the live Editor Session handed back to
// callers of EnsureConnected: a transport connection, a generation number to
// key dedup/staleness decisions on, and the target registry built fresh for
// this connection.
type Session struct {
	Conn       *transport.Connection
	Registry   *targets.Registry
	Generation int64
}

// State returns the manager's current state machine position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the current connection generation counter, exposed to
// consumers per §3 Editor Session invariants.
func (m *Manager) Generation() int64 {
	return atomic.LoadInt64(&m.generation)
}

// EnsureConnected is the single public entry point (§4.C
// "ensureConnected() contract"). It is idempotent: if already Connected it
// returns the existing session immediately; concurrent callers while
// Connecting share one in-flight attempt; otherwise it tries reconnect, then
// falls back to spawn.
func (m *Manager) EnsureConnected(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.state == Connected && m.session != nil {
		sess := m.currentSessionLocked()
		m.mu.Unlock()
		return sess, nil
	}
	if m.inFlight != nil {
		attempt := m.inFlight
		m.mu.Unlock()
		return m.awaitAttempt(ctx, attempt)
	}

	attempt := &connectAttempt{done: make(chan struct{})}
	m.inFlight = attempt
	m.state = Connecting
	m.mu.Unlock()

	go m.runConnectAttempt(ctx, attempt)

	return m.awaitAttempt(ctx, attempt)
}

func (m *Manager) awaitAttempt(ctx context.Context, attempt *connectAttempt) (*Session, error) {
	select {
	case <-attempt.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if attempt.err != nil {
		return nil, attempt.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSessionLocked(), nil
}

func (m *Manager) currentSessionLocked() *Session {
	if m.session == nil {
		return nil
	}
	return &Session{
		Conn:       m.session.Conn,
		Registry:   m.registry,
		Generation: m.session.Generation,
	}
}

func (m *Manager) runConnectAttempt(ctx context.Context, attempt *connectAttempt) {
	sess, err := m.reconnect(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.WithError(err).Debug("lifecycle: reconnect path failed, falling back to spawn")
		}
		sess, err = m.spawnFresh(ctx)
	}

	m.mu.Lock()
	if err != nil {
		m.state = Detached
		m.inFlight = nil
		m.mu.Unlock()

		attempt.err = err
		close(attempt.done)
		return
	}

	gen := atomic.AddInt64(&m.generation, 1)
	sess.Generation = gen

	registry, regErr := targets.New(ctx, sess.Conn, sess.Conn.Subscribe, m.logger)
	if regErr != nil && m.logger != nil {
		m.logger.WithError(regErr).Warn("lifecycle: target registry setup failed")
	}

	m.session = sess
	m.registry = registry
	m.state = Connected
	m.inFlight = nil

	m.session.Conn.OnClose(func(intentional bool, cause error) {
		m.onTransportClose(intentional, cause)
	})
	m.mu.Unlock()

	if err := writePersistedSession(m.workspace, PersistedSession{
		CDPPort:              sess.CDPPort,
		ElectronPID:          sess.ElectronPID,
		InspectorPort:        sess.InspectorPort,
		HostBridgePath:       sess.CompanionSockPath,
		UserDataDir:          sess.UserDataDir,
		DebugWindowStartedAt: sess.StartedAt,
		PersistedAt:          time.Now(),
	}); err != nil && m.logger != nil {
		m.logger.WithError(err).Warn("lifecycle: failed to persist session")
	}

	attempt.err = nil
	close(attempt.done)
}

// onTransportClose implements §4.A close semantics as observed by the
// Lifecycle Manager: intentional closes clear state silently; unintentional
// closes (the user closed the window) mean the process should exit
// (§4.C "Connected -> Detached on transport close ... on user-closed the
// process exits", §8 scenario 3).
func (m *Manager) onTransportClose(intentional bool, cause error) {
	m.mu.Lock()
	m.state = Detached
	m.session = nil
	if m.registry != nil {
		m.registry.Clear()
	}
	m.mu.Unlock()

	if intentional {
		return
	}

	_ = deletePersistedSession(m.workspace)
	if m.onUserClosed != nil {
		m.onUserClosed(cause)
	}
}

// OnUserClosed registers the callback invoked when the window closes
// unintentionally; cmd/editor-bridge wires this to exit(0) per §4.C.
func (m *Manager) OnUserClosed(fn func(cause error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUserClosed = fn
}
