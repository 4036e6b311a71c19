package lifecycle

import (
	"context"
	"fmt"
)

// reconnect implements §4.C's reconnect path end to end, steps 1-7.
func (m *Manager) reconnect(ctx context.Context) (*EditorSession, error) {
	ps, err := readPersistedSession(m.workspace)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		return nil, fmt.Errorf("lifecycle: no persisted session")
	}

	if err := probeVersion(ctx, ps.CDPPort); err != nil {
		_ = deletePersistedSession(m.workspace)
		return nil, fmt.Errorf("lifecycle: persisted port %d unreachable: %w", ps.CDPPort, err)
	}

	// Step 3: re-register the real PID so the editor will kill the
	// window on its own exit even though the bridge restarted.
	if err := m.companion.RegisterPID(ctx, ps.ElectronPID); err != nil && m.logger != nil {
		m.logger.WithError(err).Warn("lifecycle: re-registering pid during reconnect failed")
	}

	wsURL, err := resolveWorkbenchTarget(ctx, ps.CDPPort, m.titleSignature)
	if err != nil {
		// §9 open question, decided: on upgrade failure, kill the
		// window and spawn fresh rather than retry the upgrade. Surface
		// the failure so ensureConnected falls through to spawnFresh.
		_ = killProcessTree(ps.ElectronPID)
		_ = deletePersistedSession(m.workspace)
		return nil, fmt.Errorf("lifecycle: resolve workbench target during reconnect: %w", err)
	}

	conn, err := m.connectAndEnableDomains(ctx, wsURL)
	if err != nil {
		_ = killProcessTree(ps.ElectronPID)
		_ = deletePersistedSession(m.workspace)
		return nil, fmt.Errorf("lifecycle: websocket upgrade failed during reconnect: %w", err)
	}

	m.waitCompanionAndAttachDebugger(ctx, ps.InspectorPort)

	sess := &EditorSession{
		ElectronPID:       ps.ElectronPID,
		CDPPort:           ps.CDPPort,
		InspectorPort:     ps.InspectorPort,
		UserDataDir:       ps.UserDataDir,
		CompanionSockPath: m.companion.SocketPath,
		StartedAt:         ps.DebugWindowStartedAt,
		Conn:              conn,
	}
	return sess, nil
}
