// Package lifecycle implements the Editor Process Lifecycle Manager
// (§4.C): deterministic spawn/reconnect/teardown of the single child
// editor, persisted session state that survives bridge restarts,
// platform-specific process-tree cleanup, and gated concurrent launch
// attempts. It is grounded on k6's chromium.Allocator/BrowserType
// (allocator.go, browser_type.go), chromium.DataStore (data_store.go), and
// chromium's platform kill files (kill_linux.go), generalized from
// "launch a throwaway browser for one k6 VU" to "spawn or reattach to one
// long-lived, persistently-tracked editor window per workspace."
package lifecycle

import (
	"os/exec"
	"time"

	"github.com/brennhill/editor-control-bridge/internal/transport"
)

// State is the Lifecycle Manager's state machine position (§4.C).
type State int

const (
	Detached State = iota
	Connecting
	Connected
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// EditorSession is the process-wide singleton describing the currently
// controlled editor (§3 "Editor Session"). At most one exists at a
// time; it is mutated only by the Lifecycle Manager.
type EditorSession struct {
	Process *exec.Cmd

	LauncherPID int
	ElectronPID int

	CDPPort       int
	InspectorPort int

	UserDataDir       string
	CompanionSockPath string

	Generation int64
	StartedAt  time.Time

	Conn *transport.Connection
}

// PersistedSession mirrors the subset of EditorSession fields that let a
// restarted bridge rediscover an already-running editor (§3
// "Persisted Session", §6 "Persisted session file").
type PersistedSession struct {
	CDPPort             int       `json:"cdpPort"`
	ElectronPID         int       `json:"electronPid"`
	InspectorPort       int       `json:"inspectorPort"`
	HostBridgePath      string    `json:"hostBridgePath"`
	UserDataDir         string    `json:"userDataDir"`
	DebugWindowStartedAt time.Time `json:"debugWindowStartedAt"`
	PersistedAt         time.Time `json:"persistedAt"`
}
