// Package ledger implements the Process Ledger (§4.I): tracks
// terminals and child processes spawned on behalf of the agent, with status
// transitions and a Markdown summary appended to every non-skipped tool
// response. It has no k6 analogue (k6 runs one script per VU and
// never spawns terminals on the user's behalf); the entry-table-plus-
// formatted-summary shape is grounded in idiom on the retrieval pack's
// process-supervisor examples and written to the exact layout §4.I
// names (Orphaned / Terminal-Sessions / Unmatched-Active / Recently
// -Completed).
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is one of the three lifecycle states a ledger entry can be in
// (§3 "Process Ledger Entry").
type Status string

const (
	Running   Status = "running"
	Completed Status = "completed"
	Killed    Status = "killed"
)

// Entry is one tracked terminal or child process (§3 "Process Ledger
// Entry").
type Entry struct {
	Terminal       string
	PID            int
	Command        string
	Status         Status
	ExitCode       *int
	Children       []string
	StartedAt      time.Time
	ParentTerminal string

	completedAt time.Time
}

// Ledger is the process-wide table of tracked terminals/processes. It is
// safe for concurrent use; the Tool Dispatcher reads a rendered summary on
// every response while tool handlers mutate entries as processes start,
// exit, or are killed.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// NewTerminalID generates a short, collision-resistant terminal id for
// callers that spawn a process on the agent's behalf without a
// caller-supplied name (e.g. a background task run with no explicit
// terminal label).
func NewTerminalID() string {
	return "term-" + uuid.NewString()[:8]
}

// Add records a newly started terminal/process as running. If e.Terminal
// is empty one is generated via NewTerminalID so every entry is
// addressable by a stable key even when the caller didn't name it.
func (l *Ledger) Add(e Entry) {
	if e.Terminal == "" {
		e.Terminal = NewTerminalID()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = Running
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	copyE := e
	l.entries[e.Terminal] = &copyE
}

// Complete marks terminal as completed with the given exit code.
func (l *Ledger) Complete(terminal string, exitCode int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[terminal]
	if !ok {
		return
	}
	e.Status = Completed
	e.ExitCode = &exitCode
	e.completedAt = time.Now()
}

// Kill marks terminal as killed.
func (l *Ledger) Kill(terminal string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[terminal]
	if !ok {
		return
	}
	e.Status = Killed
	e.completedAt = time.Now()
}

// Remove drops terminal from the ledger entirely, used when a caller wants
// to stop tracking a process that was never really the agent's (e.g. a
// discovered orphan that was reaped by something else).
func (l *Ledger) Remove(terminal string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, terminal)
}

// snapshot returns a stable-ordered copy of every entry for rendering.
func (l *Ledger) snapshot() []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		copyE := *e
		out = append(out, &copyE)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Terminal < out[j].Terminal })
	return out
}

// recentlyCompletedLimit bounds the Recently-Completed section to the three
// most recent entries (§4.I invariant: "completed processes are
// limited to the three most recent").
const recentlyCompletedLimit = 3

// FormatSummary renders the Orphaned / Terminal-Sessions / Unmatched-Active
// / Recently-Completed Markdown layout §4.I names. Each process
// appears exactly once across the sections (§8 invariant 6's sibling
// at the ledger level).
func (l *Ledger) FormatSummary() string {
	entries := l.snapshot()
	if len(entries) == 0 {
		return ""
	}

	var orphaned, terminals, unmatched, completed []*Entry
	for _, e := range entries {
		switch {
		case e.Status == Completed || e.Status == Killed:
			completed = append(completed, e)
		case e.ParentTerminal == "" && e.PID == 0:
			orphaned = append(orphaned, e)
		case e.ParentTerminal == "":
			terminals = append(terminals, e)
		default:
			unmatched = append(unmatched, e)
		}
	}

	sort.Slice(completed, func(i, j int) bool { return completed[i].completedAt.After(completed[j].completedAt) })
	if len(completed) > recentlyCompletedLimit {
		completed = completed[:recentlyCompletedLimit]
	}

	var b strings.Builder
	b.WriteString("## Process Ledger\n")

	writeSection(&b, "Orphaned", orphaned)
	writeSection(&b, "Terminal Sessions", terminals)
	writeSection(&b, "Unmatched Active", unmatched)
	writeSection(&b, "Recently Completed", completed)

	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, title string, entries []*Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n", title)
	for _, e := range entries {
		fmt.Fprintf(b, "- `%s`", e.Terminal)
		if e.PID != 0 {
			fmt.Fprintf(b, " (pid %d)", e.PID)
		}
		if e.Command != "" {
			fmt.Fprintf(b, ": %s", e.Command)
		}
		fmt.Fprintf(b, " — %s", e.Status)
		if e.ExitCode != nil {
			fmt.Fprintf(b, " (exit %d)", *e.ExitCode)
		}
		b.WriteString("\n")
	}
}
