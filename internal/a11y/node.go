// Package a11y builds and maintains the accessibility-tree snapshot that
// lets an agent address page elements by a stable textual UID instead of a
// CSS selector, and walks the same tree to resolve a UID back to a backend
// DOM node id for CDP input/DOM commands.
package a11y

import (
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
)

// UID addresses a single accessibility node within the most recently taken
// snapshot. It is only valid until the next fetchTree call.
type UID string

// Node is the subset of an accessibility.Node the snapshot cares about,
// enriched with the frame/session it was fetched from.
type Node struct {
	UID          UID
	Role         string
	Name         string
	Description  string
	Value        string
	Properties   map[string]string
	Ignored      bool
	BackendDOMID cdp.BackendNodeID
	ChildIDs     []accessibility.NodeID
	FrameID      string
	SessionID    string
	NodeID       accessibility.NodeID
	ParentNodeID accessibility.NodeID
}

// Snapshot is the result of a fetchTree call: the formatted text handed back
// to the agent plus the resolver state needed to act on it afterwards.
type Snapshot struct {
	Text  string
	Nodes []*Node
}

// uninterestingRoles are skipped from the snapshot unless verbose is set.
var uninterestingRoles = map[string]bool{
	"generic":       true,
	"none":          true,
	"InlineTextBox": true,
	"StaticText":    true,
	"LineBreak":     true,
	"paragraph":     true,
	"group":         true,
}

// booleanPropertyAliases rewrites raw accessibility property names to more
// idiomatic adjectives in the rendered snapshot. Both names are emitted.
var booleanPropertyAliases = map[string]string{
	"disabled": "disableable",
	"expanded": "expandable",
	"focused":  "focusable",
	"selected": "selectable",
}

func include(ignored bool, role string, verbose bool) bool {
	if verbose {
		return true
	}
	return !ignored && !uninterestingRoles[role]
}

// StaleSnapshotError is returned by Resolver.Node when uid is not present in
// the current snapshot, typically because the page navigated or mutated and
// a new snapshot was never taken.
type StaleSnapshotError struct{ UID UID }

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("a11y: uid %q is not present in the current snapshot", e.UID)
}

// VirtualNodeError is returned by Resolver.BackendDOMID when uid's ancestor
// chain never reaches a node carrying a concrete backend DOM node id.
type VirtualNodeError struct{ UID UID }

func (e *VirtualNodeError) Error() string {
	return fmt.Sprintf("a11y: uid %q resolves only to virtual accessibility nodes", e.UID)
}

// Resolver holds the UID table produced by the most recent fetchTree call.
// It is safe for concurrent reads; Replace is called once per snapshot under
// its own lock so a lookup never observes a half-built table.
type Resolver struct {
	mu sync.RWMutex

	byUID map[UID]*Node
	// parentByUID maps a uid to its parent's uid, preferring a
	// frame-prefixed key (frameID+"#"+uid) and falling back to the bare
	// uid key, mirroring how sub-target nodes are threaded into the
	// parent frame's tree without colliding node-id spaces.
	parentByUID map[UID]UID
}

func newResolver() *Resolver {
	return &Resolver{
		byUID:       map[UID]*Node{},
		parentByUID: map[UID]UID{},
	}
}

// Replace atomically swaps in a freshly built UID table, invalidating every
// UID handed out by the previous snapshot.
func (r *Resolver) Replace(byUID map[UID]*Node, parentByUID map[UID]UID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUID = byUID
	r.parentByUID = parentByUID
}

// Node resolves uid to its accessibility node.
func (r *Resolver) Node(uid UID) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byUID[uid]
	if !ok {
		return nil, &StaleSnapshotError{UID: uid}
	}
	return n, nil
}

// BackendDOMID walks from uid up through parentByUID until it finds a node
// carrying a non-zero backend DOM node id.
func (r *Resolver) BackendDOMID(uid UID) (cdp.BackendNodeID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur := uid
	for {
		n, ok := r.byUID[cur]
		if !ok {
			return 0, &StaleSnapshotError{UID: uid}
		}
		if n.BackendDOMID != 0 {
			return n.BackendDOMID, nil
		}
		frameKey := UID(n.FrameID + "#" + string(cur))
		parent, ok := r.parentByUID[frameKey]
		if !ok {
			parent, ok = r.parentByUID[cur]
		}
		if !ok {
			return 0, &VirtualNodeError{UID: uid}
		}
		cur = parent
	}
}
