package a11y

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

// Signature is the diffable subset of an interesting node's state (§4.E
// "diff helper": "a signature {role, name, description, value, focused,
// expanded, selected, disabled, checked, pressed, required, readonly}").
type Signature struct {
	Role        string
	Name        string
	Description string
	Value       string
	Focused     string
	Expanded    string
	Selected    string
	Disabled    string
	Checked     string
	Pressed     string
	Required    string
	Readonly    string
}

func signatureFromNode(n *Node) Signature {
	return Signature{
		Role:        n.Role,
		Name:        n.Name,
		Description: n.Description,
		Value:       n.Value,
		Focused:     n.Properties["focused"],
		Expanded:    n.Properties["expanded"],
		Selected:    n.Properties["selected"],
		Disabled:    n.Properties["disabled"],
		Checked:     n.Properties["checked"],
		Pressed:     n.Properties["pressed"],
		Required:    n.Properties["required"],
		Readonly:    n.Properties["readonly"],
	}
}

// FetchForDiff produces a map keyed by backend DOM node id, limited to
// interesting nodes per the inclusion predicate (§4.E "diff helper":
// "fetchForDiff() produces a map keyed by backend DOM node id ... limited to
// interesting nodes").
func FetchForDiff(nodes []*Node) map[cdp.BackendNodeID]Signature {
	out := make(map[cdp.BackendNodeID]Signature, len(nodes))
	for _, n := range nodes {
		if n.BackendDOMID == 0 {
			continue
		}
		if !include(n.Ignored, n.Role, false) {
			continue
		}
		out[n.BackendDOMID] = signatureFromNode(n)
	}
	return out
}

// FieldDelta names one changed field between a before/after signature pair.
type FieldDelta struct {
	Field  string
	Before string
	After  string
}

// Change describes one backend DOM node id present in both before and after
// whose signature differs.
type Change struct {
	NodeID cdp.BackendNodeID
	Deltas []FieldDelta
}

// Diff is the three-list result of comparing two FetchForDiff snapshots
// (§4.E "diff(before, after) emits three lists: added ... removed ...
// and changed ... annotated with per-field deltas").
type Diff struct {
	Added   []cdp.BackendNodeID
	Removed []cdp.BackendNodeID
	Changed []Change
}

// IsEmpty reports whether the diff observed no change at all.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffSignatures computes Diff(before, after) per §4.E.
func DiffSignatures(before, after map[cdp.BackendNodeID]Signature) Diff {
	var d Diff
	for id := range after {
		if _, ok := before[id]; !ok {
			d.Added = append(d.Added, id)
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	for id, b := range before {
		a, ok := after[id]
		if !ok {
			continue
		}
		if deltas := signatureDeltas(b, a); len(deltas) > 0 {
			d.Changed = append(d.Changed, Change{NodeID: id, Deltas: deltas})
		}
	}
	return d
}

func signatureDeltas(b, a Signature) []FieldDelta {
	var deltas []FieldDelta
	add := func(field, before, after string) {
		if before != after {
			deltas = append(deltas, FieldDelta{Field: field, Before: before, After: after})
		}
	}
	add("role", b.Role, a.Role)
	add("name", b.Name, a.Name)
	add("description", b.Description, a.Description)
	add("value", b.Value, a.Value)
	add("focused", b.Focused, a.Focused)
	add("expanded", b.Expanded, a.Expanded)
	add("selected", b.Selected, a.Selected)
	add("disabled", b.Disabled, a.Disabled)
	add("checked", b.Checked, a.Checked)
	add("pressed", b.Pressed, a.Pressed)
	add("required", b.Required, a.Required)
	add("readonly", b.Readonly, a.Readonly)
	return deltas
}

// Summary renders a human-readable summary of d, used by ExecuteWithDiff's
// return value.
func (d Diff) Summary() string {
	if d.IsEmpty() {
		return "no observable change"
	}
	var b strings.Builder
	if len(d.Added) > 0 {
		fmt.Fprintf(&b, "added %d node(s)", len(d.Added))
	}
	if len(d.Removed) > 0 {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "removed %d node(s)", len(d.Removed))
	}
	if len(d.Changed) > 0 {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "changed %d node(s):", len(d.Changed))
		for _, c := range d.Changed {
			for _, delta := range c.Deltas {
				fmt.Fprintf(&b, " %d.%s %q->%q", c.NodeID, delta.Field, delta.Before, delta.After)
			}
		}
	}
	return b.String()
}

// ExecuteWithDiff implements §4.E "executeWithDiff(action, timeout)":
// capture before, run action, then poll at 100ms cadence until changes are
// detected or timeout elapses, returning a human-readable summary. fetch is
// the caller-supplied way to take a fresh a11y snapshot mid-poll (the Engine
// itself has no notion of "the current live connection", so the caller
// closes over it).
func ExecuteWithDiff(ctx context.Context, before map[cdp.BackendNodeID]Signature, action func() error, fetch func() (map[cdp.BackendNodeID]Signature, error), timeout time.Duration) (string, error) {
	if err := action(); err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	const pollInterval = 100 * time.Millisecond

	for {
		after, err := fetch()
		if err != nil {
			return "", fmt.Errorf("a11y: fetch for diff: %w", err)
		}
		d := DiffSignatures(before, after)
		if !d.IsEmpty() || time.Now().After(deadline) {
			return d.Summary(), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
