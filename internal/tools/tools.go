// Package tools wires the handful of tool handlers §8's end-to-end
// scenarios name by exact tool name (snapshot, keyboard_hotkey, and their
// siblings) onto the Tool Dispatcher (internal/dispatch). §1 treats "the
// individual high-level tools ... beyond the contracts they consume" as an
// external collaborator; this package is the thin, deliberately small
// exception — just enough concrete handlers to exercise the Accessibility
// Snapshot Engine (E), Input Dispatcher (F), Codebase Analyzer RPC (J), and
// the dispatcher's own blocking-UI/ledger/snapshot-dedup machinery (G) end
// to end, matching the tool names §8's testable properties pin down.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"

	"github.com/brennhill/editor-control-bridge/internal/a11y"
	"github.com/brennhill/editor-control-bridge/internal/codeintel"
	"github.com/brennhill/editor-control-bridge/internal/dispatch"
	"github.com/brennhill/editor-control-bridge/internal/input"
	"github.com/brennhill/editor-control-bridge/internal/lifecycle"
)

// Deps bundles the live components handlers need to reach into. It is
// built fresh by cmd/editor-bridge after the lifecycle Manager exists.
type Deps struct {
	Manager   *lifecycle.Manager
	Engine    *a11y.Engine
	CodeIntel *codeintel.Client
}

// sessionOf returns the live lifecycle Session, ensuring a connection
// first (a cheap no-op when already Connected, per §4.C
// ensureConnected's idempotence).
func (d Deps) sessionOf(ctx context.Context) (*lifecycle.Session, error) {
	return d.Manager.EnsureConnected(ctx)
}

// subTargetsOf converts the Target Registry's attachment table into the
// a11y.SubTarget list FetchTree expects (§4.E step 4).
func subTargetsOf(sess *lifecycle.Session) []a11y.SubTarget {
	if sess.Registry == nil {
		return nil
	}
	attached := sess.Registry.ListAttached()
	out := make([]a11y.SubTarget, 0, len(attached))
	for sessionID, info := range attached {
		out = append(out, a11y.SubTarget{
			SessionID: sessionID,
			TargetID:  info.TargetID,
			Type:      info.Type,
			URL:       info.URL,
			Title:     info.Title,
		})
	}
	return out
}

func resolveSessionFor(sess *lifecycle.Session) a11y.SessionResolver {
	return func(sessionID target.SessionID) (cdp.Executor, error) {
		if sess.Conn == nil {
			return nil, fmt.Errorf("tools: no live connection")
		}
		return sess.Conn.Session(sessionID), nil
	}
}

func (d Deps) takeSnapshot(ctx context.Context, verbose bool) (*a11y.Snapshot, *lifecycle.Session, error) {
	sess, err := d.sessionOf(ctx)
	if err != nil {
		return nil, nil, err
	}
	snap, err := d.Engine.FetchTree(ctx, sess.Conn, subTargetsOf(sess), resolveSessionFor(sess), verbose)
	if err != nil {
		return nil, nil, err
	}
	return snap, sess, nil
}

func (d Deps) interactor(sess *lifecycle.Session) *a11y.Interactor {
	return a11y.NewInteractor(d.Engine.Resolver, sess.Conn, resolveSessionFor(sess))
}

// SnapshotFetcher adapts Deps into a dispatch.SnapshotFetcher for the
// dispatcher's error-path snapshot enrichment (§4.G "Error path").
func (d Deps) SnapshotFetcher() dispatch.SnapshotFetcher {
	return func(ctx context.Context) (string, error) {
		snap, _, err := d.takeSnapshot(ctx, false)
		if err != nil {
			return "", err
		}
		return snap.Text, nil
	}
}

type uidArgs struct {
	UID     string `json:"uid"`
	Verbose bool   `json:"verbose"`
}

type textArgs struct {
	UID  string `json:"uid"`
	Text string `json:"text"`
}

type hotkeyArgs struct {
	Keys string `json:"keys"`
}

type scrollArgs struct {
	UID       string  `json:"uid"`
	Direction string  `json:"direction"`
	Amount    float64 `json:"amount"`
}

type dragArgs struct {
	FromUID string `json:"fromUid"`
	ToUID   string `json:"toUid"`
}

type codeQueryArgs struct {
	Query   string   `json:"query"`
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
	Depth   int      `json:"depth"`
	Symbol  string   `json:"symbol"`
}

// handler builds a *dispatch.Handler so every registration line below
// stays one call instead of repeating the struct literal's field names.
func handler(name string, isInputTool bool, fn dispatch.HandlerFunc) *dispatch.Handler {
	return &dispatch.Handler{
		Name:        name,
		IsInputTool: isInputTool,
		Fn:          fn,
	}
}

// Register adds every handler this package defines to d.
func Register(d *dispatch.Dispatcher, deps Deps) {
	d.Register(handler("snapshot", false, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a uidArgs
		_ = json.Unmarshal(args, &a)
		snap, _, err := deps.takeSnapshot(ctx, a.Verbose)
		if err != nil {
			return err
		}
		b.Text(snap.Text)
		return nil
	}))

	d.Register(handler("keyboard_hotkey", true, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a hotkeyArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("tools: decode keyboard_hotkey args: %w", err)
		}
		sess, err := deps.sessionOf(ctx)
		if err != nil {
			return err
		}
		if err := input.Press(ctx, sess.Conn, a.Keys); err != nil {
			return fmt.Errorf("tools: press %q: %w", a.Keys, err)
		}
		b.Text(fmt.Sprintf("pressed %s", a.Keys))
		return nil
	}))

	d.Register(handler("click", false, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a uidArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("tools: decode click args: %w", err)
		}
		sess, err := deps.sessionOf(ctx)
		if err != nil {
			return err
		}
		it := deps.interactor(sess)
		if err := it.ClickElement(ctx, a11y.UID(a.UID)); err != nil {
			return fmt.Errorf("tools: click %s: %w", a.UID, err)
		}
		b.Text(fmt.Sprintf("clicked %s", a.UID))
		return nil
	}))

	d.Register(handler("hover", true, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a uidArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("tools: decode hover args: %w", err)
		}
		sess, err := deps.sessionOf(ctx)
		if err != nil {
			return err
		}
		it := deps.interactor(sess)
		if err := it.HoverElement(ctx, a11y.UID(a.UID)); err != nil {
			return fmt.Errorf("tools: hover %s: %w", a.UID, err)
		}
		b.Text(fmt.Sprintf("hovering %s", a.UID))
		return nil
	}))

	d.Register(handler("type", true, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a textArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("tools: decode type args: %w", err)
		}
		sess, err := deps.sessionOf(ctx)
		if err != nil {
			return err
		}
		it := deps.interactor(sess)
		if err := it.TypeIntoElement(ctx, a11y.UID(a.UID), a.Text); err != nil {
			return fmt.Errorf("tools: type into %s: %w", a.UID, err)
		}
		b.Text(fmt.Sprintf("typed into %s", a.UID))
		return nil
	}))

	d.Register(handler("fill", true, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a textArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("tools: decode fill args: %w", err)
		}
		sess, err := deps.sessionOf(ctx)
		if err != nil {
			return err
		}
		it := deps.interactor(sess)
		if err := it.FillElement(ctx, a11y.UID(a.UID), a.Text); err != nil {
			return fmt.Errorf("tools: fill %s: %w", a.UID, err)
		}
		b.Text(fmt.Sprintf("filled %s", a.UID))
		return nil
	}))

	d.Register(handler("scroll", true, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a scrollArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("tools: decode scroll args: %w", err)
		}
		sess, err := deps.sessionOf(ctx)
		if err != nil {
			return err
		}
		it := deps.interactor(sess)
		dir := input.ScrollDirection(a.Direction)
		if err := it.ScrollElement(ctx, a11y.UID(a.UID), dir, a.Amount); err != nil {
			return fmt.Errorf("tools: scroll %s: %w", a.UID, err)
		}
		b.Text(fmt.Sprintf("scrolled %s", a.UID))
		return nil
	}))

	d.Register(handler("drag", true, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a dragArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("tools: decode drag args: %w", err)
		}
		sess, err := deps.sessionOf(ctx)
		if err != nil {
			return err
		}
		it := deps.interactor(sess)
		if err := it.DragElement(ctx, a11y.UID(a.FromUID), a11y.UID(a.ToUID)); err != nil {
			return fmt.Errorf("tools: drag %s -> %s: %w", a.FromUID, a.ToUID, err)
		}
		b.Text(fmt.Sprintf("dragged %s to %s", a.FromUID, a.ToUID))
		return nil
	}))

	d.Register(handler("codebase_query", false, func(ctx context.Context, args []byte, b *dispatch.Builder) error {
		var a codeQueryArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("tools: decode codebase_query args: %w", err)
		}
		if deps.CodeIntel == nil {
			return fmt.Errorf("tools: codebase analyzer not configured")
		}
		text, _, err := deps.CodeIntel.Run(ctx, codeintel.Query(a.Query), codeintel.Scope{
			Include: a.Include,
			Exclude: a.Exclude,
			Depth:   a.Depth,
			Symbol:  a.Symbol,
		})
		if err != nil {
			return err
		}
		b.Text(text)
		return nil
	}))
}
