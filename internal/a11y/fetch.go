package a11y

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"

	"github.com/brennhill/editor-control-bridge/internal/targets"
)

// SessionResolver resolves the cdp.Executor to use for a given attached
// sub-target's sessionId. Enable and the tree fetch are both issued through
// it so the CDP session routing happens exactly once per sub-target.
type SessionResolver func(sessionID target.SessionID) (cdp.Executor, error)

// SubTarget describes one attached sub-target (iframe or webview) whose
// accessibility tree should be folded into the snapshot, per §4.E step
// 4 ("attached sub-target session of type iframe or whose URL matches
// webview patterns").
type SubTarget struct {
	SessionID target.SessionID
	TargetID  target.ID
	Type      string
	URL       string
	Title     string
}

// Engine owns the Resolver for the most recent snapshot and knows how to
// rebuild it from a live connection.
type Engine struct {
	Resolver *Resolver
	uidSeq   int
}

func NewEngine() *Engine {
	return &Engine{Resolver: newResolver()}
}

// FetchTree implements §4.E's fetchTree(verbose) contract end to end:
// enable domains, walk the main frame tree plus every tracked sub-target,
// assign UIDs to included nodes, and atomically replace the resolver state.
func (e *Engine) FetchTree(ctx context.Context, mainExec cdp.Executor, subTargets []SubTarget, resolveSession SessionResolver, verbose bool) (*Snapshot, error) {
	if err := accessibility.Enable().Do(cdp.WithExecutor(ctx, mainExec)); err != nil {
		return nil, fmt.Errorf("a11y: enable accessibility domain: %w", err)
	}
	if err := page.Enable().Do(cdp.WithExecutor(ctx, mainExec)); err != nil {
		return nil, fmt.Errorf("a11y: enable page domain: %w", err)
	}

	tree, err := page.GetFrameTree().Do(cdp.WithExecutor(ctx, mainExec))
	if err != nil {
		return nil, fmt.Errorf("a11y: get frame tree: %w", err)
	}

	b := &builder{
		verbose:     verbose,
		byUID:       map[UID]*Node{},
		parentByUID: map[UID]UID{},
	}

	var frames []*page.FrameTree
	var collect func(*page.FrameTree)
	collect = func(ft *page.FrameTree) {
		frames = append(frames, ft)
		for _, child := range ft.ChildFrames {
			collect(child)
		}
	}
	collect(tree)

	var lines []string
	for _, ft := range frames {
		nodes, err := accessibility.GetFullAXTree().WithFrameID(ft.Frame.ID).Do(cdp.WithExecutor(ctx, mainExec))
		if err != nil {
			// Step 3: continue with the other frames on failure.
			continue
		}
		lines = append(lines, b.renderFrame(string(ft.Frame.ID), "", nodes)...)
	}

	for _, st := range subTargets {
		if st.Type != "iframe" && !isWebviewType(st) {
			continue
		}
		exec, err := resolveSession(st.SessionID)
		if err != nil {
			continue
		}
		if err := accessibility.Enable().Do(cdp.WithExecutor(ctx, exec)); err != nil {
			continue
		}
		nodes, err := accessibility.GetFullAXTree().Do(cdp.WithExecutor(ctx, exec))
		if err != nil {
			continue
		}
		label := fmt.Sprintf("[sub-target %s: %s]", st.Type, st.URL)
		lines = append(lines, label)
		sub := b.renderFrame(string(st.SessionID), string(st.SessionID), nodes)
		for _, l := range sub {
			lines = append(lines, "  "+l)
		}
	}

	e.Resolver.Replace(b.byUID, b.parentByUID)

	text := ""
	for i, l := range lines {
		if i > 0 {
			text += "\n"
		}
		text += l
	}
	return &Snapshot{Text: text, Nodes: b.allNodes}, nil
}

func isWebviewType(st SubTarget) bool {
	return st.Type == "webview" || targets.IsWebviewURL(st.URL)
}
