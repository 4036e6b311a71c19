package a11y

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/target"

	"github.com/brennhill/editor-control-bridge/internal/input"
)

// Interactor implements the §4.E interaction helper contracts
// (focusElement, scrollIntoView, getElementCenter, clickElement,
// hoverElement, fillElement, typeIntoElement, scrollElement, dragElement).
// Every call resolves uid to a backend DOM node id via the Resolver, then
// threads the node's recorded sessionId through to input/DOM commands so a
// sub-target (iframe/webview) element is addressed on its own CDP session
// exactly as the main page is, mirroring k6's
// common/frame_session_test.go / common/session_test.go "one session per
// OOPIF, routed by sessionId" pattern generalized away from Page/Frame
// objects onto this bridge's UID table.
type Interactor struct {
	resolver    *Resolver
	mainExec    cdp.Executor
	resolveSess SessionResolver
}

// NewInteractor builds an Interactor bound to resolver for UID lookups,
// mainExec for main-page commands, and resolveSess for threading sub-target
// sessions.
func NewInteractor(resolver *Resolver, mainExec cdp.Executor, resolveSess SessionResolver) *Interactor {
	return &Interactor{resolver: resolver, mainExec: mainExec, resolveSess: resolveSess}
}

func (it *Interactor) execFor(n *Node) (cdp.Executor, error) {
	if n.SessionID == "" {
		return it.mainExec, nil
	}
	if it.resolveSess == nil {
		return it.mainExec, nil
	}
	return it.resolveSess(target.SessionID(n.SessionID))
}

func (it *Interactor) resolve(uid UID) (*Node, cdp.BackendNodeID, cdp.Executor, error) {
	n, err := it.resolver.Node(uid)
	if err != nil {
		return nil, 0, nil, err
	}
	backendID, err := it.resolver.BackendDOMID(uid)
	if err != nil {
		return nil, 0, nil, err
	}
	exec, err := it.execFor(n)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("a11y: resolve session for uid %q: %w", uid, err)
	}
	return n, backendID, exec, nil
}

// FocusElement implements §4.E "focusElement": DOM.focus on the
// resolved backend node.
func (it *Interactor) FocusElement(ctx context.Context, uid UID) error {
	_, backendID, exec, err := it.resolve(uid)
	if err != nil {
		return err
	}
	return dom.Focus().WithBackendNodeID(backendID).Do(cdp.WithExecutor(ctx, exec))
}

// ScrollIntoView implements §4.E "scrollIntoView": DOM.scrollIntoViewIfNeeded.
func (it *Interactor) ScrollIntoView(ctx context.Context, uid UID) error {
	_, backendID, exec, err := it.resolve(uid)
	if err != nil {
		return err
	}
	return dom.ScrollIntoViewIfNeeded().WithBackendNodeID(backendID).Do(cdp.WithExecutor(ctx, exec))
}

// GetElementCenter implements §4.E "getElementCenter (via box model,
// falling back to content quads; returns the arithmetic mean of the four
// corners)".
func (it *Interactor) GetElementCenter(ctx context.Context, uid UID) (input.Point, error) {
	_, backendID, exec, err := it.resolve(uid)
	if err != nil {
		return input.Point{}, err
	}

	if box, err := dom.GetBoxModel().WithBackendNodeID(backendID).Do(cdp.WithExecutor(ctx, exec)); err == nil && box != nil && len(box.Content) == 8 {
		return quadCenter(box.Content), nil
	}

	quads, err := dom.GetContentQuads().WithBackendNodeID(backendID).Do(cdp.WithExecutor(ctx, exec))
	if err != nil {
		return input.Point{}, fmt.Errorf("a11y: get element center for uid %q: %w", uid, err)
	}
	if len(quads) == 0 || len(quads[0]) != 8 {
		return input.Point{}, fmt.Errorf("a11y: uid %q has no visible box to click", uid)
	}
	return quadCenter(quads[0]), nil
}

// quadCenter averages the 4 (x, y) corner pairs of a flat 8-element quad.
func quadCenter(quad []float64) input.Point {
	var sumX, sumY float64
	for i := 0; i < 8; i += 2 {
		sumX += quad[i]
		sumY += quad[i+1]
	}
	return input.Point{X: sumX / 4, Y: sumY / 4}
}

// ClickElement implements §4.E "clickElement (scroll, center, click)".
func (it *Interactor) ClickElement(ctx context.Context, uid UID) error {
	if err := it.ScrollIntoView(ctx, uid); err != nil {
		return err
	}
	_, _, exec, err := it.resolve(uid)
	if err != nil {
		return err
	}
	pt, err := it.GetElementCenter(ctx, uid)
	if err != nil {
		return err
	}
	return input.Click(ctx, exec, pt)
}

// HoverElement implements §4.E "hoverElement".
func (it *Interactor) HoverElement(ctx context.Context, uid UID) error {
	if err := it.ScrollIntoView(ctx, uid); err != nil {
		return err
	}
	_, _, exec, err := it.resolve(uid)
	if err != nil {
		return err
	}
	pt, err := it.GetElementCenter(ctx, uid)
	if err != nil {
		return err
	}
	return input.Hover(ctx, exec, pt)
}

// settleDelay is the fixed pause required between focus and typing to let
// the rendered element finish receiving focus before input begins
// (§4.E: "50ms settle").
const settleDelay = 50 * time.Millisecond

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// FillElement implements §4.E "fillElement (scroll, focus, 50ms
// settle, select-all + delete, insert)".
func (it *Interactor) FillElement(ctx context.Context, uid UID, text string) error {
	if err := it.ScrollIntoView(ctx, uid); err != nil {
		return err
	}
	if err := it.FocusElement(ctx, uid); err != nil {
		return err
	}
	if err := sleep(ctx, settleDelay); err != nil {
		return err
	}

	_, _, exec, err := it.resolve(uid)
	if err != nil {
		return err
	}
	if err := input.Press(ctx, exec, "Control+A"); err != nil {
		return err
	}
	if err := input.Press(ctx, exec, "Delete"); err != nil {
		return err
	}
	return input.Type(ctx, exec, text)
}

// TypeIntoElement implements §4.E "typeIntoElement (scroll, focus,
// 50ms settle, insert without clearing)".
func (it *Interactor) TypeIntoElement(ctx context.Context, uid UID, text string) error {
	if err := it.ScrollIntoView(ctx, uid); err != nil {
		return err
	}
	if err := it.FocusElement(ctx, uid); err != nil {
		return err
	}
	if err := sleep(ctx, settleDelay); err != nil {
		return err
	}

	_, _, exec, err := it.resolve(uid)
	if err != nil {
		return err
	}
	return input.Type(ctx, exec, text)
}

// ScrollElement implements §4.E "scrollElement (scroll into view then
// optional wheel event with {up|down|left|right} x amount)". dir == "" skips
// the wheel event and only scrolls the element into view.
func (it *Interactor) ScrollElement(ctx context.Context, uid UID, dir input.ScrollDirection, amount float64) error {
	if err := it.ScrollIntoView(ctx, uid); err != nil {
		return err
	}
	if dir == "" {
		return nil
	}
	_, _, exec, err := it.resolve(uid)
	if err != nil {
		return err
	}
	pt, err := it.GetElementCenter(ctx, uid)
	if err != nil {
		return err
	}
	return input.Wheel(ctx, exec, pt, dir, amount)
}

// DragElement implements §4.E "dragElement (10-step linear mouse-move
// path, 50ms pause before release)" from the center of fromUID to the
// center of toUID.
func (it *Interactor) DragElement(ctx context.Context, fromUID, toUID UID) error {
	if err := it.ScrollIntoView(ctx, fromUID); err != nil {
		return err
	}
	_, _, exec, err := it.resolve(fromUID)
	if err != nil {
		return err
	}
	from, err := it.GetElementCenter(ctx, fromUID)
	if err != nil {
		return err
	}
	if err := it.ScrollIntoView(ctx, toUID); err != nil {
		return err
	}
	to, err := it.GetElementCenter(ctx, toUID)
	if err != nil {
		return err
	}
	return input.Drag(ctx, exec, from, to)
}
