package input

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
)

// Point is a viewport-relative coordinate pair.
type Point struct {
	X float64
	Y float64
}

// MouseMove dispatches a single mouseMoved event to pt.
func MouseMove(ctx context.Context, exec cdp.Executor, pt Point) error {
	return input.DispatchMouseEvent(input.MouseMoved, pt.X, pt.Y).
		Do(cdp.WithExecutor(ctx, exec))
}

// Click dispatches a move, a mousePressed, and a mouseReleased at pt with
// the left button — the low-level sequence behind the a11y engine's
// clickElement contract (§4.E: "scroll, center, click").
func Click(ctx context.Context, exec cdp.Executor, pt Point) error {
	if err := MouseMove(ctx, exec, pt); err != nil {
		return err
	}
	if err := input.DispatchMouseEvent(input.MousePressed, pt.X, pt.Y).
		WithButton(input.Left).
		WithClickCount(1).
		Do(cdp.WithExecutor(ctx, exec)); err != nil {
		return err
	}
	return input.DispatchMouseEvent(input.MouseReleased, pt.X, pt.Y).
		WithButton(input.Left).
		WithClickCount(1).
		Do(cdp.WithExecutor(ctx, exec))
}

// Hover moves the mouse to pt without pressing any button (§4.E
// "hoverElement").
func Hover(ctx context.Context, exec cdp.Executor, pt Point) error {
	return MouseMove(ctx, exec, pt)
}

// Drag dispatches a mousePressed at from, a 10-step linear move from from to
// to, a 50ms settle pause, and a mouseReleased at to (§4.E
// "dragElement": "10-step linear mouse-move path, 50ms pause before
// release").
func Drag(ctx context.Context, exec cdp.Executor, from, to Point) error {
	if err := MouseMove(ctx, exec, from); err != nil {
		return err
	}
	if err := input.DispatchMouseEvent(input.MousePressed, from.X, from.Y).
		WithButton(input.Left).
		WithClickCount(1).
		Do(cdp.WithExecutor(ctx, exec)); err != nil {
		return err
	}

	const steps = 10
	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		pt := Point{
			X: from.X + (to.X-from.X)*frac,
			Y: from.Y + (to.Y-from.Y)*frac,
		}
		if err := input.DispatchMouseEvent(input.MouseMoved, pt.X, pt.Y).
			WithButton(input.Left).
			Do(cdp.WithExecutor(ctx, exec)); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}

	return input.DispatchMouseEvent(input.MouseReleased, to.X, to.Y).
		WithButton(input.Left).
		WithClickCount(1).
		Do(cdp.WithExecutor(ctx, exec))
}

// ScrollDirection names one of the four wheel directions §4.E's
// scrollElement contract accepts.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// Wheel dispatches a mouseWheel event at pt moving amount pixels in
// direction (§4.E "scrollElement": "scroll into view then optional
// wheel event with {up|down|left|right} x amount").
func Wheel(ctx context.Context, exec cdp.Executor, pt Point, dir ScrollDirection, amount float64) error {
	var dx, dy float64
	switch dir {
	case ScrollUp:
		dy = -amount
	case ScrollDown:
		dy = amount
	case ScrollLeft:
		dx = -amount
	case ScrollRight:
		dx = amount
	}
	return input.DispatchMouseEvent(input.MouseWheel, pt.X, pt.Y).
		WithDeltaX(dx).
		WithDeltaY(dy).
		Do(cdp.WithExecutor(ctx, exec))
}
