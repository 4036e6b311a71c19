// Package dispatch implements the Tool Dispatcher (§4.G): a
// serialized request loop with mutex, timeout, self-rebuild-on-source
// -change hot-reload, blocking-UI preflight, and an error-path snapshot
// de-duplicator. No direct k6 analogue exists (k6 has no tool-call
// loop of its own); the serialize-plus-timeout-plus-structured-response
// shape is grounded in idiom on the retrieval pack's MCP/stdio bridges and
// wired onto this repo's own internal/mcpio stdio framing, internal/a11y
// snapshot engine, internal/lifecycle manager, internal/companion client,
// internal/hotreload controller, and internal/ledger.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brennhill/editor-control-bridge/internal/companion"
	"github.com/brennhill/editor-control-bridge/internal/hotreload"
	"github.com/brennhill/editor-control-bridge/internal/ledger"
	"github.com/brennhill/editor-control-bridge/internal/lifecycle"
	"github.com/brennhill/editor-control-bridge/internal/mcpio"
)

// DefaultTimeout is the per-request timeout §3 names when a Tool
// Request does not carry its own ("per-request timeout (default 30s)").
const DefaultTimeout = 30 * time.Second

// Part and Response alias the mcpio wire shapes so handlers do not need to
// import mcpio directly.
type Part = mcpio.Part
type Response = mcpio.Response

// TextPart and ImagePart re-export the mcpio constructors for handler use.
var TextPart = mcpio.TextPart
var ImagePart = mcpio.ImagePart

// Builder accumulates a handler's ordered content parts (§3 "Tool
// Response": "Ordered list of parts (text or image) plus an isError flag").
type Builder struct {
	parts   []Part
	isError bool
}

func (b *Builder) Text(s string)                  { b.parts = append(b.parts, TextPart(s)) }
func (b *Builder) Image(mimeType string, d []byte) { b.parts = append(b.parts, ImagePart(mimeType, d)) }
func (b *Builder) Parts() []Part                   { return b.parts }

// HandlerFunc is a tool's implementation: it populates b with the tool's
// output and returns an error to trigger §4.G's error path.
type HandlerFunc func(ctx context.Context, args []byte, b *Builder) error

// Handler is the "{name, schema, annotations, handler}" shape §9
// names ("Dynamic dispatch over handlers ... a tagged list of handler
// descriptors registered at startup; avoid inheritance").
type Handler struct {
	Name        string
	Schema      interface{}
	Annotations map[string]interface{}

	// Standalone tools skip ensureConnected (§4.G step 3 "unless the
	// tool is marked standalone").
	Standalone bool
	// IsInputTool marks the small set of keyboard/mouse/hotkey/scroll/
	// drag/type tools that bypass the blocking-UI gate (§4.G step 6).
	IsInputTool bool
	// SkipLedger opts the tool out of the process-ledger summary
	// decoration (§4.G step 8 "unless the tool opts out").
	SkipLedger bool
	// Timeout overrides DefaultTimeout when non-zero.
	Timeout time.Duration

	Fn HandlerFunc
}

// BlockingUIError reports that a modal dialog or blocking notification
// prevented a non-input tool from running (§7 "BlockingUIError").
type BlockingUIError struct {
	Message string
}

func (e *BlockingUIError) Error() string {
	return fmt.Sprintf("dispatch: blocked by UI: %s", e.Message)
}

// ToolTimeoutError reports that a tool exceeded its per-call budget (§7 "ToolTimeoutError").
type ToolTimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("dispatch: tool %q exceeded its %s timeout", e.Tool, e.Timeout)
}

// SnapshotFetcher fetches a fresh a11y snapshot's rendered text, used by
// the error path (§4.G "Error path") to enrich an error response. It
// is supplied by cmd/editor-bridge, closing over the live lifecycle Session
// and a11y Engine, since this package has no opinion on how a snapshot is
// taken.
type SnapshotFetcher func(ctx context.Context) (text string, err error)

// Dispatcher implements §4.G's per-request pipeline end to end.
type Dispatcher struct {
	Manager   *lifecycle.Manager
	Companion *companion.Client
	Ledger    *ledger.Ledger
	Hotreload *hotreload.Controller
	// ExtensionHotreload tracks the companion extension's own source/build
	// mtimes against the current editor window's start time (§4.G
	// step 4). A stale extension triggers RestartWindow + reconnect rather
	// than the bridge process restart Hotreload triggers.
	ExtensionHotreload *hotreload.Controller
	Snapshot           SnapshotFetcher
	Logger             *logrus.Entry

	mu sync.Mutex // step 5: only one tool runs at a time

	handlers map[string]*Handler

	lastErrGeneration int64
	lastErrText       string
	lastErrSet        bool

	restartBannerPending bool
}

// New builds a Dispatcher. Callers register handlers with Register before
// calling Dispatch.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]*Handler)}
}

// Register adds h to the dispatch table, keyed by h.Name.
func (d *Dispatcher) Register(h *Handler) {
	d.handlers = cloneAndSet(d.handlers, h)
}

func cloneAndSet(m map[string]*Handler, h *Handler) map[string]*Handler {
	out := make(map[string]*Handler, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[h.Name] = h
	return out
}

// Handlers returns every registered handler, used to build the agent's
// tools/list response.
func (d *Dispatcher) Handlers() []*Handler {
	out := make([]*Handler, 0, len(d.handlers))
	for _, h := range d.handlers {
		out = append(out, h)
	}
	return out
}

// restartOutcome is returned by checkSelfHotReload to tell Dispatch whether
// to short-circuit with a "restarting" response and whether the caller
// should exit(0) once that response has been written (§8 invariant 7).
type restartOutcome struct {
	shortCircuit bool
	text         string
	shouldExit   bool
}

// checkSelfHotReload implements §4.G step 1/2: detect a pending
// self-rebuild, run it, schedule a restart on success, and short-circuit
// any already-scheduled restart.
func (d *Dispatcher) checkSelfHotReload(ctx context.Context) (restartOutcome, error) {
	if d.Hotreload == nil {
		return restartOutcome{}, nil
	}

	if pending, reason := d.Hotreload.RestartPending(); pending {
		return restartOutcome{shortCircuit: true, text: fmt.Sprintf("restarting (%s), retry shortly", reason)}, nil
	}

	cond, err := d.Hotreload.Check()
	if err != nil {
		if d.Logger != nil {
			d.Logger.WithError(err).Warn("dispatch: self hot-reload check failed")
		}
		return restartOutcome{}, nil
	}

	switch cond {
	case hotreload.NoChange:
		return restartOutcome{}, nil
	case hotreload.SourceNewerThanBuild:
		if err := d.Hotreload.Rebuild(ctx); err != nil {
			var be *hotreload.BuildError
			if errors.As(err, &be) {
				return restartOutcome{}, be
			}
			return restartOutcome{}, err
		}
		if err := d.Hotreload.ScheduleRestart("rebuilt successfully"); err != nil {
			return restartOutcome{}, err
		}
		d.Hotreload.RequestRestart(ctx)
		return restartOutcome{shortCircuit: true, text: "rebuilt successfully — restarting, retry shortly", shouldExit: true}, nil
	case hotreload.BuildNewerThanStart:
		if err := d.Hotreload.ScheduleRestart("build updated"); err != nil {
			return restartOutcome{}, err
		}
		d.Hotreload.RequestRestart(ctx)
		return restartOutcome{shortCircuit: true, text: "build updated — restarting, retry shortly", shouldExit: true}, nil
	}
	return restartOutcome{}, nil
}

// checkExtensionHotReload implements §4.G step 4: if the companion
// extension's source is stale relative to its build, or its build is newer
// than the current window's start time, ask the companion bridge to stop
// the window, rebuild, and spawn a replacement, then reconnect.
func (d *Dispatcher) checkExtensionHotReload(ctx context.Context) error {
	if d.ExtensionHotreload == nil {
		return nil
	}

	cond, err := d.ExtensionHotreload.Check()
	if err != nil {
		return err
	}
	if cond == hotreload.NoChange {
		return nil
	}

	if cond == hotreload.SourceNewerThanBuild {
		if err := d.ExtensionHotreload.Rebuild(ctx); err != nil {
			return err
		}
	}

	if d.Companion != nil {
		if err := d.Companion.RestartWindow(ctx); err != nil {
			return err
		}
	}
	if d.Manager != nil {
		d.Manager.GracefulDetach()
		if _, err := d.Manager.EnsureConnected(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch runs req through the full pipeline and returns the Tool
// Response. shouldExit is true exactly when the caller must call exit(0)
// after writing the response, per §8 invariant 7 ("the scheduling
// response is returned before exit(0) is invoked").
func (d *Dispatcher) Dispatch(ctx context.Context, req mcpio.ToolCallParams) (Response, bool) {
	outcome, err := d.checkSelfHotReload(ctx)
	if err != nil {
		return d.errorResponse(ctx, err), false
	}
	if outcome.shortCircuit {
		return Response{Content: []Part{TextPart(outcome.text)}}, outcome.shouldExit
	}

	h, ok := d.handlers[req.Name]
	if !ok {
		return Response{Content: []Part{TextPart(fmt.Sprintf("dispatch: unknown tool %q", req.Name))}, IsError: true}, false
	}

	if !h.Standalone && d.Manager != nil {
		if _, err := d.Manager.EnsureConnected(ctx); err != nil {
			return d.errorResponse(ctx, fmt.Errorf("dispatch: ensure connected: %w", err)), false
		}
		if err := d.checkExtensionHotReload(ctx); err != nil && d.Logger != nil {
			d.Logger.WithError(err).Warn("dispatch: extension hot-reload cycle failed")
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var banner string
	if d.restartBannerPending && d.Hotreload != nil {
		if age, err := d.Hotreload.BuildAge(); err == nil {
			banner = fmt.Sprintf("(bridge was recently updated: build is %s old)\n", age.Round(time.Second))
		}
		_ = d.Hotreload.ClearMarker()
		d.restartBannerPending = false
	}

	var blockingBanner string
	if d.Companion != nil {
		state, err := d.Companion.BlockingUI(ctx)
		if err == nil && state.Blocked {
			if !h.IsInputTool {
				resp := Response{Content: []Part{TextPart(state.BlockingMessage)}, IsError: true}
				if banner != "" {
					resp.Content = append([]Part{TextPart(banner)}, resp.Content...)
				}
				return resp, false
			}
		} else if err == nil && state.BannerText != "" {
			blockingBanner = state.BannerText + "\n"
		}
	}

	b := &Builder{}
	runErr := d.runWithTimeout(ctx, h, req.Arguments, b)

	var resp Response
	if runErr != nil {
		resp = d.errorResponse(ctx, runErr)
	} else {
		resp = Response{Content: b.Parts()}
		if d.Ledger != nil && !h.SkipLedger {
			if summary := d.Ledger.FormatSummary(); summary != "" {
				resp.Content = append(resp.Content, TextPart(summary))
			}
		}
	}

	if banner != "" || blockingBanner != "" {
		resp.Content = append([]Part{TextPart(banner + blockingBanner)}, resp.Content...)
	}

	return resp, false
}

// runWithTimeout implements §4.G step 7: race the handler against its
// per-tool timeout. The handler's own in-flight protocol requests are not
// cancelled on timeout (§5 "Cancellation & timeouts": "orphaned and
// their responses dropped") — only the caller stops waiting.
func (d *Dispatcher) runWithTimeout(ctx context.Context, h *Handler, args []byte, b *Builder) error {
	timeout := h.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("dispatch: tool %q panicked: %v", h.Name, r)
			}
		}()
		done <- h.Fn(ctx, args, b)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &ToolTimeoutError{Tool: h.Name, Timeout: timeout}
		}
		return err
	case <-ctx.Done():
		return &ToolTimeoutError{Tool: h.Name, Timeout: timeout}
	}
}

// errorResponse implements §4.G's "Error path": the first part is the
// error message with its cause chain, followed by a fresh a11y snapshot —
// included only if it differs from the last one sent on error, or the
// connection generation changed (§8 invariant 5).
func (d *Dispatcher) errorResponse(ctx context.Context, err error) Response {
	resp := Response{Content: []Part{TextPart(causeChainText(err))}, IsError: true}

	if d.Snapshot == nil {
		return resp
	}

	text, snapErr := d.Snapshot(ctx)
	if snapErr != nil {
		return resp
	}

	gen := int64(0)
	if d.Manager != nil {
		gen = d.Manager.Generation()
	}

	if d.lastErrSet && gen == d.lastErrGeneration && text == d.lastErrText {
		return resp
	}

	d.lastErrGeneration = gen
	d.lastErrText = text
	d.lastErrSet = true

	resp.Content = append(resp.Content, TextPart("## Latest page snapshot\n"+text))
	return resp
}

// causeChainText renders err followed by each wrapped cause, one per line,
// mirroring §7's "the human-readable message (with causes chained)".
func causeChainText(err error) string {
	var b []byte
	b = append(b, err.Error()...)
	cause := errors.Unwrap(err)
	for cause != nil {
		b = append(b, fmt.Sprintf("\ncaused by: %s", cause.Error())...)
		cause = errors.Unwrap(cause)
	}
	return string(b)
}

// MarkRestarted flags that the process just came up after a self-hot
// -reload restart, so the next Dispatch call prepends the "recently
// updated" banner once (§4.G "Restart-on-update banner").
func (d *Dispatcher) MarkRestarted() {
	d.restartBannerPending = true
}
