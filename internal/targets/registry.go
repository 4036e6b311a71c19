// Package targets implements the Target Registry (§4.B): a pure
// reflection of Target.attachedToTarget/detachedFromTarget events since the
// last transport open, tracking the main page target plus attached
// sub-targets (frames, webviews) by session id. It is grounded on the
// k6's Browser.onAttachedToTarget/onDetachedFromTarget fan-out pattern
// (common/browser.go), generalized away from constructing Page/BrowserContext
// objects — there is no page-scripting surface in this bridge, only a table
// of what is attached and how to reach it.
package targets

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/sirupsen/logrus"
)

// Info is what the registry remembers about one attached target.
type Info struct {
	TargetID target.ID
	Type     string
	Title    string
	URL      string
	Attached bool
}

// kinds the registry tracks; other target types (service_worker, browser,
// etc.) are still auto-attached at the protocol level so they do not
// orphan, but this bridge has no use for them and the registry drops them.
var trackedTypes = map[string]bool{
	"page":    true,
	"iframe":  true,
	"webview": true,
}

// Registry tracks (sessionId -> Info) for everything currently attached. It
// is wiped whenever a fresh transport is created (§4.B invariant); there
// is no cross-connection persistence.
type Registry struct {
	mu      sync.RWMutex
	bySess  map[target.SessionID]*Info
	logger  *logrus.Entry
}

// New creates an empty Registry and subscribes it to exec's event stream.
// exec must also be the cdp.Executor used to enable target discovery/auto
// -attach; New issues those two commands itself so callers cannot forget
// them.
func New(ctx context.Context, exec cdp.Executor, subscribe func(func(*cdproto.Message)), logger *logrus.Entry) (*Registry, error) {
	r := &Registry{
		bySess: make(map[target.SessionID]*Info),
		logger: logger,
	}

	if err := target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, exec)); err != nil {
		return nil, err
	}
	if err := target.SetAutoAttach(true, false).WithFlatten(true).Do(cdp.WithExecutor(ctx, exec)); err != nil {
		return nil, err
	}

	subscribe(r.onEvent)
	return r, nil
}

func (r *Registry) onEvent(msg *cdproto.Message) {
	switch msg.Method {
	case cdproto.EventTargetAttachedToTarget:
		r.onAttached(msg)
	case cdproto.EventTargetDetachedFromTarget:
		r.onDetached(msg)
	}
}

func (r *Registry) onAttached(msg *cdproto.Message) {
	var ev target.EventAttachedToTarget
	if err := unmarshalParams(msg, &ev); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Warn("targets: malformed attachedToTarget event")
		}
		return
	}
	if ev.TargetInfo == nil {
		return
	}
	if !trackedTypes[ev.TargetInfo.Type] {
		return
	}

	info := &Info{
		TargetID: ev.TargetInfo.TargetID,
		Type:     ev.TargetInfo.Type,
		Title:    ev.TargetInfo.Title,
		URL:      ev.TargetInfo.URL,
		Attached: ev.TargetInfo.Attached,
	}

	r.mu.Lock()
	r.bySess[ev.SessionID] = info
	r.mu.Unlock()
}

func (r *Registry) onDetached(msg *cdproto.Message) {
	var ev target.EventDetachedFromTarget
	if err := unmarshalParams(msg, &ev); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Warn("targets: malformed detachedFromTarget event")
		}
		return
	}

	r.mu.Lock()
	delete(r.bySess, ev.SessionID)
	r.mu.Unlock()
}

// Clear removes every entry, used when the transport closes (§4.B: "the
// registry ... is wiped whenever a fresh transport is created").
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySess = make(map[target.SessionID]*Info)
}

// Get looks up the Info attached to sessionID, if any.
func (r *Registry) Get(sessionID target.SessionID) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.bySess[sessionID]
	return info, ok
}

// ListAttached returns every currently attached (sessionId, Info) pair. The
// order is unspecified; callers that need stable iteration order should
// sort.
func (r *Registry) ListAttached() map[target.SessionID]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[target.SessionID]Info, len(r.bySess))
	for id, info := range r.bySess {
		out[id] = *info
	}
	return out
}

// IsWebviewURL reports whether url matches this bridge's tunable webview
// predicate (§9 open question: "the exact set of URL substrings
// classified as webview ... implementers should treat this as a tunable
// predicate").
func IsWebviewURL(url string) bool {
	for _, substr := range webviewURLSubstrings {
		if containsFold(url, substr) {
			return true
		}
	}
	return false
}

var webviewURLSubstrings = []string{
	"vscode-webview://",
	"extensionId=",
}
