package a11y

import (
	"context"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor implements the cdp.Executor interface to record calls made to
// it and allow assertions in tests, grounded in the retrieval pack's
// fakeSession.Execute pattern.
type fakeExecutor struct {
	calls []string
}

func (f *fakeExecutor) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	f.calls = append(f.calls, method)
	return nil
}

func newTestInteractor(resolver *Resolver, mainExec cdp.Executor, resolveSess SessionResolver) *Interactor {
	return NewInteractor(resolver, mainExec, resolveSess)
}

func TestQuadCenter(t *testing.T) {
	quad := []float64{0, 0, 10, 0, 10, 10, 0, 10}
	pt := quadCenter(quad)
	assert.Equal(t, 5.0, pt.X)
	assert.Equal(t, 5.0, pt.Y)
}

func TestFocusElementUsesMainExecutor(t *testing.T) {
	resolver := newResolver()
	resolver.Replace(map[UID]*Node{
		"s1": {UID: "s1", Role: "button", BackendDOMID: 42},
	}, map[UID]UID{})

	exec := &fakeExecutor{}
	it := newTestInteractor(resolver, exec, nil)

	err := it.FocusElement(context.Background(), "s1")
	require.NoError(t, err)
	assert.Contains(t, exec.calls, "DOM.focus")
}

func TestFocusElementUnknownUIDErrors(t *testing.T) {
	resolver := newResolver()
	exec := &fakeExecutor{}
	it := newTestInteractor(resolver, exec, nil)

	err := it.FocusElement(context.Background(), "missing")
	var staleErr *StaleSnapshotError
	require.ErrorAs(t, err, &staleErr)
}

func TestGetElementCenterErrorsWithNoBox(t *testing.T) {
	resolver := newResolver()
	resolver.Replace(map[UID]*Node{
		"s1": {UID: "s1", Role: "button", BackendDOMID: 42},
	}, map[UID]UID{})

	exec := &fakeExecutor{}
	it := newTestInteractor(resolver, exec, nil)

	_, err := it.GetElementCenter(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, exec.calls, "DOM.getBoxModel")
	assert.Contains(t, exec.calls, "DOM.getContentQuads")
}

func TestScrollElementSkipsWheelWhenDirEmpty(t *testing.T) {
	resolver := newResolver()
	resolver.Replace(map[UID]*Node{
		"s1": {UID: "s1", Role: "generic", BackendDOMID: 7},
	}, map[UID]UID{})

	exec := &fakeExecutor{}
	it := newTestInteractor(resolver, exec, nil)

	err := it.ScrollElement(context.Background(), "s1", "", 0)
	require.NoError(t, err)
	assert.Contains(t, exec.calls, "DOM.scrollIntoViewIfNeeded")
	for _, c := range exec.calls {
		assert.NotEqual(t, "Input.dispatchMouseEvent", c)
	}
}

func TestResolveUsesSubTargetSessionExecutor(t *testing.T) {
	resolver := newResolver()
	resolver.Replace(map[UID]*Node{
		"s1": {UID: "s1", Role: "button", BackendDOMID: 9, SessionID: "sess-1"},
	}, map[UID]UID{})

	mainExec := &fakeExecutor{}
	subExec := &fakeExecutor{}
	resolveSess := func(sessionID target.SessionID) (cdp.Executor, error) {
		assert.Equal(t, target.SessionID("sess-1"), sessionID)
		return subExec, nil
	}
	it := newTestInteractor(resolver, mainExec, resolveSess)

	err := it.FocusElement(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, mainExec.calls)
	assert.Contains(t, subExec.calls, "DOM.focus")
}

func TestResolveUnknownUID(t *testing.T) {
	resolver := newResolver()
	exec := &fakeExecutor{}
	it := newTestInteractor(resolver, exec, nil)

	_, _, _, err := it.resolve("nope")
	require.Error(t, err)
}
