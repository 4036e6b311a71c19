package input

import (
	"context"
	"testing"

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

func TestClickDispatchesMoveAndButtonEvents(t *testing.T) {
	exec := &fakeExecutor{}
	err := Click(context.Background(), exec, Point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Input.dispatchMouseEvent",
		"Input.dispatchMouseEvent",
		"Input.dispatchMouseEvent",
	}, exec.calls)
}

func TestHoverDispatchesOnlyMove(t *testing.T) {
	exec := &fakeExecutor{}
	err := Hover(context.Background(), exec, Point{X: 3, Y: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"Input.dispatchMouseEvent"}, exec.calls)
}

func TestDragDispatchesPressMovesAndRelease(t *testing.T) {
	exec := &fakeExecutor{}
	err := Drag(context.Background(), exec, Point{X: 0, Y: 0}, Point{X: 100, Y: 0})
	require.NoError(t, err)
	// move-to-start, press, 10 intermediate moves, release.
	assert.Len(t, exec.calls, 13)
	for _, c := range exec.calls {
		assert.Equal(t, "Input.dispatchMouseEvent", c)
	}
}

func TestWheelDispatchesSingleEvent(t *testing.T) {
	exec := &fakeExecutor{}
	err := Wheel(context.Background(), exec, Point{X: 5, Y: 5}, ScrollDown, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Input.dispatchMouseEvent"}, exec.calls)
}

func TestMouseMoveDispatchesSingleEvent(t *testing.T) {
	exec := &fakeExecutor{}
	err := MouseMove(context.Background(), exec, Point{X: 1, Y: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Input.dispatchMouseEvent"}, exec.calls)
}
