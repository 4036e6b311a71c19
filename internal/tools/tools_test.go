package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/editor-control-bridge/internal/codeintel"
	"github.com/brennhill/editor-control-bridge/internal/dispatch"
)

func TestRegisterWiresEveryHandlerWithExpectedFlags(t *testing.T) {
	d := dispatch.New()
	Register(d, Deps{})

	wantInputTool := map[string]bool{
		"snapshot":        false,
		"keyboard_hotkey": true,
		"click":           false,
		"hover":           true,
		"type":            true,
		"fill":            true,
		"scroll":          true,
		"drag":            true,
		"codebase_query":  false,
	}

	handlers := d.Handlers()
	require.Len(t, handlers, len(wantInputTool))

	byName := make(map[string]*dispatch.Handler, len(handlers))
	for _, h := range handlers {
		byName[h.Name] = h
	}

	for name, wantInput := range wantInputTool {
		h, ok := byName[name]
		require.Truef(t, ok, "expected handler %q to be registered", name)
		assert.Equal(t, wantInput, h.IsInputTool, "handler %q IsInputTool", name)
		assert.NotNil(t, h.Fn, "handler %q Fn", name)
	}
}

type fakeRequester struct {
	raw json.RawMessage
	err error
}

func (f *fakeRequester) CodeQuery(ctx context.Context, query string, params interface{}) (json.RawMessage, error) {
	return f.raw, f.err
}

func TestCodebaseQueryErrorsWithoutCodeIntel(t *testing.T) {
	d := dispatch.New()
	Register(d, Deps{})

	h := findHandler(t, d, "codebase_query")
	b := &dispatch.Builder{}
	args, err := json.Marshal(codeQueryArgs{Query: "overview"})
	require.NoError(t, err)

	err = h.Fn(context.Background(), args, b)
	require.Error(t, err)
}

func TestCodebaseQuerySucceedsWithFakeCompanion(t *testing.T) {
	raw, err := json.Marshal(codeintel.Folder{Path: "/repo"})
	require.NoError(t, err)

	client := codeintel.New(&fakeRequester{raw: raw})
	d := dispatch.New()
	Register(d, Deps{CodeIntel: client})

	h := findHandler(t, d, "codebase_query")
	b := &dispatch.Builder{}
	args, err := json.Marshal(codeQueryArgs{Query: "overview"})
	require.NoError(t, err)

	err = h.Fn(context.Background(), args, b)
	require.NoError(t, err)
	require.Len(t, b.Parts(), 1)
	assert.Contains(t, b.Parts()[0].Text, "/repo")
}

func TestCodebaseQueryDecodeErrorOnBadJSON(t *testing.T) {
	d := dispatch.New()
	Register(d, Deps{})

	h := findHandler(t, d, "codebase_query")
	b := &dispatch.Builder{}

	err := h.Fn(context.Background(), []byte("not json"), b)
	require.Error(t, err)
}

func findHandler(t *testing.T, d *dispatch.Dispatcher, name string) *dispatch.Handler {
	t.Helper()
	for _, h := range d.Handlers() {
		if h.Name == name {
			return h
		}
	}
	t.Fatalf("handler %q not registered", name)
	return nil
}
