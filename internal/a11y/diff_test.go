package a11y

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffSignaturesAddedRemovedChanged(t *testing.T) {
	before := map[cdp.BackendNodeID]Signature{
		1: {Role: "button", Name: "Save"},
		2: {Role: "checkbox", Name: "Agree", Checked: "false"},
	}
	after := map[cdp.BackendNodeID]Signature{
		2: {Role: "checkbox", Name: "Agree", Checked: "true"},
		3: {Role: "button", Name: "Cancel"},
	}

	d := DiffSignatures(before, after)
	assert.ElementsMatch(t, []cdp.BackendNodeID{3}, d.Added)
	assert.ElementsMatch(t, []cdp.BackendNodeID{1}, d.Removed)
	require.Len(t, d.Changed, 1)
	assert.Equal(t, cdp.BackendNodeID(2), d.Changed[0].NodeID)
	assert.Equal(t, []FieldDelta{{Field: "checked", Before: "false", After: "true"}}, d.Changed[0].Deltas)
}

func TestDiffIsEmptyAndSummary(t *testing.T) {
	d := Diff{}
	assert.True(t, d.IsEmpty())
	assert.Equal(t, "no observable change", d.Summary())

	d.Added = []cdp.BackendNodeID{1}
	assert.False(t, d.IsEmpty())
	assert.Contains(t, d.Summary(), "added 1 node(s)")
}

func TestFetchForDiffSkipsVirtualAndUninterestingNodes(t *testing.T) {
	nodes := []*Node{
		{BackendDOMID: 0, Role: "button"},
		{BackendDOMID: 1, Role: "generic"},
		{BackendDOMID: 2, Role: "button", Name: "Save"},
	}
	sigs := FetchForDiff(nodes)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Save", sigs[2].Name)
}

func TestExecuteWithDiffActionErrorShortCircuits(t *testing.T) {
	wantErr := errors.New("click failed")
	_, err := ExecuteWithDiff(context.Background(), nil, func() error {
		return wantErr
	}, func() (map[cdp.BackendNodeID]Signature, error) {
		t.Fatal("fetch should not be called when action fails")
		return nil, nil
	}, time.Second)

	require.ErrorIs(t, err, wantErr)
}

func TestExecuteWithDiffDetectsChangeBeforeTimeout(t *testing.T) {
	before := map[cdp.BackendNodeID]Signature{1: {Role: "button", Name: "Save"}}
	after := map[cdp.BackendNodeID]Signature{1: {Role: "button", Name: "Saved"}}

	summary, err := ExecuteWithDiff(context.Background(), before, func() error {
		return nil
	}, func() (map[cdp.BackendNodeID]Signature, error) {
		return after, nil
	}, 2*time.Second)

	require.NoError(t, err)
	assert.Contains(t, summary, "changed 1 node(s)")
}

func TestExecuteWithDiffReturnsNoChangeSummaryAtTimeout(t *testing.T) {
	same := map[cdp.BackendNodeID]Signature{1: {Role: "button", Name: "Save"}}

	summary, err := ExecuteWithDiff(context.Background(), same, func() error {
		return nil
	}, func() (map[cdp.BackendNodeID]Signature, error) {
		return same, nil
	}, 150*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "no observable change", summary)
}
