package a11y

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverNodeStaleSnapshot(t *testing.T) {
	r := newResolver()
	_, err := r.Node("s1")
	var staleErr *StaleSnapshotError
	require.ErrorAs(t, err, &staleErr)
}

func TestResolverNodeFound(t *testing.T) {
	r := newResolver()
	want := &Node{UID: "s1", Role: "button"}
	r.Replace(map[UID]*Node{"s1": want}, map[UID]UID{})

	got, err := r.Node("s1")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestBackendDOMIDDirectHit(t *testing.T) {
	r := newResolver()
	r.Replace(map[UID]*Node{
		"s1": {UID: "s1", BackendDOMID: 42},
	}, map[UID]UID{})

	id, err := r.BackendDOMID("s1")
	require.NoError(t, err)
	assert.Equal(t, cdp.BackendNodeID(42), id)
}

func TestBackendDOMIDWalksParentChain(t *testing.T) {
	r := newResolver()
	r.Replace(map[UID]*Node{
		"child":  {UID: "child", BackendDOMID: 0, FrameID: "frame-a"},
		"parent": {UID: "parent", BackendDOMID: 99, FrameID: "frame-a"},
	}, map[UID]UID{
		"child": "parent",
	})

	id, err := r.BackendDOMID("child")
	require.NoError(t, err)
	assert.Equal(t, cdp.BackendNodeID(99), id)
}

func TestBackendDOMIDPrefersFramePrefixedParent(t *testing.T) {
	r := newResolver()
	r.Replace(map[UID]*Node{
		"child":     {UID: "child", BackendDOMID: 0, FrameID: "frame-a"},
		"realOwner": {UID: "realOwner", BackendDOMID: 11, FrameID: "frame-a"},
		"decoy":     {UID: "decoy", BackendDOMID: 22, FrameID: "frame-a"},
	}, map[UID]UID{
		UID("frame-a#child"): "realOwner",
		"child":              "decoy",
	})

	id, err := r.BackendDOMID("child")
	require.NoError(t, err)
	assert.Equal(t, cdp.BackendNodeID(11), id)
}

func TestBackendDOMIDVirtualNodeError(t *testing.T) {
	r := newResolver()
	r.Replace(map[UID]*Node{
		"s1": {UID: "s1", BackendDOMID: 0, FrameID: "frame-a"},
	}, map[UID]UID{})

	_, err := r.BackendDOMID("s1")
	var virtualErr *VirtualNodeError
	require.ErrorAs(t, err, &virtualErr)
}

func TestBackendDOMIDStaleSnapshot(t *testing.T) {
	r := newResolver()
	_, err := r.BackendDOMID("missing")
	var staleErr *StaleSnapshotError
	require.ErrorAs(t, err, &staleErr)
}
