package a11y

import (
	"testing"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strValue(s string) *accessibility.AXValue {
	return &accessibility.AXValue{Value: s}
}

func TestRenderFrameAssignsUIDsToIncludedNodes(t *testing.T) {
	nodes := []*accessibility.Node{
		{
			NodeID: "1",
			Role:   strValue("dialog"),
			Name:   strValue("Settings"),
		},
	}

	b := &builder{byUID: map[UID]*Node{}, parentByUID: map[UID]UID{}}
	lines := b.renderFrame("frame-a", "", nodes)

	require.Len(t, lines, 1)
	require.Len(t, b.allNodes, 1)
	assert.Equal(t, "dialog", b.allNodes[0].Role)
	assert.Equal(t, "Settings", b.allNodes[0].Name)
	assert.Equal(t, "frame-a", b.allNodes[0].FrameID)
}

func TestRenderFrameSkipsUninterestingRoles(t *testing.T) {
	nodes := []*accessibility.Node{
		{
			NodeID: "1",
			Role:   strValue("generic"),
			Name:   strValue("wrapper"),
		},
	}

	b := &builder{byUID: map[UID]*Node{}, parentByUID: map[UID]UID{}}
	lines := b.renderFrame("frame-a", "", nodes)

	assert.Empty(t, lines)
	assert.Empty(t, b.allNodes)
}

func TestRenderFrameRecordsFramePrefixedParent(t *testing.T) {
	nodes := []*accessibility.Node{
		{
			NodeID:   "1",
			Role:     strValue("dialog"),
			Name:     strValue("Settings"),
			ChildIDs: []accessibility.NodeID{"2"},
		},
		{
			NodeID:   "2",
			ParentID: "1",
			Role:     strValue("button"),
			Name:     strValue("Close"),
		},
	}

	b := &builder{byUID: map[UID]*Node{}, parentByUID: map[UID]UID{}}
	b.renderFrame("frame-a", "", nodes)

	require.Len(t, b.allNodes, 2)
	parentNode := b.allNodes[0]
	childNode := b.allNodes[1]
	assert.Equal(t, "dialog", parentNode.Role)
	assert.Equal(t, "button", childNode.Role)

	frameKey := UID("frame-a#" + string(childNode.UID))
	gotParent, ok := b.parentByUID[frameKey]
	require.True(t, ok)
	assert.Equal(t, parentNode.UID, gotParent)

	plainParent, ok := b.parentByUID[childNode.UID]
	require.True(t, ok)
	assert.Equal(t, parentNode.UID, plainParent)
}

func TestRenderFrameSkippedNodeUsesNearestIncludedAncestor(t *testing.T) {
	nodes := []*accessibility.Node{
		{
			NodeID: "1",
			Role:   strValue("dialog"),
			Name:   strValue("Settings"),
		},
		{
			NodeID:   "2",
			ParentID: "1",
			Role:     strValue("generic"),
			Name:     strValue("wrapper"),
			ChildIDs: []accessibility.NodeID{"3"},
		},
		{
			NodeID:   "3",
			ParentID: "2",
			Role:     strValue("button"),
			Name:     strValue("Close"),
		},
	}
	// link child ids for the included root so the walk reaches node 2.
	nodes[0].ChildIDs = []accessibility.NodeID{"2"}

	b := &builder{byUID: map[UID]*Node{}, parentByUID: map[UID]UID{}}
	b.renderFrame("frame-a", "", nodes)

	require.Len(t, b.allNodes, 2)
	dialogUID := b.allNodes[0].UID
	buttonUID := b.allNodes[1].UID

	gotParent, ok := b.parentByUID[buttonUID]
	require.True(t, ok)
	assert.Equal(t, dialogUID, gotParent)
}

func TestComputedStringHandlesNilAndNonString(t *testing.T) {
	assert.Equal(t, "", computedString(nil))
	assert.Equal(t, "", computedString(&accessibility.AXValue{}))
	assert.Equal(t, "true", computedString(&accessibility.AXValue{Value: true}))
	assert.Equal(t, "label", computedString(strValue("label")))
}
