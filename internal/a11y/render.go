package a11y

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
)

// builder accumulates UID assignments and rendered lines while walking one
// frame's or sub-target's accessibility tree.
type builder struct {
	verbose     bool
	seq         int
	byUID       map[UID]*Node
	parentByUID map[UID]UID
	allNodes    []*Node
}

func (b *builder) nextUID() UID {
	b.seq++
	return UID(fmt.Sprintf("s%d", b.seq))
}

// renderFrame walks nodes from their root(s) (nodes with no ParentID, or
// whose parent isn't present in this batch) and returns the indented lines
// for every included node, per §4.E step 5-7.
func (b *builder) renderFrame(frameOrSessionID, sessionID string, nodes []*accessibility.Node) []string {
	byID := make(map[accessibility.NodeID]*accessibility.Node, len(nodes))
	for _, n := range nodes {
		byID[n.NodeID] = n
	}

	var roots []*accessibility.Node
	for _, n := range nodes {
		if n.ParentID == "" || byID[n.ParentID] == nil {
			roots = append(roots, n)
		}
	}

	var lines []string
	// uidOf tracks the uid assigned to each raw NodeID so parent links can
	// be recorded even for nodes that were skipped (their nearest included
	// ancestor becomes the effective parent).
	uidOf := make(map[accessibility.NodeID]UID, len(nodes))

	var walk func(n *accessibility.Node, depth int, nearestIncludedUID UID)
	walk = func(n *accessibility.Node, depth int, nearestIncludedUID UID) {
		role := computedString(n.Role)
		included := include(n.Ignored, role, b.verbose)

		effectiveParent := nearestIncludedUID
		line := ""
		nextDepth := depth
		nextParent := nearestIncludedUID

		if included {
			uid := b.nextUID()
			uidOf[n.NodeID] = uid

			node := &Node{
				UID:          uid,
				Role:         role,
				Name:         computedString(n.Name),
				Description:  computedString(n.Description),
				Value:        computedValueString(n.Value),
				Properties:   propertyMap(n.Properties),
				Ignored:      n.Ignored,
				BackendDOMID: n.BackendDOMNodeID,
				ChildIDs:     n.ChildIDs,
				FrameID:      frameOrSessionID,
				SessionID:    sessionID,
				NodeID:       n.NodeID,
				ParentNodeID: n.ParentID,
			}
			b.byUID[uid] = node
			b.allNodes = append(b.allNodes, node)

			if effectiveParent != "" {
				frameKey := UID(frameOrSessionID + "#" + string(uid))
				b.parentByUID[frameKey] = effectiveParent
				b.parentByUID[uid] = effectiveParent
			}

			line = strings.Repeat("  ", depth) + formatLine(node)
			lines = append(lines, line)
			nextDepth = depth + 1
			nextParent = uid
		}

		for _, childID := range n.ChildIDs {
			child, ok := byID[childID]
			if !ok {
				continue
			}
			walk(child, nextDepth, nextParent)
		}
	}

	for _, r := range roots {
		walk(r, 0, "")
	}

	return lines
}

func formatLine(n *Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "uid=%s %s %q", n.UID, n.Role, n.Name)

	for key, val := range n.Properties {
		if alias, ok := booleanPropertyAliases[key]; ok {
			fmt.Fprintf(&b, " %s/%s=%s", alias, key, val)
			continue
		}
		fmt.Fprintf(&b, " %s=%s", key, val)
	}

	if n.Value != "" {
		fmt.Fprintf(&b, " value=%q", n.Value)
	}
	return b.String()
}

func computedString(p *accessibility.AXValue) string {
	if p == nil || p.Value == nil {
		return ""
	}
	if s, ok := p.Value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", p.Value)
}

func computedValueString(p *accessibility.AXValue) string {
	return computedString(p)
}

func propertyMap(props []*accessibility.Property) map[string]string {
	out := make(map[string]string, len(props))
	for _, p := range props {
		if p == nil || p.Value == nil {
			continue
		}
		out[string(p.Name)] = computedString(p.Value)
	}
	return out
}
