// Package tree implements C3: a pure in-memory rebuild of a
// model.ConversationTree with bidirectional parent/child links, used when
// traversal cost must be amortized across many path operations
// (spec.md §4.3). Grounded on original_source/ctk/core/tree.py's
// ConversationTreeNavigator/TreeMessage.
package tree

import (
	"fmt"
	"strings"

	"github.com/queelius/ctk/internal/ctkerr"
	"github.com/queelius/ctk/internal/model"
	"github.com/queelius/ctk/internal/validate"
)

// Node wraps a model.Message with resolved parent/child pointers.
type Node struct {
	Message  *model.Message
	Parent   *Node
	Children []*Node
}

func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Depth returns the distance from n to its root.
func (n *Node) Depth() int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Navigator is the two-pass rebuild described in spec.md §4.3: first every
// node is created, then parent/child pointers are linked.
type Navigator struct {
	tree  *model.ConversationTree
	nodes map[string]*Node
	roots []*Node
}

// NewNavigator builds a Navigator over tree.
func NewNavigator(t *model.ConversationTree) *Navigator {
	nav := &Navigator{tree: t, nodes: make(map[string]*Node)}

	for _, m := range t.Messages() {
		nav.nodes[m.ID] = &Node{Message: m}
	}
	for _, m := range t.Messages() {
		node := nav.nodes[m.ID]
		if m.ParentID != nil {
			if parent, ok := nav.nodes[*m.ParentID]; ok {
				node.Parent = parent
				parent.Children = append(parent.Children, node)
			}
		}
	}
	for _, id := range t.RootIDs {
		if n, ok := nav.nodes[id]; ok {
			nav.roots = append(nav.roots, n)
		}
	}

	return nav
}

// Node looks up the node for a message id.
func (n *Navigator) Node(id string) (*Node, bool) {
	node, ok := n.nodes[id]
	return node, ok
}

// GetAllLeaves returns every leaf node reachable from the roots.
func (n *Navigator) GetAllLeaves() []*Node {
	var leaves []*Node
	var walk func(*Node)
	walk = func(node *Node) {
		if node.IsLeaf() {
			leaves = append(leaves, node)
			return
		}
		for _, c := range node.Children {
			walk(c)
		}
	}
	for _, r := range n.roots {
		walk(r)
	}
	return leaves
}

// GetAllPaths delegates to the underlying tree's DFS enumeration, resolved
// to Node slices (one per root-to-leaf path).
func (n *Navigator) GetAllPaths() [][]*Node {
	var paths [][]*Node
	for _, p := range n.tree.GetAllPaths() {
		nodes := make([]*Node, 0, len(p))
		for _, id := range p {
			nodes = append(nodes, n.nodes[id])
		}
		paths = append(paths, nodes)
	}
	return paths
}

// GetPathCount returns the number of root-to-leaf paths.
func (n *Navigator) GetPathCount() int { return len(n.tree.GetAllPaths()) }

// GetPath returns the i-th path, or (nil, false) if out of range.
func (n *Navigator) GetPath(i int) ([]*Node, bool) {
	paths := n.GetAllPaths()
	if i < 0 || i >= len(paths) {
		return nil, false
	}
	return paths[i], true
}

// GetLongestPath resolves model.ConversationTree.GetLongestPath to Nodes.
func (n *Navigator) GetLongestPath() ([]*Node, bool) {
	p, ok := n.tree.GetLongestPath()
	if !ok {
		return nil, false
	}
	return n.resolve(p), true
}

// GetLatestPath resolves model.ConversationTree.GetLatestPath to Nodes.
func (n *Navigator) GetLatestPath() ([]*Node, bool) {
	p, ok := n.tree.GetLatestPath()
	if !ok {
		return nil, false
	}
	return n.resolve(p), true
}

// SelectPath resolves a user-supplied path-selection string to a path,
// grounded on original_source/ctk/core/conversation_display.py's
// format_conversation dispatch ("longest" | "first" | "last", empty
// defaults to "longest"). The selection string is validated first since
// it crosses an untrusted-input boundary (spec.md §7).
func (n *Navigator) SelectPath(selection string) ([]*Node, error) {
	validated, err := validate.PathSelection(selection)
	if err != nil {
		return nil, err
	}
	if validated == "" {
		validated = "longest"
	}

	switch validated {
	case "longest":
		path, ok := n.GetLongestPath()
		if !ok {
			return nil, &ctkerr.NotFoundError{Kind: "path", ID: "longest"}
		}
		return path, nil
	case "first":
		path, ok := n.GetPath(0)
		if !ok {
			return nil, &ctkerr.NotFoundError{Kind: "path", ID: "first"}
		}
		return path, nil
	case "last":
		path, ok := n.GetPath(n.GetPathCount() - 1)
		if !ok {
			return nil, &ctkerr.NotFoundError{Kind: "path", ID: "last"}
		}
		return path, nil
	default:
		return nil, &ctkerr.ValidationError{Field: "path_selection", Reason: "unsupported selection"}
	}
}

func (n *Navigator) resolve(p model.Path) []*Node {
	nodes := make([]*Node, 0, len(p))
	for _, id := range p {
		nodes = append(nodes, n.nodes[id])
	}
	return nodes
}

// HasBranches delegates to the underlying tree.
func (n *Navigator) HasBranches() bool { return n.tree.HasBranches() }

// ToConversationTree rebuilds a fresh model.ConversationTree from the
// navigator, preserving ids exactly (spec.md §4.3 "round-trips ... preserve
// ids").
func (n *Navigator) ToConversationTree() *model.ConversationTree {
	out := model.NewConversationTree(n.tree.ID)
	out.Title = n.tree.Title
	out.Metadata = n.tree.Metadata
	for _, m := range n.tree.Messages() {
		out.AddMessage(*m)
	}
	return out
}

// FormatMessage renders a single message for terminal display: role, a
// short id prefix, and truncated content (spec.md §4.3).
func FormatMessage(node *Node) string {
	text := node.Message.Content.GetText()
	const maxLen = 80
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}
	shortID := node.Message.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("[%s] %s: %s", shortID, node.Message.Role, text)
}

// FormatPath renders a root-to-leaf path as indented lines, one per
// message, deepest last.
func FormatPath(path []*Node) string {
	var b strings.Builder
	for i, node := range path {
		b.WriteString(strings.Repeat("  ", i))
		b.WriteString(FormatMessage(node))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatTree renders the whole tree as an indented outline starting from
// every root, branches expanding depth-first in insertion order.
func (n *Navigator) FormatTree() string {
	var b strings.Builder
	var walk func(*Node, int)
	walk = func(node *Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(FormatMessage(node))
		b.WriteString("\n")
		for _, c := range node.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range n.roots {
		walk(r, 0)
	}
	return b.String()
}
