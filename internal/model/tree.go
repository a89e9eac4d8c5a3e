package model

// ConversationMetadata is spec.md §3.5.
type ConversationMetadata struct {
	Source     string
	Model      string
	Project    string
	Format     string
	Version    string
	Tags       []string // ordered set
	CreatedAt  *int64
	UpdatedAt  *int64
	StarredAt  *int64
	PinnedAt   *int64
	ArchivedAt *int64
	CustomData map[string]any
}

func (m ConversationMetadata) Starred() bool  { return m.StarredAt != nil }
func (m ConversationMetadata) Pinned() bool   { return m.PinnedAt != nil }
func (m ConversationMetadata) Archived() bool { return m.ArchivedAt != nil }

// ConversationTree is the rooted forest of spec.md §3.4. message_map
// preserves insertion order via messageOrder; root_message_ids is an
// explicit ordered slice.
type ConversationTree struct {
	ID       string
	Title    string
	Metadata ConversationMetadata

	messages     map[string]*Message
	messageOrder []string
	RootIDs      []string

	childrenOf map[string][]string // parent id -> child ids, insertion order
}

// NewConversationTree constructs an empty tree with the given id.
func NewConversationTree(id string) *ConversationTree {
	return &ConversationTree{
		ID:         id,
		messages:   make(map[string]*Message),
		childrenOf: make(map[string][]string),
	}
}

// AddMessage appends m to the tree (spec.md §3.4 add_message). If
// m.ParentID is nil, m.ID is appended to RootIDs.
func (t *ConversationTree) AddMessage(m Message) {
	t.messages[m.ID] = &m
	t.messageOrder = append(t.messageOrder, m.ID)
	if m.ParentID == nil {
		t.RootIDs = append(t.RootIDs, m.ID)
	} else {
		t.childrenOf[*m.ParentID] = append(t.childrenOf[*m.ParentID], m.ID)
	}
}

// Message looks up a message by id.
func (t *ConversationTree) Message(id string) (*Message, bool) {
	m, ok := t.messages[id]
	return m, ok
}

// Messages returns every message in insertion order.
func (t *ConversationTree) Messages() []*Message {
	out := make([]*Message, 0, len(t.messageOrder))
	for _, id := range t.messageOrder {
		out = append(out, t.messages[id])
	}
	return out
}

// MessageCount returns the number of messages in the tree.
func (t *ConversationTree) MessageCount() int { return len(t.messageOrder) }

// ChildrenOf returns the ids of id's children in insertion order
// (spec.md §3.4 children_of).
func (t *ConversationTree) ChildrenOf(id string) []string {
	return t.childrenOf[id]
}

// IsLeaf reports whether id has no children.
func (t *ConversationTree) IsLeaf(id string) bool {
	return len(t.childrenOf[id]) == 0
}

// HasBranches is true iff some message has >=2 children (spec.md §3.4).
func (t *ConversationTree) HasBranches() bool {
	for _, children := range t.childrenOf {
		if len(children) >= 2 {
			return true
		}
	}
	return false
}

// Path is a root-to-leaf sequence of message ids.
type Path []string

// GetAllPaths enumerates every root-to-leaf path via depth-first,
// insertion-order traversal, concatenated across RootIDs order
// (spec.md §4.1's path enumeration contract).
func (t *ConversationTree) GetAllPaths() []Path {
	var paths []Path
	for _, rootID := range t.RootIDs {
		t.walk(rootID, nil, &paths)
	}
	return paths
}

func (t *ConversationTree) walk(id string, prefix Path, paths *[]Path) {
	current := append(append(Path{}, prefix...), id)
	children := t.childrenOf[id]
	if len(children) == 0 {
		*paths = append(*paths, current)
		return
	}
	for _, child := range children {
		t.walk(child, current, paths)
	}
}

// GetPath returns the i-th path in enumeration order, or (nil, false) if
// i is out of range.
func (t *ConversationTree) GetPath(i int) (Path, bool) {
	paths := t.GetAllPaths()
	if i < 0 || i >= len(paths) {
		return nil, false
	}
	return paths[i], true
}

// GetLongestPath returns the path of maximal length, ties broken by
// earliest discovery in DFS order (spec.md §4.1).
func (t *ConversationTree) GetLongestPath() (Path, bool) {
	paths := t.GetAllPaths()
	if len(paths) == 0 {
		return nil, false
	}
	longest := paths[0]
	for _, p := range paths[1:] {
		if len(p) > len(longest) {
			longest = p
		}
	}
	return longest, true
}

// GetLatestPath returns the path ending at the leaf with maximal
// Timestamp; nil timestamps order last (spec.md §3.4 get_latest_path).
func (t *ConversationTree) GetLatestPath() (Path, bool) {
	paths := t.GetAllPaths()
	if len(paths) == 0 {
		return nil, false
	}
	best := paths[0]
	var bestTS *int64
	if m, ok := t.messages[best[len(best)-1]]; ok {
		bestTS = m.Timestamp
	}
	for _, p := range paths[1:] {
		leaf := p[len(p)-1]
		m, ok := t.messages[leaf]
		var ts *int64
		if ok {
			ts = m.Timestamp
		}
		if laterThan(ts, bestTS) {
			best = p
			bestTS = ts
		}
	}
	return best, true
}

// laterThan reports whether a is later than b, with nil ordering last.
func laterThan(a, b *int64) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}
