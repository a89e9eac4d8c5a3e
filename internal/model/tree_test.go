package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

// TestLinearConversation covers S1 from spec.md §8.4.
func TestLinearConversation(t *testing.T) {
	tree := NewConversationTree("c1")
	tree.Title = "Hello"
	tree.AddMessage(Message{ID: "a", Role: RoleUser, Content: MessageContent{Text: "Hi"}})
	tree.AddMessage(Message{ID: "b", Role: RoleAssistant, Content: MessageContent{Text: "Hi!"}, ParentID: strp("a")})

	require.Equal(t, 2, tree.MessageCount())
	assert.Equal(t, []string{"a"}, tree.RootIDs)
	assert.Equal(t, []string{"b"}, tree.ChildrenOf("a"))

	paths := tree.GetAllPaths()
	require.Len(t, paths, 1)
	assert.Equal(t, Path{"a", "b"}, paths[0])
	assert.False(t, tree.HasBranches())
}

// TestBranchingPathEnumeration covers S2 from spec.md §8.4.
func TestBranchingPathEnumeration(t *testing.T) {
	tree := NewConversationTree("c2")
	tree.AddMessage(Message{ID: "r", Role: RoleUser, Content: MessageContent{Text: "root"}})
	tree.AddMessage(Message{ID: "c1", Role: RoleAssistant, ParentID: strp("r")})
	tree.AddMessage(Message{ID: "c2", Role: RoleAssistant, ParentID: strp("r")})
	tree.AddMessage(Message{ID: "g1", Role: RoleUser, ParentID: strp("c1")})

	paths := tree.GetAllPaths()
	require.Len(t, paths, 2)
	assert.Equal(t, Path{"r", "c1", "g1"}, paths[0])
	assert.Equal(t, Path{"r", "c2"}, paths[1])

	longest, ok := tree.GetLongestPath()
	require.True(t, ok)
	assert.Equal(t, Path{"r", "c1", "g1"}, longest)
	assert.True(t, tree.HasBranches())
}

// TestLongestIsMax covers P3.
func TestLongestIsMax(t *testing.T) {
	tree := NewConversationTree("c3")
	tree.AddMessage(Message{ID: "r", Role: RoleUser})
	tree.AddMessage(Message{ID: "a", Role: RoleAssistant, ParentID: strp("r")})
	tree.AddMessage(Message{ID: "b", Role: RoleUser, ParentID: strp("r")})
	tree.AddMessage(Message{ID: "c", Role: RoleAssistant, ParentID: strp("b")})

	longest, ok := tree.GetLongestPath()
	require.True(t, ok)
	for _, p := range tree.GetAllPaths() {
		assert.LessOrEqual(t, len(p), len(longest))
	}
}

// TestPathTotality covers P2.
func TestPathTotality(t *testing.T) {
	empty := NewConversationTree("empty")
	assert.Empty(t, empty.GetAllPaths())

	tree := NewConversationTree("nonempty")
	tree.AddMessage(Message{ID: "a", Role: RoleUser})
	paths := tree.GetAllPaths()
	require.Len(t, paths, 1)
	assert.Equal(t, "a", paths[0][0])
	assert.Equal(t, "a", paths[0][len(paths[0])-1])
}

func TestGetLatestPathPrefersLatestTimestamp(t *testing.T) {
	tree := NewConversationTree("c4")
	earlier := int64(100)
	later := int64(200)
	tree.AddMessage(Message{ID: "r", Role: RoleUser})
	tree.AddMessage(Message{ID: "a", Role: RoleAssistant, ParentID: strp("r"), Timestamp: &earlier})
	tree.AddMessage(Message{ID: "b", Role: RoleAssistant, ParentID: strp("r"), Timestamp: &later})

	latest, ok := tree.GetLatestPath()
	require.True(t, ok)
	assert.Equal(t, Path{"r", "b"}, latest)
}

func TestNilTimestampsOrderLast(t *testing.T) {
	tree := NewConversationTree("c5")
	ts := int64(50)
	tree.AddMessage(Message{ID: "r", Role: RoleUser})
	tree.AddMessage(Message{ID: "a", Role: RoleAssistant, ParentID: strp("r"), Timestamp: &ts})
	tree.AddMessage(Message{ID: "b", Role: RoleAssistant, ParentID: strp("r")}) // nil timestamp

	latest, ok := tree.GetLatestPath()
	require.True(t, ok)
	assert.Equal(t, Path{"r", "a"}, latest)
}

func TestParseMessageRoleAnyCase(t *testing.T) {
	r, ok := ParseMessageRole("UsEr")
	require.True(t, ok)
	assert.Equal(t, RoleUser, r)

	_, ok = ParseMessageRole("bogus")
	assert.False(t, ok)
}

func TestTagCategoryFromPrefix(t *testing.T) {
	tag := NewTag("project:ctk")
	assert.Equal(t, "project", tag.Category)
	assert.Equal(t, "project:ctk", tag.Name)

	plain := NewTag("misc")
	assert.Empty(t, plain.Category)
}
