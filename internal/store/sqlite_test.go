package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queelius/ctk/internal/model"
)

func strp(s string) *string { return &s }
func i64p(n int64) *int64   { return &n }

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTree(id string) *model.ConversationTree {
	tree := model.NewConversationTree(id)
	tree.Title = "Hello"
	tree.Metadata = model.ConversationMetadata{Source: "chatgpt", Model: "gpt-4", Tags: []string{"project:ctk", "misc"}}
	tree.AddMessage(model.Message{ID: "a", Role: model.RoleUser, Content: model.MessageContent{Text: "Hi"}})
	tree.AddMessage(model.Message{ID: "b", Role: model.RoleAssistant, Content: model.MessageContent{Text: "Hi!"}, ParentID: strp("a")})
	return tree
}

// TestListConversationsIncludesMetadata covers spec.md §6.1's
// conversation-summary contract: custom metadata must survive the
// list/search path, not just Load.
func TestListConversationsIncludesMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tree := sampleTree("c1")
	tree.Metadata.CustomData = map[string]any{"project": "ctk", "priority": "high"}
	_, err := s.Save(ctx, tree)
	require.NoError(t, err)

	page, err := s.ListConversations(ctx, ListFilters{}, Pagination{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ctk", page.Items[0].Metadata["project"])
	assert.Equal(t, "high", page.Items[0].Metadata["priority"])

	result, err := s.SearchConversations(ctx, SearchFilters{}, DefaultOrdering, Pagination{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "ctk", result.Items[0].Metadata["project"])
}

// TestSaveLoadRoundTrip covers S1 and P1.
func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Save(ctx, sampleTree("c1"))
	require.NoError(t, err)

	loaded, err := s.Load(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, "c1", loaded.ID)
	assert.Equal(t, []string{"a"}, loaded.RootIDs)
	assert.Equal(t, []string{"b"}, loaded.ChildrenOf("a"))
	assert.ElementsMatch(t, []string{"project:ctk", "misc"}, loaded.Metadata.Tags)

	paths := loaded.GetAllPaths()
	require.Len(t, paths, 1)
	assert.Equal(t, model.Path{"a", "b"}, paths[0])
}

func TestSaveTwiceDoesNotDuplicateTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Save(ctx, sampleTree("c1"))
	require.NoError(t, err)
	_, err = s.Save(ctx, sampleTree("c1"))
	require.NoError(t, err)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

// TestDeleteCascade covers P4.
func TestDeleteCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Save(ctx, sampleTree("c1"))
	require.NoError(t, err)

	ok, err := s.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Load(ctx, "c1")
	assert.Error(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = 'c1'`).Scan(&count))
	assert.Zero(t, count)
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM paths WHERE conversation_id = 'c1'`).Scan(&count))
	assert.Zero(t, count)
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Delete(ctx, "missing")
	assert.Error(t, err)
}

// TestStarredSearch covers S4.
func TestStarredSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		tree := sampleTree(id)
		if i%2 == 0 {
			tree.Metadata.StarredAt = i64p(int64(1000 + i))
		}
		_, err := s.Save(ctx, tree)
		require.NoError(t, err)
	}

	result, err := s.SearchConversations(ctx, SearchFilters{ListFilters: ListFilters{Starred: True()}}, DefaultOrdering, Pagination{PageSize: 100})
	require.NoError(t, err)
	assert.Len(t, result.Items, 5)
	for _, item := range result.Items {
		assert.NotNil(t, item.StarredAt)
	}

	result, err = s.SearchConversations(ctx, SearchFilters{ListFilters: ListFilters{Starred: False()}}, DefaultOrdering, Pagination{PageSize: 100})
	require.NoError(t, err)
	assert.Len(t, result.Items, 5)

	result, err = s.SearchConversations(ctx, SearchFilters{}, DefaultOrdering, Pagination{PageSize: 100})
	require.NoError(t, err)
	assert.Len(t, result.Items, 10)
}

// TestStarUnstarLeavesNull covers the star/unstar idempotence property.
func TestStarUnstarLeavesNull(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Save(ctx, sampleTree("c1"))
	require.NoError(t, err)

	_, err = s.StarConversation(ctx, "c1", true)
	require.NoError(t, err)
	_, err = s.StarConversation(ctx, "c1", false)
	require.NoError(t, err)

	loaded, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, loaded.Metadata.StarredAt)
}

// TestCursorPagination covers S3 and P5.
func TestCursorPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 25; i++ {
		id := "conv" + string(rune('a'+i))
		tree := sampleTree(id)
		ts := int64(1000 + i*3600)
		tree.Metadata.UpdatedAt = &ts
		tree.Metadata.CreatedAt = &ts
		_, err := s.Save(ctx, tree)
		require.NoError(t, err)
	}

	var allIDs []string
	cursor := ""
	pages := 0
	for {
		page, err := s.ListConversations(ctx, ListFilters{}, Pagination{Cursor: cursor, PageSize: 10})
		require.NoError(t, err)
		pages++
		for _, item := range page.Items {
			allIDs = append(allIDs, item.ID)
		}
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		cursor = page.NextCursor
		require.NotEmpty(t, cursor)
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, allIDs, 25)

	full, err := s.ListConversations(ctx, ListFilters{}, Pagination{PageSize: 25})
	require.NoError(t, err)
	var fullIDs []string
	for _, item := range full.Items {
		fullIDs = append(fullIDs, item.ID)
	}
	assert.Equal(t, fullIDs, allIDs)
}

func TestArchivedExcludedByDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t1 := sampleTree("c1")
	_, err := s.Save(ctx, t1)
	require.NoError(t, err)

	t2 := sampleTree("c2")
	ts := int64(500)
	t2.Metadata.ArchivedAt = &ts
	_, err = s.Save(ctx, t2)
	require.NoError(t, err)

	page, err := s.ListConversations(ctx, ListFilters{}, Pagination{PageSize: 50})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, "c1", page.Items[0].ID)

	page, err = s.ListConversations(ctx, ListFilters{IncludeArchived: true}, Pagination{PageSize: 50})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestDuplicateConversationRegeneratesIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Save(ctx, sampleTree("c1"))
	require.NoError(t, err)

	newID, err := s.DuplicateConversation(ctx, "c1", nil)
	require.NoError(t, err)
	assert.NotEqual(t, "c1", newID)

	original, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	duplicate, err := s.Load(ctx, newID)
	require.NoError(t, err)

	assert.Equal(t, len(original.GetAllPaths()), len(duplicate.GetAllPaths()))
	for _, m := range duplicate.Messages() {
		_, existsInOriginal := original.Message(m.ID)
		assert.False(t, existsInOriginal)
	}
}

func TestListTagChildren(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tree := model.NewConversationTree("c1")
	tree.Metadata.Tags = []string{"project/ctk/core", "project/ctk/vfs", "project/other", "standalone"}
	tree.AddMessage(model.Message{ID: "a", Role: model.RoleUser})
	_, err := s.Save(ctx, tree)
	require.NoError(t, err)

	children, err := s.ListTagChildren(ctx, "project")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ctk", "other"}, children)

	children, err = s.ListTagChildren(ctx, "project/ctk")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"core", "vfs"}, children)
}

func TestComputeSimilarityAndDuplicateDetection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := model.NewConversationTree("a")
	a.AddMessage(model.Message{ID: "m1", Role: model.RoleUser, Content: model.MessageContent{Text: "hello world"}})
	b := model.NewConversationTree("b")
	b.AddMessage(model.Message{ID: "m1", Role: model.RoleUser, Content: model.MessageContent{Text: "hello world"}})
	c := model.NewConversationTree("c")
	c.AddMessage(model.Message{ID: "m1", Role: model.RoleUser, Content: model.MessageContent{Text: "totally different"}})

	for _, tr := range []*model.ConversationTree{a, b, c} {
		_, err := s.Save(ctx, tr)
		require.NoError(t, err)
	}

	score, err := s.ComputeSimilarity(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 0.0001)

	dupes, err := s.FindDuplicateConversations(ctx)
	require.NoError(t, err)
	require.Len(t, dupes, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, dupes[0])
}

func TestHasBranchesFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	linear := model.NewConversationTree("linear")
	linear.AddMessage(model.Message{ID: "a", Role: model.RoleUser})
	linear.AddMessage(model.Message{ID: "b", Role: model.RoleAssistant, ParentID: strp("a")})
	_, err := s.Save(ctx, linear)
	require.NoError(t, err)

	branching := model.NewConversationTree("branching")
	branching.AddMessage(model.Message{ID: "a", Role: model.RoleUser})
	branching.AddMessage(model.Message{ID: "b", Role: model.RoleAssistant, ParentID: strp("a")})
	branching.AddMessage(model.Message{ID: "c", Role: model.RoleAssistant, ParentID: strp("a")})
	_, err = s.Save(ctx, branching)
	require.NoError(t, err)

	result, err := s.SearchConversations(ctx, SearchFilters{HasBranches: True()}, DefaultOrdering, Pagination{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "branching", result.Items[0].ID)
}

func TestEncodeDecodeCursorRoundTrip(t *testing.T) {
	cursor := EncodeCursor("2026-07-30T00:00:00Z", "conv1")
	u, id, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-30T00:00:00Z", u)
	assert.Equal(t, "conv1", id)
}

func TestDecodeCursorRejectsMalformed(t *testing.T) {
	_, _, err := DecodeCursor("not-valid-base64!!!")
	assert.Error(t, err)
}
