package vfs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queelius/ctk/internal/model"
	"github.com/queelius/ctk/internal/store"
)

func strp(s string) *string { return &s }

func newTestStore(t *testing.T) store.Storage {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func saveSample(t *testing.T, st store.Storage, id, title string) {
	t.Helper()
	tree := model.NewConversationTree(id)
	tree.Title = title
	tree.Metadata.Source = "chatgpt"
	tree.AddMessage(model.Message{ID: "m1", Role: model.RoleUser, Content: model.MessageContent{Text: "Hello world"}})
	tree.AddMessage(model.Message{ID: "m2", Role: model.RoleAssistant, Content: model.MessageContent{Text: "Hi!"}, ParentID: strp("m1")})
	_, err := st.Save(context.Background(), tree)
	require.NoError(t, err)
}

func TestParseRootAndCategories(t *testing.T) {
	p, err := Parse("/")
	require.NoError(t, err)
	assert.Equal(t, PathRoot, p.Type)

	p, err = Parse("/chats")
	require.NoError(t, err)
	assert.Equal(t, PathChats, p.Type)
	assert.Equal(t, "", p.ConversationID)

	p, err = Parse("/chats/abc123/m1/m2")
	require.NoError(t, err)
	assert.Equal(t, PathConversation, p.Type)
	assert.Equal(t, "abc123", p.ConversationID)
	assert.Equal(t, []int{1, 2}, p.MessagePath)
}

func TestParseResolvesDotDot(t *testing.T) {
	p, err := Parse("/chats/foo/../bar")
	require.NoError(t, err)
	assert.Equal(t, "/chats/bar", p.Normalized)
}

func TestParseRejectsUnknownSegment(t *testing.T) {
	_, err := Parse("/bogus")
	assert.Error(t, err)
}

func TestParseRejectsMalformedMessageSegment(t *testing.T) {
	_, err := Parse("/chats/c1/notanindex")
	assert.Error(t, err)
}

func TestListRootEntries(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	nav := NewNavigator(st, nil)

	root, _ := Parse("/")
	entries, err := nav.ListDirectory(ctx, root)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "chats")
	assert.Contains(t, names, "tags")
	assert.Contains(t, names, "starred")
	assert.NotContains(t, names, "views") // no ViewSource attached
}

// TestMessageNodeMetadata covers S5.
func TestMessageNodeMetadata(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveSample(t, st, "c1", "Hello Conversation")
	nav := NewNavigator(st, nil)

	p, err := Parse("/chats/c1/m1")
	require.NoError(t, err)

	entries, err := nav.ListDirectory(ctx, p)
	require.NoError(t, err)

	byName := make(map[string]Entry)
	for _, e := range entries {
		byName[e.Name] = e
	}

	require.Contains(t, byName, "text")
	require.Contains(t, byName, "role")
	require.Contains(t, byName, "timestamp")
	require.Contains(t, byName, "id")
	assert.False(t, byName["text"].IsDirectory)
	assert.Equal(t, "user", byName["role"].MetadataValue)
	assert.Equal(t, "Hello world", byName["text"].MetadataValue)

	require.Contains(t, byName, "m1")
	assert.True(t, byName["m1"].IsDirectory)
}

func TestListConversationRootMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveSample(t, st, "c1", "Hello Conversation")
	nav := NewNavigator(st, nil)

	p, err := Parse("/chats/c1")
	require.NoError(t, err)

	entries, err := nav.ListDirectory(ctx, p)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].Name)
	assert.True(t, entries[0].HasChildren)
}

func TestOutOfRangeMessageIndexIsInvalidPath(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveSample(t, st, "c1", "Hello Conversation")
	nav := NewNavigator(st, nil)

	p, err := Parse("/chats/c1/m99")
	require.NoError(t, err)

	_, err = nav.ListDirectory(ctx, p)
	assert.Error(t, err)
}

func TestCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveSample(t, st, "c1", "Hello Conversation")
	nav := NewNavigator(st, nil)

	p, err := Parse("/chats/c1")
	require.NoError(t, err)

	_, err = nav.ListDirectory(ctx, p)
	require.NoError(t, err)

	dropped := nav.InvalidateConversation("c1")
	assert.GreaterOrEqual(t, dropped, 1)
}

// TestAdaptiveTTLBounds covers V1.
func TestAdaptiveTTLBounds(t *testing.T) {
	c := newCache(time.Now, DefaultCacheBounds())
	prev := c.ttl(0)
	assert.Equal(t, 5*time.Second, prev)
	for hit := 0; hit <= 10; hit++ {
		d := c.ttl(hit)
		assert.GreaterOrEqual(t, d.Seconds(), 5.0)
		assert.LessOrEqual(t, d.Seconds(), 60.0)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
	assert.Equal(t, c.ttl(5), c.ttl(10))
}

// TestAdaptiveTTLBoundsCustom covers V1 with a non-default schedule, as
// would be produced by a configured ctkconfig.VFSConfig.
func TestAdaptiveTTLBoundsCustom(t *testing.T) {
	bounds := CacheBounds{MinTTL: 2 * time.Second, MaxTTL: 20 * time.Second, HitCountCap: 4}
	c := newCache(time.Now, bounds)
	assert.Equal(t, 2*time.Second, c.ttl(0))
	assert.Equal(t, 20*time.Second, c.ttl(4))
	assert.Equal(t, c.ttl(4), c.ttl(8))
}

func TestResolvePrefixUniqueAndAmbiguous(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveSample(t, st, "abc111", "One")
	saveSample(t, st, "abc222", "Two")
	saveSample(t, st, "xyz999", "Three")
	nav := NewNavigator(st, nil)

	chats, err := Parse("/chats")
	require.NoError(t, err)

	id, err := nav.ResolvePrefix(ctx, "xyz", chats)
	require.NoError(t, err)
	assert.Equal(t, "xyz999", id)

	_, err = nav.ResolvePrefix(ctx, "abc", chats)
	assert.Error(t, err)

	_, err = nav.ResolvePrefix(ctx, "nope", chats)
	assert.Error(t, err)
}

func TestGetCompletions(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveSample(t, st, "abc111", "Alpha Conversation")
	saveSample(t, st, "abc222", "Another Conversation")
	nav := NewNavigator(st, nil)

	completions, err := nav.GetCompletions(ctx, "abc", 10)
	require.NoError(t, err)
	assert.Len(t, completions, 2)
}

func TestTagsDirectoryListing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tree := model.NewConversationTree("c1")
	tree.Title = "Tagged"
	tree.Metadata.Tags = []string{"project/ctk"}
	tree.AddMessage(model.Message{ID: "m1", Role: model.RoleUser, Content: model.MessageContent{Text: "hi"}})
	_, err := st.Save(ctx, tree)
	require.NoError(t, err)

	nav := NewNavigator(st, nil)
	p, err := Parse("/tags")
	require.NoError(t, err)
	entries, err := nav.ListDirectory(ctx, p)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "project", entries[0].Name)
}

func TestRecentBucketRangeOrdering(t *testing.T) {
	now := time.Now()
	today, _, err := recentBucketRange("today", now)
	require.NoError(t, err)
	_, thisWeekTo, err := recentBucketRange("this-week", now)
	require.NoError(t, err)
	assert.Equal(t, *today, *thisWeekTo)

	_, err = recentBucketRange("bogus", now)
	assert.Error(t, err)
}
