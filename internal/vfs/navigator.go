package vfs

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/queelius/ctk/internal/ctkerr"
	"github.com/queelius/ctk/internal/model"
	"github.com/queelius/ctk/internal/store"
	"github.com/queelius/ctk/internal/views"
)

// ViewSource is the subset of views.Store the VFS needs to list/evaluate
// named views under /views. A nil ViewSource means /views does not
// appear in directory listings (spec.md §4.4.1: "present only if a view
// store is attached").
type ViewSource interface {
	ListViews() ([]string, error)
	Evaluate(ctx context.Context, name string, st store.Storage) (*views.EvaluatedView, error)
}

// Navigator is the VFS root: path parsing plus the directory cache and
// conversation index, local to one navigator instance (spec.md §5's
// "Shared resources" note).
type Navigator struct {
	store store.Storage
	views ViewSource
	cache *cache
	index *index
	now   func() time.Time
}

// NewNavigator constructs a Navigator over st with the default cache
// bounds. views may be nil.
func NewNavigator(st store.Storage, vs ViewSource) *Navigator {
	return NewNavigatorWithCacheBounds(st, vs, DefaultCacheBounds())
}

// NewNavigatorWithCacheBounds constructs a Navigator whose adaptive
// directory cache uses bounds instead of the documented defaults, wired
// from ctkconfig.VFSConfig (spec.md §4.4.3).
func NewNavigatorWithCacheBounds(st store.Storage, vs ViewSource, bounds CacheBounds) *Navigator {
	now := time.Now
	return &Navigator{store: st, views: vs, cache: newCache(now, bounds), index: newIndex(), now: now}
}

var _ ViewSource = (*views.Store)(nil)

// Parse delegates to the package-level path parser.
func (n *Navigator) Parse(pathString string) (*Path, error) { return Parse(pathString) }

// ClearCache empties the directory cache (spec.md §6.2).
func (n *Navigator) ClearCache() { n.cache.clear() }

// InvalidateConversation drops every cache entry mentioning id and marks
// the conversation index stale (spec.md §4.4.3, §4.4.4).
func (n *Navigator) InvalidateConversation(id string) int {
	n.index.invalidate()
	return n.cache.invalidateConversation(id)
}

func (n *Navigator) ensureIndex(ctx context.Context) error {
	if n.index.isBuilt() {
		return nil
	}
	page, err := n.store.ListConversations(ctx, store.ListFilters{IncludeArchived: true}, store.Pagination{PageSize: 1 << 30})
	if err != nil {
		return err
	}
	slugs := make(map[string]string, len(page.Items))
	for _, item := range page.Items {
		slugs[item.ID] = slugFor(item)
	}
	n.index.rebuild(slugs)
	return nil
}

// slugFor derives a stable human-readable alias from a title, grounded
// on original_source/ctk/core/shell_completer.py's slug matching
// (this implementation kebab-cases the title; empty titles have no slug).
func slugFor(item store.ConversationSummary) string {
	if item.Title == "" {
		return ""
	}
	lower := strings.ToLower(item.Title)
	var sb strings.Builder
	lastDash := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && sb.Len() > 0 {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(sb.String(), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug
}

// ListDirectory implements spec.md §4.4.2's listing contract, dispatched
// through the adaptive-TTL cache.
func (n *Navigator) ListDirectory(ctx context.Context, p *Path) ([]Entry, error) {
	if !p.IsDirectory {
		return nil, &ctkerr.InvalidPathError{Path: p.Raw, Reason: "not a directory"}
	}

	key := cacheKey(p.Normalized, p.MessagePath)
	if cached, ok := n.cache.get(key); ok {
		return cached, nil
	}

	entries, err := n.listUncached(ctx, p)
	if err != nil {
		return nil, err
	}

	n.cache.put(key, entries)
	return entries, nil
}

func (n *Navigator) listUncached(ctx context.Context, p *Path) ([]Entry, error) {
	if p.ConversationID != "" {
		return n.listConversationOrMessage(ctx, p)
	}

	switch p.Type {
	case PathRoot:
		return n.listRoot(), nil
	case PathChats:
		return n.listChats(ctx)
	case PathStarred:
		return n.listByFilter(ctx, store.ListFilters{Starred: store.True(), IncludeArchived: true})
	case PathPinned:
		return n.listByFilter(ctx, store.ListFilters{Pinned: store.True(), IncludeArchived: true})
	case PathArchived:
		return n.listByFilter(ctx, store.ListFilters{Archived: store.True(), IncludeArchived: true})
	case PathRecent:
		return n.listRecent(ctx, p.Tail)
	case PathSource:
		return n.listSource(ctx, p.Tail)
	case PathModel:
		return n.listModel(ctx, p.Tail)
	case PathTags:
		return n.listTags(ctx, p.Tail)
	case PathViews:
		return n.listViews(ctx, p.Tail)
	default:
		return nil, &ctkerr.InvalidPathError{Path: p.Raw, Reason: "unhandled path type"}
	}
}

func (n *Navigator) listRoot() []Entry {
	entries := []Entry{
		{Name: "chats", IsDirectory: true, HasChildren: true},
		{Name: "tags", IsDirectory: true, HasChildren: true},
		{Name: "starred", IsDirectory: true, HasChildren: true},
		{Name: "pinned", IsDirectory: true, HasChildren: true},
		{Name: "archived", IsDirectory: true, HasChildren: true},
		{Name: "recent", IsDirectory: true, HasChildren: true},
		{Name: "source", IsDirectory: true, HasChildren: true},
		{Name: "model", IsDirectory: true, HasChildren: true},
	}
	if n.views != nil {
		entries = append(entries, Entry{Name: "views", IsDirectory: true, HasChildren: true})
	}
	return entries
}

func (n *Navigator) listChats(ctx context.Context) ([]Entry, error) {
	if err := n.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return n.listByFilter(ctx, store.ListFilters{})
}

func (n *Navigator) listByFilter(ctx context.Context, filters store.ListFilters) ([]Entry, error) {
	page, err := n.store.ListConversations(ctx, filters, store.Pagination{PageSize: 1 << 30})
	if err != nil {
		return nil, err
	}
	return summariesToEntries(page.Items), nil
}

func summariesToEntries(items []store.ConversationSummary) []Entry {
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		out = append(out, Entry{
			Name:           item.ID,
			IsDirectory:    true,
			ConversationID: item.ID,
			Title:          item.Title,
			HasChildren:    item.MessageCount > 0,
			CreatedAt:      item.CreatedAt,
			UpdatedAt:      item.UpdatedAt,
			Tags:           item.Tags,
			Starred:        item.StarredAt != nil,
			Pinned:         item.PinnedAt != nil,
			Archived:       item.ArchivedAt != nil,
			Source:         item.Source,
			Model:          item.Model,
			Slug:           slugFor(item),
		})
	}
	return out
}

// recentBucketRange computes the [from, to) range for a /recent/<bucket>
// listing, per spec.md §4.4.2: today = since local midnight; this-week =
// since Monday but before today; this-month = since the 1st but before
// this week; older = before the 1st.
func recentBucketRange(bucket string, now time.Time) (from, to *int64, err error) {
	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	weekday := int(midnight.Weekday())
	daysSinceMonday := (weekday + 6) % 7
	monday := midnight.AddDate(0, 0, -daysSinceMonday)
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	ts := func(t time.Time) *int64 { v := t.Unix(); return &v }

	switch bucket {
	case "today":
		return ts(midnight), nil, nil
	case "this-week":
		return ts(monday), ts(midnight), nil
	case "this-month":
		return ts(firstOfMonth), ts(monday), nil
	case "older":
		return nil, ts(firstOfMonth), nil
	default:
		return nil, nil, &ctkerr.InvalidPathError{Path: "/recent/" + bucket, Reason: "unknown recent bucket"}
	}
}

func (n *Navigator) listRecent(ctx context.Context, bucket string) ([]Entry, error) {
	if bucket == "" {
		return []Entry{
			{Name: "today", IsDirectory: true, HasChildren: true},
			{Name: "this-week", IsDirectory: true, HasChildren: true},
			{Name: "this-month", IsDirectory: true, HasChildren: true},
			{Name: "older", IsDirectory: true, HasChildren: true},
		}, nil
	}

	from, to, err := recentBucketRange(bucket, n.now())
	if err != nil {
		return nil, err
	}
	if to != nil {
		// SearchFilters.DateTo is inclusive; the bucket's upper bound is not.
		exclusive := *to - 1
		to = &exclusive
	}

	result, err := n.store.SearchConversations(ctx, store.SearchFilters{
		DateFrom: from,
		DateTo:   to,
	}, store.DefaultOrdering, store.Pagination{PageSize: 1 << 30})
	if err != nil {
		return nil, err
	}
	return summariesToEntries(result.Items), nil
}

func (n *Navigator) listSource(ctx context.Context, source string) ([]Entry, error) {
	if source == "" {
		names, err := n.store.GetDistinctSources(ctx)
		if err != nil {
			return nil, err
		}
		return namesToDirEntries(names), nil
	}
	return n.listByFilter(ctx, store.ListFilters{Source: source, IncludeArchived: true})
}

func (n *Navigator) listModel(ctx context.Context, model string) ([]Entry, error) {
	if model == "" {
		names, err := n.store.GetDistinctModels(ctx)
		if err != nil {
			return nil, err
		}
		return namesToDirEntries(names), nil
	}
	return n.listByFilter(ctx, store.ListFilters{Model: model, IncludeArchived: true})
}

func namesToDirEntries(names []string) []Entry {
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		out = append(out, Entry{Name: name, IsDirectory: true, HasChildren: true})
	}
	return out
}

func (n *Navigator) listTags(ctx context.Context, parent string) ([]Entry, error) {
	children, err := n.store.ListTagChildren(ctx, parent)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(children))
	for _, child := range children {
		out = append(out, Entry{Name: child, IsDirectory: true, HasChildren: true})
	}

	if parent != "" {
		conversations, err := n.store.ListConversationsByTag(ctx, parent)
		if err != nil {
			return nil, err
		}
		out = append(out, summariesToEntries(conversations)...)
	}

	return out, nil
}

func (n *Navigator) listViews(ctx context.Context, name string) ([]Entry, error) {
	if n.views == nil {
		return nil, nil
	}
	if name == "" {
		names, err := n.views.ListViews()
		if err != nil {
			return nil, nil // non-critical derived data: empty list, not an error (spec.md §7)
		}
		return namesToDirEntries(names), nil
	}

	evaluated, err := n.views.Evaluate(ctx, name, n.store)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(evaluated.Items))
	for _, item := range evaluated.Items {
		out = append(out, Entry{
			Name:           item.ConversationID,
			IsDirectory:    true,
			ConversationID: item.ConversationID,
			Title:          item.EffectiveTitle,
			HasChildren:    true,
		})
	}
	return out, nil
}

// listConversationOrMessage handles /<category>/<conv-id>[/m<k>...]
// listings, resolving a prefix against /chats first.
func (n *Navigator) listConversationOrMessage(ctx context.Context, p *Path) ([]Entry, error) {
	if err := n.ensureIndex(ctx); err != nil {
		return nil, err
	}

	convID, err := n.resolveConversationIdent(ctx, p.ConversationID)
	if err != nil {
		return nil, err
	}

	tree, err := n.store.Load(ctx, convID)
	if err != nil {
		return nil, err
	}

	if len(p.MessagePath) == 0 {
		return rootMessageEntries(tree), nil
	}
	return n.messageChildEntries(p, tree)
}

// resolveConversationIdent accepts either a full conversation id or a
// unique prefix/slug and resolves it via the index.
func (n *Navigator) resolveConversationIdent(ctx context.Context, ident string) (string, error) {
	if _, err := n.store.Load(ctx, ident); err == nil {
		return ident, nil
	}
	return n.index.resolvePrefix(ident)
}

func rootMessageEntries(tree *model.ConversationTree) []Entry {
	out := make([]Entry, 0, len(tree.RootIDs))
	for i, id := range tree.RootIDs {
		m, _ := tree.Message(id)
		out = append(out, messageEntry(tree, m, i+1))
	}
	return out
}

func messageEntry(tree *model.ConversationTree, m *model.Message, index int) Entry {
	return Entry{
		Name:           "m" + strconv.Itoa(index),
		IsDirectory:    true,
		MessageID:      m.ID,
		Role:           string(m.Role),
		ContentPreview: contentPreview(m.Content.GetText()),
		HasChildren:    len(tree.ChildrenOf(m.ID)) > 0,
		CreatedAt:      m.Timestamp,
	}
}

// messageChildEntries walks p.MessagePath into the tree and returns
// either the four metadata files plus child m<k> directories (when the
// path resolves to a message node) per spec.md §4.4.1/S5.
func (n *Navigator) messageChildEntries(p *Path, tree *model.ConversationTree) ([]Entry, error) {
	ids := tree.RootIDs
	var current *model.Message

	for _, k := range p.MessagePath {
		if k < 1 || k > len(ids) {
			return nil, &ctkerr.InvalidPathError{Path: p.Raw, Reason: "message index out of range"}
		}
		id := ids[k-1]
		m, ok := tree.Message(id)
		if !ok {
			return nil, &ctkerr.InvalidPathError{Path: p.Raw, Reason: "dangling message id"}
		}
		current = m
		ids = tree.ChildrenOf(id)
	}

	out := []Entry{
		{Name: "text", IsDirectory: false, MetadataValue: current.Content.GetText()},
		{Name: "role", IsDirectory: false, MetadataValue: string(current.Role)},
		{Name: "timestamp", IsDirectory: false, MetadataValue: timestampValue(current.Timestamp)},
		{Name: "id", IsDirectory: false, MetadataValue: current.ID},
	}

	for i, childID := range ids {
		child, _ := tree.Message(childID)
		out = append(out, messageEntry(tree, child, i+1))
	}

	return out, nil
}

func timestampValue(ts *int64) string {
	if ts == nil {
		return ""
	}
	return time.Unix(*ts, 0).UTC().Format(time.RFC3339)
}

// ResolvePrefix resolves a conversation-id prefix against parent (spec.md
// §4.4.5). When parent normalizes to /chats, the index is consulted
// directly; otherwise list_directory(parent) is filtered.
func (n *Navigator) ResolvePrefix(ctx context.Context, prefix string, parent *Path) (string, error) {
	if parent.Type == PathChats && parent.ConversationID == "" {
		if err := n.ensureIndex(ctx); err != nil {
			return "", err
		}
		return n.index.resolvePrefix(prefix)
	}

	entries, err := n.ListDirectory(ctx, parent)
	if err != nil {
		return "", err
	}

	lower := strings.ToLower(prefix)
	var matches []string
	for _, e := range entries {
		if e.ConversationID == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(e.ConversationID), lower) || (e.Slug != "" && strings.HasPrefix(strings.ToLower(e.Slug), lower)) {
			matches = append(matches, e.ConversationID)
		}
	}

	switch len(matches) {
	case 0:
		return "", &ctkerr.NotFoundError{Kind: "conversation_prefix", ID: prefix}
	case 1:
		return matches[0], nil
	default:
		shown := matches
		if len(shown) > 5 {
			shown = shown[:5]
		}
		return "", &ctkerr.AmbiguousPrefixError{Prefix: prefix, Candidates: shown, Total: len(matches)}
	}
}

// GetCompletions implements spec.md §4.4.6.
func (n *Navigator) GetCompletions(ctx context.Context, prefix string, limit int) ([]Completion, error) {
	if err := n.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return n.index.getCompletions(prefix, limit), nil
}
