// Package store implements C2: durable persistence for conversation trees,
// grounded on dimajix-llm-monitor/internal/storage's context-first Storage
// interface (storage.go) and raw-SQL backing (postgres.go), adapted from
// Postgres to the local single-file SQLite store mandated by spec.md §6.4.
package store

import (
	"context"

	"github.com/queelius/ctk/internal/model"
)

// ConversationSummary is returned by listing/search (spec.md §6.1).
type ConversationSummary struct {
	ID           string
	Title        string
	CreatedAt    *int64
	UpdatedAt    *int64
	Source       string
	Model        string
	Project      string
	StarredAt    *int64
	PinnedAt     *int64
	ArchivedAt   *int64
	Tags         []string
	MessageCount int
	Metadata     map[string]any
}

// TriState is the false/true/unset filter semantics of spec.md §4.2:
// nil means unset (no filter); non-nil true/false filters to
// non-null/null respectively.
type TriState = *bool

func True() TriState  { b := true; return &b }
func False() TriState { b := false; return &b }

// ListFilters mirror spec.md §4.2 list_conversations filters.
type ListFilters struct {
	Source          string
	Project         string
	Model           string
	Tags            []string
	Starred         TriState
	Pinned          TriState
	Archived        TriState
	IncludeArchived bool
}

// SearchFilters extend ListFilters per spec.md §4.2 search_conversations.
type SearchFilters struct {
	ListFilters
	QueryText    string
	TitleOnly    bool
	ContentOnly  bool
	DateFrom     *int64
	DateTo       *int64
	MinMessages  *int
	MaxMessages  *int
	HasBranches  TriState
}

// Ordering controls search result order (spec.md §4.2).
type Ordering struct {
	Field     string // created_at | updated_at | title | message_count
	Ascending bool
}

// DefaultOrdering is (updated_at DESC, id DESC), the stable keyset key.
var DefaultOrdering = Ordering{Field: "updated_at", Ascending: false}

// Pagination requests a page via a cursor (empty = first page) and a size.
type Pagination struct {
	Cursor   string
	PageSize int
}

// PaginatedResult is spec.md §6.1's PaginatedResult.
type PaginatedResult struct {
	Items      []ConversationSummary
	NextCursor string
	HasMore    bool
}

// TagCount is one row of a ranked tag/source/model listing.
type TagCount struct {
	Name  string
	Count int
}

// Statistics is the result of get_statistics (spec.md §4.2).
type Statistics struct {
	TotalConversations    int
	TotalMessages         int
	TotalTags             int
	MessagesByRole        map[string]int
	ConversationsBySource map[string]int
	TopTags               []TagCount
}

// TimelineBucket is one row of get_conversation_timeline.
type TimelineBucket struct {
	Bucket string
	Count  int
}

// Storage is the public contract of C2 (spec.md §6.1), consumed by
// importers, exporters, the VFS, and views.
type Storage interface {
	Save(ctx context.Context, tree *model.ConversationTree) (string, error)
	Load(ctx context.Context, id string) (*model.ConversationTree, error)
	Delete(ctx context.Context, id string) (bool, error)

	// ListConversations always orders by the stable keyset key
	// (updated_at DESC, id DESC) — spec.md §4.2.
	ListConversations(ctx context.Context, filters ListFilters, pagination Pagination) (*PaginatedResult, error)
	SearchConversations(ctx context.Context, filters SearchFilters, ordering Ordering, pagination Pagination) (*PaginatedResult, error)

	GetStatistics(ctx context.Context) (*Statistics, error)
	GetModels(ctx context.Context) ([]TagCount, error)
	GetSources(ctx context.Context) ([]TagCount, error)
	GetDistinctModels(ctx context.Context) ([]string, error)
	GetDistinctSources(ctx context.Context) ([]string, error)
	GetConversationTimeline(ctx context.Context, granularity string, limit int) ([]TimelineBucket, error)

	StarConversation(ctx context.Context, id string, star bool) (bool, error)
	PinConversation(ctx context.Context, id string, pin bool) (bool, error)
	ArchiveConversation(ctx context.Context, id string, archive bool) (bool, error)
	UpdateConversationMetadata(ctx context.Context, id string, title *string) (bool, error)
	DuplicateConversation(ctx context.Context, id string, newTitle *string) (string, error)

	AddTags(ctx context.Context, id string, names []string) error
	RemoveTag(ctx context.Context, id string, name string) error
	ListTags(ctx context.Context) ([]model.Tag, error)
	ListConversationsByTag(ctx context.Context, name string) ([]ConversationSummary, error)
	ListTagChildren(ctx context.Context, parent string) ([]string, error)

	ComputeSimilarity(ctx context.Context, id1, id2 string) (float64, error)
	FindSimilarGroups(ctx context.Context, threshold float64) ([][]string, error)
	FindDuplicateConversations(ctx context.Context) ([][]string, error)

	Close() error
}
