package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/queelius/ctk/internal/ctkerr"
)

const tagSep = "\x1f" // ASCII unit separator, used with GROUP_CONCAT

// triStateClause renders the false/true/unset semantics of spec.md §4.2 for
// a nullable-timestamp column.
func triStateClause(column string, v TriState, args *[]any) string {
	if v == nil {
		return ""
	}
	if *v {
		return fmt.Sprintf(" AND %s IS NOT NULL", column)
	}
	return fmt.Sprintf(" AND %s IS NULL", column)
}

func buildTagSubsetClause(tags []string, args *[]any) string {
	var b strings.Builder
	for _, tag := range tags {
		b.WriteString(` AND EXISTS (SELECT 1 FROM conversation_tags ct2 JOIN tags t2 ON t2.id = ct2.tag_id WHERE ct2.conversation_id = c.id AND t2.name = ?)`)
		*args = append(*args, tag)
	}
	return b.String()
}

func (s *SQLiteStore) summarySelectColumns() string {
	return `c.id, c.title, c.created_at, c.updated_at, c.source, c.model, c.project,
		c.starred_at, c.pinned_at, c.archived_at, c.metadata_json,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count,
		(SELECT GROUP_CONCAT(t.name, '` + tagSep + `') FROM conversation_tags ct JOIN tags t ON t.id = ct.tag_id WHERE ct.conversation_id = c.id) AS tags_concat`
}

func scanSummaryRow(scan func(dest ...any) error) (ConversationSummary, error) {
	var id, title string
	var createdAt, updatedAt, starredAt, pinnedAt, archivedAt sql.NullInt64
	var source, modelName, project sql.NullString
	var metaJSON sql.NullString
	var messageCount int
	var tagsConcat sql.NullString

	if err := scan(&id, &title, &createdAt, &updatedAt, &source, &modelName, &project,
		&starredAt, &pinnedAt, &archivedAt, &metaJSON, &messageCount, &tagsConcat); err != nil {
		return ConversationSummary{}, err
	}

	summary := ConversationSummary{
		ID:           id,
		Title:        title,
		CreatedAt:    nullInt64Ptr(createdAt),
		UpdatedAt:    nullInt64Ptr(updatedAt),
		Source:       source.String,
		Model:        modelName.String,
		Project:      project.String,
		StarredAt:    nullInt64Ptr(starredAt),
		PinnedAt:     nullInt64Ptr(pinnedAt),
		ArchivedAt:   nullInt64Ptr(archivedAt),
		MessageCount: messageCount,
	}
	if tagsConcat.Valid && tagsConcat.String != "" {
		summary.Tags = strings.Split(tagsConcat.String, tagSep)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &summary.Metadata)
	}
	return summary, nil
}

// ListConversations implements spec.md §4.2's list_conversations with
// keyset pagination on (updated_at DESC, id DESC).
func (s *SQLiteStore) ListConversations(ctx context.Context, filters ListFilters, pagination Pagination) (*PaginatedResult, error) {
	var where strings.Builder
	var args []any

	where.WriteString(" WHERE 1=1")
	if filters.Source != "" {
		where.WriteString(" AND c.source = ?")
		args = append(args, filters.Source)
	}
	if filters.Project != "" {
		where.WriteString(" AND c.project = ?")
		args = append(args, filters.Project)
	}
	if filters.Model != "" {
		where.WriteString(" AND c.model = ?")
		args = append(args, filters.Model)
	}
	where.WriteString(buildTagSubsetClause(filters.Tags, &args))
	where.WriteString(triStateClause("c.starred_at", filters.Starred, &args))
	where.WriteString(triStateClause("c.pinned_at", filters.Pinned, &args))
	where.WriteString(triStateClause("c.archived_at", filters.Archived, &args))

	if !filters.IncludeArchived && !(filters.Archived != nil && *filters.Archived) {
		where.WriteString(" AND c.archived_at IS NULL")
	}

	pageSize := pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	if pagination.Cursor != "" {
		updatedISO, id, err := DecodeCursor(pagination.Cursor)
		if err != nil {
			return nil, err
		}
		updatedAt, parseErr := time.Parse(time.RFC3339, updatedISO)
		if parseErr != nil {
			return nil, &ctkerr.ValidationError{Field: "cursor", Reason: "malformed timestamp"}
		}
		where.WriteString(" AND (c.updated_at < ? OR (c.updated_at = ? AND c.id < ?))")
		args = append(args, updatedAt.Unix(), updatedAt.Unix(), id)
	}

	query := `SELECT ` + s.summarySelectColumns() + ` FROM conversations c` + where.String() +
		` ORDER BY c.updated_at DESC, c.id DESC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "list_conversations", Err: err}
	}
	defer rows.Close()

	return s.buildPage(rows, pageSize)
}

func (s *SQLiteStore) buildPage(rows *sql.Rows, pageSize int) (*PaginatedResult, error) {
	var items []ConversationSummary
	for rows.Next() {
		summary, err := scanSummaryRow(rows.Scan)
		if err != nil {
			return nil, &ctkerr.OperationalError{Op: "scan_summary", Err: err}
		}
		if err := s.attachTagsAndMetadata(&summary); err != nil {
			return nil, err
		}
		items = append(items, summary)
	}

	result := &PaginatedResult{}
	if len(items) > pageSize {
		result.HasMore = true
		items = items[:pageSize]
	}
	result.Items = items

	if result.HasMore && len(items) > 0 {
		last := items[len(items)-1]
		var updatedAt int64
		if last.UpdatedAt != nil {
			updatedAt = *last.UpdatedAt
		}
		result.NextCursor = EncodeCursor(time.Unix(updatedAt, 0).UTC().Format(time.RFC3339), last.ID)
	}

	return result, nil
}

// attachTagsAndMetadata is a no-op placeholder kept for symmetry; tags are
// already populated by the join in summarySelectColumns. Present so future
// metadata enrichment (e.g. custom_data merge) has one call site.
func (s *SQLiteStore) attachTagsAndMetadata(summary *ConversationSummary) error {
	return nil
}

// SearchConversations implements spec.md §4.2's search_conversations.
func (s *SQLiteStore) SearchConversations(ctx context.Context, filters SearchFilters, ordering Ordering, pagination Pagination) (*PaginatedResult, error) {
	var inner strings.Builder
	var args []any

	inner.WriteString(" WHERE 1=1")
	if filters.Source != "" {
		inner.WriteString(" AND c.source = ?")
		args = append(args, filters.Source)
	}
	if filters.Project != "" {
		inner.WriteString(" AND c.project = ?")
		args = append(args, filters.Project)
	}
	if filters.Model != "" {
		inner.WriteString(" AND c.model = ?")
		args = append(args, filters.Model)
	}
	inner.WriteString(buildTagSubsetClause(filters.Tags, &args))
	inner.WriteString(triStateClause("c.starred_at", filters.Starred, &args))
	inner.WriteString(triStateClause("c.pinned_at", filters.Pinned, &args))
	inner.WriteString(triStateClause("c.archived_at", filters.Archived, &args))
	if !filters.IncludeArchived && !(filters.Archived != nil && *filters.Archived) {
		inner.WriteString(" AND c.archived_at IS NULL")
	}
	if filters.DateFrom != nil {
		inner.WriteString(" AND c.created_at >= ?")
		args = append(args, *filters.DateFrom)
	}
	if filters.DateTo != nil {
		inner.WriteString(" AND c.created_at <= ?")
		args = append(args, *filters.DateTo)
	}

	if filters.QueryText != "" {
		like := "%" + strings.ToLower(filters.QueryText) + "%"
		switch {
		case filters.TitleOnly:
			inner.WriteString(" AND LOWER(c.title) LIKE ?")
			args = append(args, like)
		case filters.ContentOnly:
			inner.WriteString(` AND EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND LOWER(m.content_json) LIKE ?)`)
			args = append(args, like)
		default:
			inner.WriteString(` AND (LOWER(c.title) LIKE ? OR EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND LOWER(m.content_json) LIKE ?))`)
			args = append(args, like, like)
		}
	}

	query := `SELECT * FROM (SELECT ` + s.summarySelectColumns() +
		`, (SELECT COUNT(*) FROM paths p WHERE p.conversation_id = c.id) AS path_count FROM conversations c` +
		inner.String() + `) sub WHERE 1=1`

	if filters.MinMessages != nil {
		query += " AND sub.message_count >= ?"
		args = append(args, *filters.MinMessages)
	}
	if filters.MaxMessages != nil {
		query += " AND sub.message_count <= ?"
		args = append(args, *filters.MaxMessages)
	}
	if filters.HasBranches != nil {
		if *filters.HasBranches {
			query += " AND sub.path_count >= 2"
		} else {
			query += " AND sub.path_count = 1"
		}
	}

	orderCol := orderColumn(ordering.Field)
	direction := "DESC"
	if ordering.Ascending {
		direction = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY sub.%s %s, sub.id %s", orderCol, direction, direction)

	pageSize := pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	query += " LIMIT ?"
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "search_conversations", Err: err}
	}
	defer rows.Close()

	var items []ConversationSummary
	for rows.Next() {
		var pathCount int
		summary, err := scanSummaryRowWithPathCount(rows.Scan, &pathCount)
		if err != nil {
			return nil, &ctkerr.OperationalError{Op: "scan_summary", Err: err}
		}
		items = append(items, summary)
	}

	result := &PaginatedResult{}
	if len(items) > pageSize {
		result.HasMore = true
		items = items[:pageSize]
	}
	result.Items = items
	if result.HasMore && len(items) > 0 {
		last := items[len(items)-1]
		var updatedAt int64
		if last.UpdatedAt != nil {
			updatedAt = *last.UpdatedAt
		}
		result.NextCursor = EncodeCursor(time.Unix(updatedAt, 0).UTC().Format(time.RFC3339), last.ID)
	}
	return result, nil
}

func scanSummaryRowWithPathCount(scan func(dest ...any) error, pathCount *int) (ConversationSummary, error) {
	var id, title string
	var createdAt, updatedAt, starredAt, pinnedAt, archivedAt sql.NullInt64
	var source, modelName, project sql.NullString
	var metaJSON sql.NullString
	var messageCount int
	var tagsConcat sql.NullString

	if err := scan(&id, &title, &createdAt, &updatedAt, &source, &modelName, &project,
		&starredAt, &pinnedAt, &archivedAt, &metaJSON, &messageCount, &tagsConcat, pathCount); err != nil {
		return ConversationSummary{}, err
	}

	summary := ConversationSummary{
		ID:           id,
		Title:        title,
		CreatedAt:    nullInt64Ptr(createdAt),
		UpdatedAt:    nullInt64Ptr(updatedAt),
		Source:       source.String,
		Model:        modelName.String,
		Project:      project.String,
		StarredAt:    nullInt64Ptr(starredAt),
		PinnedAt:     nullInt64Ptr(pinnedAt),
		ArchivedAt:   nullInt64Ptr(archivedAt),
		MessageCount: messageCount,
	}
	if tagsConcat.Valid && tagsConcat.String != "" {
		summary.Tags = strings.Split(tagsConcat.String, tagSep)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &summary.Metadata)
	}
	return summary, nil
}

func orderColumn(field string) string {
	switch field {
	case "created_at":
		return "created_at"
	case "title":
		return "title"
	case "message_count":
		return "message_count"
	default:
		return "updated_at"
	}
}

// GetStatistics implements spec.md §4.2's get_statistics.
func (s *SQLiteStore) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		MessagesByRole:        make(map[string]int),
		ConversationsBySource: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&stats.TotalConversations); err != nil {
		return nil, &ctkerr.OperationalError{Op: "get_statistics:conversations", Err: err}
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages); err != nil {
		return nil, &ctkerr.OperationalError{Op: "get_statistics:messages", Err: err}
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&stats.TotalTags); err != nil {
		return nil, &ctkerr.OperationalError{Op: "get_statistics:tags", Err: err}
	}

	roleRows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM messages GROUP BY role`)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "get_statistics:by_role", Err: err}
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var role string
		var count int
		if err := roleRows.Scan(&role, &count); err != nil {
			return nil, &ctkerr.OperationalError{Op: "get_statistics:by_role_scan", Err: err}
		}
		stats.MessagesByRole[role] = count
	}

	sourceRows, err := s.db.QueryContext(ctx, `SELECT COALESCE(source, ''), COUNT(*) FROM conversations GROUP BY source`)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "get_statistics:by_source", Err: err}
	}
	defer sourceRows.Close()
	for sourceRows.Next() {
		var source string
		var count int
		if err := sourceRows.Scan(&source, &count); err != nil {
			return nil, &ctkerr.OperationalError{Op: "get_statistics:by_source_scan", Err: err}
		}
		stats.ConversationsBySource[source] = count
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(*) c FROM tags t
		JOIN conversation_tags ct ON ct.tag_id = t.id
		GROUP BY t.name ORDER BY c DESC LIMIT 10`)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "get_statistics:top_tags", Err: err}
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tc TagCount
		if err := tagRows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, &ctkerr.OperationalError{Op: "get_statistics:top_tags_scan", Err: err}
		}
		stats.TopTags = append(stats.TopTags, tc)
	}

	return stats, nil
}

// GetModels returns a ranked list of (model, conversation count).
func (s *SQLiteStore) GetModels(ctx context.Context) ([]TagCount, error) {
	return s.rankedColumn(ctx, "model")
}

// GetSources returns a ranked list of (source, conversation count).
func (s *SQLiteStore) GetSources(ctx context.Context) ([]TagCount, error) {
	return s.rankedColumn(ctx, "source")
}

func (s *SQLiteStore) rankedColumn(ctx context.Context, column string) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(%s, ''), COUNT(*) c FROM conversations WHERE %s IS NOT NULL AND %s != ''
		 GROUP BY %s ORDER BY c DESC`, column, column, column, column))
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "ranked_column:" + column, Err: err}
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, &ctkerr.OperationalError{Op: "ranked_column_scan:" + column, Err: err}
		}
		out = append(out, tc)
	}
	return out, nil
}

// GetDistinctModels returns plain distinct model names.
func (s *SQLiteStore) GetDistinctModels(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "model")
}

// GetDistinctSources returns plain distinct source names.
func (s *SQLiteStore) GetDistinctSources(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "source")
}

func (s *SQLiteStore) distinctColumn(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT %s FROM conversations WHERE %s IS NOT NULL AND %s != '' ORDER BY %s`,
		column, column, column, column))
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "distinct_column:" + column, Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &ctkerr.OperationalError{Op: "distinct_column_scan:" + column, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

// GetConversationTimeline buckets conversations by created_at truncated to
// the requested granularity (spec.md §4.2).
func (s *SQLiteStore) GetConversationTimeline(ctx context.Context, granularity string, limit int) ([]TimelineBucket, error) {
	format, err := strftimeFormat(granularity)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT strftime('%s', datetime(created_at, 'unixepoch')) AS bucket, COUNT(*) c
		FROM conversations WHERE created_at IS NOT NULL
		GROUP BY bucket ORDER BY bucket DESC LIMIT ?`, format)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "get_conversation_timeline", Err: err}
	}
	defer rows.Close()

	var out []TimelineBucket
	for rows.Next() {
		var b TimelineBucket
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, &ctkerr.OperationalError{Op: "get_conversation_timeline_scan", Err: err}
		}
		out = append(out, b)
	}
	return out, nil
}

func strftimeFormat(granularity string) (string, error) {
	switch granularity {
	case "day":
		return "%Y-%m-%d", nil
	case "week":
		return "%Y-%W", nil
	case "month":
		return "%Y-%m", nil
	case "year":
		return "%Y", nil
	default:
		return "", &ctkerr.ValidationError{Field: "granularity", Reason: "must be one of day, week, month, year"}
	}
}
