package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/queelius/ctk/internal/ctkerr"
	"github.com/queelius/ctk/internal/model"
	"github.com/queelius/ctk/internal/validate"
)

func (s *SQLiteStore) setOrganizationFlag(ctx context.Context, column, id string, on bool) (bool, error) {
	if _, err := validate.ConversationID(id); err != nil {
		return false, err
	}

	var value any
	if on {
		value = nowUnix()
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE conversations SET %s = ? WHERE id = ?`, column), value, id)
	if err != nil {
		return false, &ctkerr.OperationalError{Op: "organization:" + column, Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, &ctkerr.NotFoundError{Kind: "conversation", ID: id}
	}
	return true, nil
}

// StarConversation sets or clears starred_at (spec.md §4.2).
func (s *SQLiteStore) StarConversation(ctx context.Context, id string, star bool) (bool, error) {
	return s.setOrganizationFlag(ctx, "starred_at", id, star)
}

// PinConversation sets or clears pinned_at.
func (s *SQLiteStore) PinConversation(ctx context.Context, id string, pin bool) (bool, error) {
	return s.setOrganizationFlag(ctx, "pinned_at", id, pin)
}

// ArchiveConversation sets or clears archived_at.
func (s *SQLiteStore) ArchiveConversation(ctx context.Context, id string, archive bool) (bool, error) {
	return s.setOrganizationFlag(ctx, "archived_at", id, archive)
}

// UpdateConversationMetadata updates the title and touches updated_at.
func (s *SQLiteStore) UpdateConversationMetadata(ctx context.Context, id string, title *string) (bool, error) {
	if _, err := validate.ConversationID(id); err != nil {
		return false, err
	}
	if title == nil {
		return true, nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, *title, nowUnix(), id)
	if err != nil {
		return false, &ctkerr.OperationalError{Op: "update_conversation_metadata", Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, &ctkerr.NotFoundError{Kind: "conversation", ID: id}
	}
	return true, nil
}

// DuplicateConversation creates a deep copy with a new conversation id; all
// message ids are regenerated so no collision can occur with the original
// (spec.md §4.2).
func (s *SQLiteStore) DuplicateConversation(ctx context.Context, id string, newTitle *string) (string, error) {
	original, err := s.Load(ctx, id)
	if err != nil {
		return "", err
	}

	newID := uuid.NewString()
	copyTree := model.NewConversationTree(newID)
	copyTree.Metadata = original.Metadata

	if newTitle != nil {
		copyTree.Title = *newTitle
	} else {
		copyTree.Title = original.Title
	}

	idMap := make(map[string]string, original.MessageCount())
	for _, m := range original.Messages() {
		idMap[m.ID] = uuid.NewString()
	}

	for _, m := range original.Messages() {
		newMsg := *m
		newMsg.ID = idMap[m.ID]
		if m.ParentID != nil {
			mapped := idMap[*m.ParentID]
			newMsg.ParentID = &mapped
		}
		copyTree.AddMessage(newMsg)
	}

	if _, err := s.Save(ctx, copyTree); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{"original_id": id, "new_id": newID}).Info("store: duplicated conversation")
	return newID, nil
}

// AddTags associates names with the conversation, upserting tag rows.
func (s *SQLiteStore) AddTags(ctx context.Context, id string, names []string) error {
	if _, err := validate.ConversationID(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ctkerr.OperationalError{Op: "add_tags:begin", Err: err}
	}
	defer tx.Rollback()

	if err := s.reconcileTagsAdditive(ctx, tx, id, names); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &ctkerr.OperationalError{Op: "add_tags:commit", Err: err}
	}
	return nil
}

func (s *SQLiteStore) reconcileTagsAdditive(ctx context.Context, tx *sql.Tx, conversationID string, names []string) error {
	for _, name := range names {
		tag := model.NewTag(name)

		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name, category, created_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO NOTHING`, tag.Name, nullIfEmpty(tag.Category), nowUnix()); err != nil {
			return &ctkerr.IntegrityError{Op: "add_tags:upsert_tag", Err: err}
		}

		var tagID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, tag.Name).Scan(&tagID); err != nil {
			return &ctkerr.OperationalError{Op: "add_tags:lookup_tag", Err: err}
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_tags (conversation_id, tag_id) VALUES (?, ?)
			ON CONFLICT(conversation_id, tag_id) DO NOTHING`, conversationID, tagID); err != nil {
			return &ctkerr.IntegrityError{Op: "add_tags:associate", Err: err}
		}
	}
	return nil
}

// RemoveTag drops one tag association (the tag row itself survives, per
// spec.md §3.6).
func (s *SQLiteStore) RemoveTag(ctx context.Context, id string, name string) error {
	if _, err := validate.ConversationID(id); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_tags WHERE conversation_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ?)`,
		id, name)
	if err != nil {
		return &ctkerr.OperationalError{Op: "remove_tag", Err: err}
	}
	return nil
}

// ListTags returns every tag row.
func (s *SQLiteStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, COALESCE(category, '') FROM tags ORDER BY name`)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "list_tags", Err: err}
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.Name, &t.Category); err != nil {
			return nil, &ctkerr.OperationalError{Op: "list_tags_scan", Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

// ListConversationsByTag returns every conversation tagged with name.
func (s *SQLiteStore) ListConversationsByTag(ctx context.Context, name string) ([]ConversationSummary, error) {
	query := `SELECT ` + s.summarySelectColumns() + ` FROM conversations c
		JOIN conversation_tags ct ON ct.conversation_id = c.id
		JOIN tags t ON t.id = ct.tag_id
		WHERE t.name = ? ORDER BY c.updated_at DESC, c.id DESC`

	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "list_conversations_by_tag", Err: err}
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		summary, err := scanSummaryRow(rows.Scan)
		if err != nil {
			return nil, &ctkerr.OperationalError{Op: "list_conversations_by_tag_scan", Err: err}
		}
		out = append(out, summary)
	}
	return out, nil
}

// ListTagChildren implements the '/'-delimited tag hierarchy convention of
// spec.md §9: children of "a/b" are tags with name prefix "a/b/", with that
// prefix stripped to the immediate next segment (one level), grounded on
// original_source/ctk/core/shell_completer.py's directory-style listing.
func (s *SQLiteStore) ListTagChildren(ctx context.Context, parent string) ([]string, error) {
	prefix := ""
	if parent != "" {
		prefix = parent + "/"
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tags WHERE name LIKE ? ORDER BY name`, prefix+"%")
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "list_tag_children", Err: err}
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &ctkerr.OperationalError{Op: "list_tag_children_scan", Err: err}
		}
		rest := strings.TrimPrefix(name, prefix)
		segment := rest
		if idx := strings.Index(rest, "/"); idx >= 0 {
			segment = rest[:idx]
		}
		if segment == "" || seen[segment] {
			continue
		}
		seen[segment] = true
		out = append(out, segment)
	}
	return out, nil
}
