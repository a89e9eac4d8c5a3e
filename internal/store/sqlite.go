package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/queelius/ctk/internal/ctkerr"
	"github.com/queelius/ctk/internal/model"
	"github.com/queelius/ctk/internal/validate"
)

//go:embed schema.sql
var schemaSQL string

// idSeparator joins a conversation id to a local message id to synthesize
// the store-global persisted id of spec.md §3.7/§3.9.
const idSeparator = "::"

// SQLiteStore is the C2 implementation, HOW grounded on
// dimajix-llm-monitor/internal/storage/postgres.go (raw SQL via
// database/sql, transaction-per-mutation, manual struct scanning) and
// KittClouds-Go-Machine-n/GoKitt/internal/store/sqlite_store.go
// (SQLite-specific schema shape), WHAT per spec.md §4.2.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) the single database file inside
// dir, per spec.md §6.4, and applies the schema.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dir, "ctk.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1) // single-writer, multi-reader discipline (spec.md §5)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, &ctkerr.OperationalError{Op: "init_schema", Err: err}
	}

	logrus.WithField("path", dbPath).Info("store: opened database")
	return &SQLiteStore{db: db}, nil
}

var _ Storage = (*SQLiteStore)(nil)

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nowUnix() int64 { return time.Now().Unix() }

func persistedID(conversationID, localID string) string {
	return conversationID + idSeparator + localID
}

func stripPrefix(conversationID, persisted string) string {
	return strings.TrimPrefix(persisted, conversationID+idSeparator)
}

// Save implements spec.md §4.2's save(tree) round-trip.
func (s *SQLiteStore) Save(ctx context.Context, tree *model.ConversationTree) (string, error) {
	if _, err := validate.ConversationID(tree.ID); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", &ctkerr.OperationalError{Op: "save:begin", Err: err}
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)`, tree.ID).Scan(&exists); err != nil {
		return "", &ctkerr.OperationalError{Op: "save:exists", Err: err}
	}

	if exists {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, tree.ID); err != nil {
			return "", &ctkerr.OperationalError{Op: "save:purge_messages", Err: err}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM paths WHERE conversation_id = ?`, tree.ID); err != nil {
			return "", &ctkerr.OperationalError{Op: "save:purge_paths", Err: err}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_tags WHERE conversation_id = ?`, tree.ID); err != nil {
			return "", &ctkerr.OperationalError{Op: "save:purge_tags", Err: err}
		}
	}

	metaJSON, err := json.Marshal(tree.Metadata.CustomData)
	if err != nil {
		return "", &ctkerr.ValidationError{Field: "metadata", Reason: "not JSON-serializable"}
	}

	now := nowUnix()
	createdAt := tree.Metadata.CreatedAt
	if createdAt == nil {
		createdAt = &now
	}
	updatedAt := &now

	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET title=?, updated_at=?, version=?, format=?, source=?, model=?, project=?,
				starred_at=?, pinned_at=?, archived_at=?, metadata_json=?
			WHERE id=?`,
			tree.Title, *updatedAt, tree.Metadata.Version, tree.Metadata.Format, tree.Metadata.Source,
			tree.Metadata.Model, tree.Metadata.Project, tree.Metadata.StarredAt, tree.Metadata.PinnedAt,
			tree.Metadata.ArchivedAt, string(metaJSON), tree.ID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversations
				(id, title, created_at, updated_at, version, format, source, model, project, starred_at, pinned_at, archived_at, metadata_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tree.ID, tree.Title, *createdAt, *updatedAt, tree.Metadata.Version, tree.Metadata.Format,
			tree.Metadata.Source, tree.Metadata.Model, tree.Metadata.Project, tree.Metadata.StarredAt,
			tree.Metadata.PinnedAt, tree.Metadata.ArchivedAt, string(metaJSON))
	}
	if err != nil {
		return "", &ctkerr.IntegrityError{Op: "save:conversation", Err: err}
	}

	if err := s.reconcileTags(ctx, tx, tree.ID, tree.Metadata.Tags); err != nil {
		return "", err
	}

	for _, m := range tree.Messages() {
		contentJSON, err := json.Marshal(m.Content)
		if err != nil {
			return "", &ctkerr.ValidationError{Field: "content", Reason: "not JSON-serializable"}
		}
		metaJSON, err := json.Marshal(m.Metadata)
		if err != nil {
			return "", &ctkerr.ValidationError{Field: "metadata", Reason: "not JSON-serializable"}
		}

		var parentPersisted *string
		if m.ParentID != nil {
			p := persistedID(tree.ID, *m.ParentID)
			parentPersisted = &p
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content_json, parent_id, timestamp, metadata_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			persistedID(tree.ID, m.ID), tree.ID, string(m.Role), string(contentJSON), parentPersisted,
			m.Timestamp, string(metaJSON)); err != nil {
			return "", &ctkerr.IntegrityError{Op: "save:message", Err: err}
		}
	}

	paths := tree.GetAllPaths()
	for i, p := range paths {
		persistedIDs := make([]string, 0, len(p))
		for _, localID := range p {
			persistedIDs = append(persistedIDs, persistedID(tree.ID, localID))
		}
		idsJSON, _ := json.Marshal(persistedIDs)
		leaf := persistedIDs[len(persistedIDs)-1]

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO paths (conversation_id, name, message_ids_json, is_primary, length, leaf_message_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			tree.ID, fmt.Sprintf("path_%d", i), string(idsJSON), boolToInt(i == 0), len(p), leaf); err != nil {
			return "", &ctkerr.OperationalError{Op: "save:path", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", &ctkerr.OperationalError{Op: "save:commit", Err: err}
	}

	logrus.WithField("conversation_id", tree.ID).Info("store: saved conversation")
	return tree.ID, nil
}

func (s *SQLiteStore) reconcileTags(ctx context.Context, tx *sql.Tx, conversationID string, tagNames []string) error {
	for _, name := range tagNames {
		tag := model.NewTag(name)

		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name, category, created_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO NOTHING`, tag.Name, nullIfEmpty(tag.Category), nowUnix()); err != nil {
			return &ctkerr.IntegrityError{Op: "save:upsert_tag", Err: err}
		}

		var tagID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, tag.Name).Scan(&tagID); err != nil {
			return &ctkerr.OperationalError{Op: "save:lookup_tag", Err: err}
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_tags (conversation_id, tag_id) VALUES (?, ?)
			ON CONFLICT(conversation_id, tag_id) DO NOTHING`, conversationID, tagID); err != nil {
			return &ctkerr.IntegrityError{Op: "save:associate_tag", Err: err}
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Load implements spec.md §4.2's load(id), inverting Save.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.ConversationTree, error) {
	if _, err := validate.ConversationID(id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT title, created_at, updated_at, version, format, source, model, project,
		       starred_at, pinned_at, archived_at, metadata_json
		FROM conversations WHERE id = ?`, id)

	var title, version, format, source, modelName, project sql.NullString
	var createdAt, updatedAt, starredAt, pinnedAt, archivedAt sql.NullInt64
	var metaJSON sql.NullString

	if err := row.Scan(&title, &createdAt, &updatedAt, &version, &format, &source, &modelName, &project,
		&starredAt, &pinnedAt, &archivedAt, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ctkerr.NotFoundError{Kind: "conversation", ID: id}
		}
		return nil, &ctkerr.OperationalError{Op: "load:conversation", Err: err}
	}

	tree := model.NewConversationTree(id)
	tree.Title = title.String

	meta := model.ConversationMetadata{}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &meta.CustomData)
	}
	meta.Version = version.String
	meta.Format = format.String
	meta.Source = source.String
	meta.Model = modelName.String
	meta.Project = project.String
	meta.CreatedAt = nullInt64Ptr(createdAt)
	meta.UpdatedAt = nullInt64Ptr(updatedAt)
	meta.StarredAt = nullInt64Ptr(starredAt)
	meta.PinnedAt = nullInt64Ptr(pinnedAt)
	meta.ArchivedAt = nullInt64Ptr(archivedAt)

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN conversation_tags ct ON ct.tag_id = t.id
		WHERE ct.conversation_id = ?`, id)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "load:tags", Err: err}
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var name string
		if err := tagRows.Scan(&name); err != nil {
			return nil, &ctkerr.OperationalError{Op: "load:tags_scan", Err: err}
		}
		meta.Tags = append(meta.Tags, name)
	}
	tree.Metadata = meta

	msgRows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content_json, parent_id, timestamp, metadata_json
		FROM messages WHERE conversation_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "load:messages", Err: err}
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var persistedMsgID, role, contentJSON string
		var parentID sql.NullString
		var timestamp sql.NullInt64
		var msgMetaJSON sql.NullString

		if err := msgRows.Scan(&persistedMsgID, &role, &contentJSON, &parentID, &timestamp, &msgMetaJSON); err != nil {
			return nil, &ctkerr.OperationalError{Op: "load:messages_scan", Err: err}
		}

		var content model.MessageContent
		_ = json.Unmarshal([]byte(contentJSON), &content)

		var msgMeta map[string]any
		if msgMetaJSON.Valid {
			_ = json.Unmarshal([]byte(msgMetaJSON.String), &msgMeta)
		}

		roleVal, _ := model.ParseMessageRole(role)

		msg := model.Message{
			ID:        stripPrefix(id, persistedMsgID),
			Role:      roleVal,
			Content:   content,
			Timestamp: nullInt64Ptr(timestamp),
			Metadata:  msgMeta,
		}
		if parentID.Valid {
			localParent := stripPrefix(id, parentID.String)
			msg.ParentID = &localParent
		}
		tree.AddMessage(msg)
	}

	return tree, nil
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// Delete cascades atomically across messages, paths, embeddings,
// similarities, and tag associations (spec.md §3.4/§5).
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := validate.ConversationID(id); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return false, &ctkerr.OperationalError{Op: "delete", Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, &ctkerr.NotFoundError{Kind: "conversation", ID: id}
	}
	logrus.WithField("conversation_id", id).Info("store: deleted conversation")
	return true, nil
}
