package store

import (
	"context"

	"github.com/queelius/ctk/internal/ctkerr"
	"github.com/queelius/ctk/internal/model"
	"github.com/queelius/ctk/internal/similarity"
)

// ComputeSimilarity loads both conversations, computes their Jaccard
// similarity, and caches the score in the similarities table
// (SPEC_FULL.md Supplemented Features #1), grounded on
// original_source/ctk/core/db_models.py's SimilarityModel and
// db_operations.py's compute_similarity.
func (s *SQLiteStore) ComputeSimilarity(ctx context.Context, id1, id2 string) (float64, error) {
	if id1 > id2 {
		id1, id2 = id2, id1
	}

	tree1, err := s.Load(ctx, id1)
	if err != nil {
		return 0, err
	}
	tree2, err := s.Load(ctx, id2)
	if err != nil {
		return 0, err
	}

	score := similarity.Jaccard(tree1, tree2)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO similarities (conversation1_id, conversation2_id, similarity, metric, provider, created_at)
		VALUES (?, ?, ?, 'jaccard', 'internal', ?)
		ON CONFLICT(conversation1_id, conversation2_id, metric, provider) DO UPDATE SET similarity = excluded.similarity`,
		id1, id2, score, nowUnix())
	if err != nil {
		return 0, &ctkerr.OperationalError{Op: "compute_similarity:cache", Err: err}
	}

	return score, nil
}

// FindSimilarGroups clusters conversations whose pairwise Jaccard
// similarity meets threshold, grounded on
// original_source/ctk/core/db_operations.py's find_similar_groups
// (greedy single-pass clustering, not full agglomerative clustering).
func (s *SQLiteStore) FindSimilarGroups(ctx context.Context, threshold float64) ([][]string, error) {
	ids, trees, err := s.loadAllTrees(ctx)
	if err != nil {
		return nil, err
	}

	processed := make(map[string]bool)
	var groups [][]string

	for i, id1 := range ids {
		if processed[id1] {
			continue
		}
		group := []string{id1}
		processed[id1] = true

		for j := i + 1; j < len(ids); j++ {
			id2 := ids[j]
			if processed[id2] {
				continue
			}
			if similarity.Jaccard(trees[id1], trees[id2]) >= threshold {
				group = append(group, id2)
				processed[id2] = true
			}
		}

		if len(group) > 1 {
			groups = append(groups, group)
		}
	}

	return groups, nil
}

// FindDuplicateConversations groups conversation ids whose content
// fingerprint (internal/similarity.Fingerprint — the same one drift
// detection uses) is byte-identical, grounded on
// original_source/ctk/core/db_operations.py's _find_duplicate_groups.
func (s *SQLiteStore) FindDuplicateConversations(ctx context.Context) ([][]string, error) {
	ids, trees, err := s.loadAllTrees(ctx)
	if err != nil {
		return nil, err
	}

	byFingerprint := make(map[string][]string)
	for _, id := range ids {
		fp := similarity.Fingerprint(trees[id])
		byFingerprint[fp] = append(byFingerprint[fp], id)
	}

	var groups [][]string
	for _, ids := range byFingerprint {
		if len(ids) > 1 {
			groups = append(groups, ids)
		}
	}
	return groups, nil
}

func (s *SQLiteStore) loadAllTrees(ctx context.Context) ([]string, map[string]*model.ConversationTree, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conversations`)
	if err != nil {
		return nil, nil, &ctkerr.OperationalError{Op: "load_all_trees:list", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, nil, &ctkerr.OperationalError{Op: "load_all_trees:scan", Err: err}
		}
		ids = append(ids, id)
	}

	trees := make(map[string]*model.ConversationTree, len(ids))
	for _, id := range ids {
		tree, err := s.Load(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		trees[id] = tree
	}

	return ids, trees, nil
}
