package views

import (
	"context"
	"sort"
	"strings"

	"github.com/queelius/ctk/internal/ctkerr"
	"github.com/queelius/ctk/internal/model"
	"github.com/queelius/ctk/internal/similarity"
	"github.com/queelius/ctk/internal/store"
)

// Evaluate resolves name's selection source, applies where/order/limit,
// and computes drift where requested (spec.md §4.5.3). The receiver s is
// the persisted-view lookup (used recursively for COMPOSITION); st is the
// conversation store.
func (s *Store) Evaluate(ctx context.Context, name string, st store.Storage) (*EvaluatedView, error) {
	return s.evaluate(ctx, name, st, make(map[string]bool))
}

func (s *Store) evaluate(ctx context.Context, name string, st store.Storage, visiting map[string]bool) (*EvaluatedView, error) {
	v, err := s.Load(name)
	if err != nil {
		return nil, err
	}

	var resolved []EvaluatedViewItem
	var missing []string

	switch v.SelectionTypeOf() {
	case SelectionItems:
		resolved, missing, err = resolveItems(ctx, v, st)
	case SelectionQuery:
		resolved, err = resolveQuery(ctx, v.Query, st)
	case SelectionComposition:
		resolved, err = s.resolveComposition(ctx, v.Composition, st, visiting)
	}
	if err != nil {
		return nil, err
	}

	resolved = applyWhere(resolved, v.Where)
	resolved = applyOrder(resolved, v.Order)
	resolved = applyLimit(resolved, v.Limit)

	driftCount := 0
	if v.TrackChanges {
		driftCount = detectDrift(resolved)
	}

	for i := range resolved {
		resolved[i].Index = i
	}

	return &EvaluatedView{
		View:       v,
		Items:      resolved,
		MissingIDs: missing,
		DriftCount: driftCount,
	}, nil
}

func resolveItems(ctx context.Context, v *View, st store.Storage) ([]EvaluatedViewItem, []string, error) {
	var out []EvaluatedViewItem
	var missing []string

	for _, vi := range v.GetItems() {
		tree, err := st.Load(ctx, vi.ID)
		if err != nil {
			if v.SkipMissing {
				missing = append(missing, vi.ID)
				continue
			}
			return nil, nil, &ctkerr.NotFoundError{Kind: "conversation", ID: vi.ID}
		}

		title := tree.Title
		if vi.TitleOverride != "" {
			title = vi.TitleOverride
		}
		desc := vi.DescriptionOverride

		out = append(out, EvaluatedViewItem{
			Item:                 vi,
			ConversationID:       vi.ID,
			Conversation:         tree,
			EffectiveTitle:       title,
			EffectiveDescription: desc,
			DriftDetected:        false,
		})
	}

	return out, missing, nil
}

func resolveQuery(ctx context.Context, q *ViewQuery, st store.Storage) ([]EvaluatedViewItem, error) {
	filters := queryToSearchFilters(q)
	result, err := st.SearchConversations(ctx, filters, store.DefaultOrdering, store.Pagination{PageSize: 1 << 30})
	if err != nil {
		return nil, err
	}

	out := make([]EvaluatedViewItem, 0, len(result.Items))
	for _, summary := range result.Items {
		tree, err := st.Load(ctx, summary.ID)
		if err != nil {
			continue
		}
		// The store search carries a single text filter; re-check the
		// loaded tree so every populated field of q holds together.
		if q != nil && !matchesQuery(tree, q) {
			continue
		}
		out = append(out, EvaluatedViewItem{
			Item:           ViewItem{ID: summary.ID, TreePath: DefaultTreePath()},
			ConversationID: summary.ID,
			Conversation:   tree,
			EffectiveTitle: summary.Title,
		})
	}
	return out, nil
}

func queryToSearchFilters(q *ViewQuery) store.SearchFilters {
	if q == nil {
		return store.SearchFilters{}
	}

	var queryText string
	var titleOnly, contentOnly bool
	switch {
	case q.TitleContains != "":
		queryText, titleOnly = q.TitleContains, true
	case q.ContentContains != "":
		queryText, contentOnly = q.ContentContains, true
	}

	return store.SearchFilters{
		ListFilters: store.ListFilters{
			Source:          q.Source,
			Model:           q.Model,
			Tags:            q.Tags,
			Starred:         q.Starred,
			Pinned:          q.Pinned,
			Archived:        q.Archived,
			IncludeArchived: q.Archived != nil,
		},
		QueryText:   queryText,
		TitleOnly:   titleOnly,
		ContentOnly: contentOnly,
		DateFrom:    q.CreatedAfter,
		DateTo:      q.CreatedBefore,
	}
}

// resolveComposition evaluates each named view to a conversation-id set,
// then applies the set operation left-to-right (spec.md §4.5.3, §9).
func (s *Store) resolveComposition(ctx context.Context, comp *ViewComposition, st store.Storage, visiting map[string]bool) ([]EvaluatedViewItem, error) {
	if comp == nil || len(comp.ViewNames) == 0 {
		return nil, nil
	}

	var acc map[string]EvaluatedViewItem
	var order []string

	for i, name := range comp.ViewNames {
		if visiting[name] {
			return nil, &ctkerr.ValidationError{Field: "composition.view_names", Reason: "cycle detected at view " + name}
		}
		visiting[name] = true
		evaluated, err := s.evaluate(ctx, name, st, visiting)
		visiting[name] = false
		if err != nil {
			return nil, err
		}

		current := make(map[string]EvaluatedViewItem, len(evaluated.Items))
		var currentOrder []string
		for _, item := range evaluated.Items {
			current[item.ConversationID] = item
			currentOrder = append(currentOrder, item.ConversationID)
		}

		if i == 0 {
			acc = current
			order = currentOrder
			continue
		}

		switch comp.Operation {
		case OpUnion:
			for _, id := range currentOrder {
				if _, ok := acc[id]; !ok {
					acc[id] = current[id]
					order = append(order, id)
				}
			}
		case OpIntersect:
			var kept []string
			for _, id := range order {
				if _, ok := current[id]; ok {
					kept = append(kept, id)
				}
			}
			order = kept
		case OpSubtract:
			var kept []string
			for _, id := range order {
				if _, ok := current[id]; !ok {
					kept = append(kept, id)
				}
			}
			order = kept
		}
	}

	out := make([]EvaluatedViewItem, 0, len(order))
	for _, id := range order {
		out = append(out, acc[id])
	}
	return out, nil
}

func applyWhere(items []EvaluatedViewItem, where *ViewQuery) []EvaluatedViewItem {
	if where == nil {
		return items
	}
	var out []EvaluatedViewItem
	for _, item := range items {
		if matchesQuery(item.Conversation, where) {
			out = append(out, item)
		}
	}
	return out
}

func matchesQuery(tree *model.ConversationTree, q *ViewQuery) bool {
	if q.Source != "" && tree.Metadata.Source != q.Source {
		return false
	}
	if q.Model != "" && tree.Metadata.Model != q.Model {
		return false
	}
	if q.Starred != nil && tree.Metadata.Starred() != *q.Starred {
		return false
	}
	if q.Pinned != nil && tree.Metadata.Pinned() != *q.Pinned {
		return false
	}
	if q.Archived != nil && tree.Metadata.Archived() != *q.Archived {
		return false
	}
	if len(q.Tags) > 0 {
		tagSet := make(map[string]bool, len(tree.Metadata.Tags))
		for _, t := range tree.Metadata.Tags {
			tagSet[t] = true
		}
		for _, required := range q.Tags {
			if !tagSet[required] {
				return false
			}
		}
	}
	if q.TitleContains != "" && !strings.Contains(strings.ToLower(tree.Title), strings.ToLower(q.TitleContains)) {
		return false
	}
	if q.ContentContains != "" && !treeContainsText(tree, q.ContentContains) {
		return false
	}
	created, updated := tree.Metadata.CreatedAt, tree.Metadata.UpdatedAt
	if q.CreatedAfter != nil && (created == nil || *created < *q.CreatedAfter) {
		return false
	}
	if q.CreatedBefore != nil && (created == nil || *created > *q.CreatedBefore) {
		return false
	}
	if q.UpdatedAfter != nil && (updated == nil || *updated < *q.UpdatedAfter) {
		return false
	}
	if q.UpdatedBefore != nil && (updated == nil || *updated > *q.UpdatedBefore) {
		return false
	}
	return true
}

func treeContainsText(tree *model.ConversationTree, substr string) bool {
	needle := strings.ToLower(substr)
	for _, m := range tree.Messages() {
		if strings.Contains(strings.ToLower(m.Content.GetText()), needle) {
			return true
		}
	}
	return false
}

func applyOrder(items []EvaluatedViewItem, order *ViewOrder) []EvaluatedViewItem {
	if order == nil {
		return items
	}
	less := func(i, j int) bool {
		a, b := items[i], items[j]
		switch order.Field {
		case "title":
			return a.EffectiveTitle < b.EffectiveTitle
		case "message_count":
			return a.Conversation.MessageCount() < b.Conversation.MessageCount()
		default:
			return a.ConversationID < b.ConversationID
		}
	}
	if order.Descending {
		under := less
		less = func(i, j int) bool { return under(j, i) }
	}
	sort.SliceStable(items, less)
	return items
}

func applyLimit(items []EvaluatedViewItem, limit *int) []EvaluatedViewItem {
	if limit == nil || *limit >= len(items) {
		return items
	}
	if *limit < 0 {
		return items
	}
	return items[:*limit]
}

// detectDrift compares each item's snapshot fingerprint (if any) against
// the conversation's current fingerprint, setting DriftDetected and
// returning the count (spec.md §4.5.4).
func detectDrift(items []EvaluatedViewItem) int {
	count := 0
	for i := range items {
		snap := items[i].Item.Snapshot
		if snap == nil {
			continue
		}
		current := similarity.Fingerprint(items[i].Conversation)
		if current != snap.Hash {
			items[i].DriftDetected = true
			count++
		}
	}
	return count
}
