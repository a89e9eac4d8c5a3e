// Package views implements C5: composable, non-destructive conversation
// views, grounded 1:1 on original_source/ctk/core/views.py.
package views

import "github.com/queelius/ctk/internal/model"

// PathSelection chooses a path or subtree within a conversation tree
// (spec.md §4.5.2).
type PathSelection string

const (
	PathSelectionDefault  PathSelection = "default"
	PathSelectionAll      PathSelection = "all"
	PathSelectionExplicit PathSelection = "explicit"
)

// TreePath records which part of a conversation tree a view item refers
// to (spec.md §4.5.2). It is persisted with the item; Evaluate does not
// apply it, and an evaluated item carries the whole conversation tree.
type TreePath struct {
	Selection PathSelection `yaml:"selection"`
	Path      string        `yaml:"path,omitempty"`    // e.g. "m1/m3/m47"
	Subtree   string        `yaml:"subtree,omitempty"` // root of subtree
}

// DefaultTreePath is the longest-path selection used when a ViewItem
// omits tree_path.
func DefaultTreePath() TreePath { return TreePath{Selection: PathSelectionDefault} }

// ContentSnapshot is an opaque fingerprint captured when an item is
// added to a view, used only for drift detection (spec.md §4.5.4).
type ContentSnapshot struct {
	Hash         string `yaml:"hash"`
	Title        string `yaml:"title,omitempty"`
	MessageCount int    `yaml:"message_count,omitempty"`
	CapturedAt   *int64 `yaml:"captured_at,omitempty"`
}

// ViewItem references one conversation with optional view-local
// overrides (spec.md §4.5.1).
type ViewItem struct {
	ID                 string           `yaml:"id"`
	TitleOverride       string           `yaml:"title_override,omitempty"`
	DescriptionOverride string           `yaml:"description_override,omitempty"`
	Note                string           `yaml:"note,omitempty"`
	TreePath            TreePath         `yaml:"tree_path"`
	Snapshot            *ContentSnapshot `yaml:"snapshot,omitempty"`
	AddedAt             *int64           `yaml:"added_at,omitempty"`
}

// ViewSection is a narrative divider between items, not a conversation
// reference.
type ViewSection struct {
	Title string `yaml:"title"`
	Note  string `yaml:"note,omitempty"`
}

// SequenceItem is one entry of a view's ITEMS sequence: exactly one of
// Item or Section is set.
type SequenceItem struct {
	Item    *ViewItem    `yaml:"item,omitempty"`
	Section *ViewSection `yaml:"section,omitempty"`
}

// ViewQuery mirrors the store's search predicates; every populated field
// is AND-ed together (spec.md §4.5.1).
type ViewQuery struct {
	Tags            []string `yaml:"tags,omitempty"`
	Source          string   `yaml:"source,omitempty"`
	Model           string   `yaml:"model,omitempty"`
	Starred         *bool    `yaml:"starred,omitempty"`
	Pinned          *bool    `yaml:"pinned,omitempty"`
	Archived        *bool    `yaml:"archived,omitempty"`
	CreatedAfter    *int64   `yaml:"created_after,omitempty"`
	CreatedBefore   *int64   `yaml:"created_before,omitempty"`
	UpdatedAfter    *int64   `yaml:"updated_after,omitempty"`
	UpdatedBefore   *int64   `yaml:"updated_before,omitempty"`
	TitleContains   string   `yaml:"title_contains,omitempty"`
	ContentContains string   `yaml:"content_contains,omitempty"`
}

// ViewOrder controls post-selection ordering (spec.md §4.5.1).
type ViewOrder struct {
	Field      string `yaml:"field"`
	Descending bool   `yaml:"descending"`
}

// CompositionOp is one of the three set operations available to
// COMPOSITION views (spec.md §4.5.1).
type CompositionOp string

const (
	OpUnion     CompositionOp = "union"
	OpIntersect CompositionOp = "intersect"
	OpSubtract  CompositionOp = "subtract"
)

// ViewComposition composes other named views via a left-associative
// sequence of set operations (spec.md §9).
type ViewComposition struct {
	Operation CompositionOp `yaml:"operation"`
	ViewNames []string      `yaml:"view_names"`
}

// ExportHints are opaque hints for exporters; they never affect view
// semantics (spec.md §4.5.1).
type ExportHints struct {
	Format     string `yaml:"format,omitempty"`
	Draft      bool   `yaml:"draft,omitempty"`
	DatePrefix bool   `yaml:"date_prefix,omitempty"`
}

// SelectionType reports which of the three selection sources a View
// uses.
type SelectionType int

const (
	SelectionItems SelectionType = iota
	SelectionQuery
	SelectionComposition
)

// View is the persisted specification of one named view (spec.md
// §4.5.1). Exactly one of Items, Query, Composition should be
// populated; SelectionTypeOf resolves which.
type View struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Author      string          `yaml:"author,omitempty"`
	Created     *int64          `yaml:"created,omitempty"`
	Updated     *int64          `yaml:"updated,omitempty"`
	Version     int             `yaml:"version"`

	Items       []SequenceItem   `yaml:"items,omitempty"`
	Query       *ViewQuery       `yaml:"query,omitempty"`
	Composition *ViewComposition `yaml:"composition,omitempty"`

	Where *ViewQuery  `yaml:"where,omitempty"`
	Order *ViewOrder  `yaml:"order,omitempty"`
	Limit *int        `yaml:"limit,omitempty"`

	TrackChanges bool         `yaml:"track_changes"`
	SkipMissing  bool         `yaml:"skip_missing"`
	Export       *ExportHints `yaml:"export,omitempty"`
}

// SelectionTypeOf determines the view's selection source, defaulting to
// an empty ITEMS view when none are set (mirrors views.py's
// selection_type property).
func (v *View) SelectionTypeOf() SelectionType {
	switch {
	case v.Items != nil:
		return SelectionItems
	case v.Query != nil:
		return SelectionQuery
	case v.Composition != nil:
		switch v.Composition.Operation {
		case OpUnion, OpIntersect, OpSubtract:
			return SelectionComposition
		}
	}
	return SelectionItems
}

// GetItems filters the sequence down to conversation references.
func (v *View) GetItems() []ViewItem {
	var out []ViewItem
	for _, seq := range v.Items {
		if seq.Item != nil {
			out = append(out, *seq.Item)
		}
	}
	return out
}

// GetSections filters the sequence down to narrative dividers.
func (v *View) GetSections() []ViewSection {
	var out []ViewSection
	for _, seq := range v.Items {
		if seq.Section != nil {
			out = append(out, *seq.Section)
		}
	}
	return out
}

// EvaluatedViewItem is one resolved item after evaluation (spec.md
// §4.5.3).
type EvaluatedViewItem struct {
	Item                 ViewItem
	ConversationID       string
	Conversation         *model.ConversationTree
	EffectiveTitle       string
	EffectiveDescription string
	Index                int
	Section              string
	DriftDetected        bool
}

// EvaluatedView is the result of evaluate(view_name, store) (spec.md
// §4.5.3).
type EvaluatedView struct {
	View        *View
	Items       []EvaluatedViewItem
	MissingIDs  []string
	DriftCount  int
	EvaluatedAt int64
}

func (e *EvaluatedView) Len() int { return len(e.Items) }
