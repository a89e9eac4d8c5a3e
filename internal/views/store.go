package views

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/queelius/ctk/internal/ctkerr"
	"github.com/queelius/ctk/internal/store"
	"github.com/queelius/ctk/internal/validate"
)

// Store persists views as one YAML document per view in a directory,
// per spec.md §6.4 ("an adjacent directory of text documents, one per
// view"). Grounded on dimajix-llm-monitor/internal/config.go's
// yaml.v2-based load/marshal pattern, generalized to a per-file store.
type Store struct {
	dir string
}

// NewStore opens (creating if absent) the view directory at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ctkerr.OperationalError{Op: "views:mkdir", Err: err}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(name string) string {
	return filepath.Join(s.dir, name+".yaml")
}

// Exists reports whether a view with this name is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.pathFor(name))
	return err == nil
}

// CreateView constructs and persists a new view. It is an error to
// create a view whose name already exists (spec.md §6.5: Conflict).
func (s *Store) CreateView(name, description, author string) (*View, error) {
	if s.Exists(name) {
		return nil, &ctkerr.ConflictError{Kind: "view", Name: name}
	}
	v := &View{
		Name:        name,
		Description: description,
		Author:      author,
		Version:     1,
		SkipMissing: true,
	}
	if err := s.Save(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Save persists v, overwriting any existing file (spec.md §6.3).
func (s *Store) Save(v *View) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return &ctkerr.OperationalError{Op: "views:marshal", Err: err}
	}
	if err := os.WriteFile(s.pathFor(v.Name), data, 0o644); err != nil {
		return &ctkerr.OperationalError{Op: "views:write", Err: err}
	}
	return nil
}

// Load reads a view by name.
func (s *Store) Load(name string) (*View, error) {
	data, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ctkerr.NotFoundError{Kind: "view", ID: name}
		}
		return nil, &ctkerr.OperationalError{Op: "views:read", Err: err}
	}
	var v View
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, &ctkerr.OperationalError{Op: "views:unmarshal", Err: err}
	}
	return &v, nil
}

// Delete removes a view by name.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.pathFor(name)); err != nil {
		if os.IsNotExist(err) {
			return &ctkerr.NotFoundError{Kind: "view", ID: name}
		}
		return &ctkerr.OperationalError{Op: "views:delete", Err: err}
	}
	return nil
}

// ListViews returns every view name, sorted.
func (s *Store) ListViews() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &ctkerr.OperationalError{Op: "views:list", Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// ViewSummary is one row of list_views_detailed (spec.md §6.3).
type ViewSummary struct {
	Name          string
	Description   string
	SelectionType SelectionType
	ItemCount     int
}

// ListViewsDetailed returns a summary per view.
func (s *Store) ListViewsDetailed() ([]ViewSummary, error) {
	names, err := s.ListViews()
	if err != nil {
		return nil, err
	}
	out := make([]ViewSummary, 0, len(names))
	for _, name := range names {
		v, err := s.Load(name)
		if err != nil {
			continue
		}
		out = append(out, ViewSummary{
			Name:          v.Name,
			Description:   v.Description,
			SelectionType: v.SelectionTypeOf(),
			ItemCount:     len(v.GetItems()),
		})
	}
	return out, nil
}

// AddToView appends a ViewItem to an ITEMS view, converting it to ITEMS
// selection if it was empty (mirrors cli.py's add_to_view usage).
func (s *Store) AddToView(name, conversationID, titleOverride, note string) error {
	if _, err := validate.ConversationID(conversationID); err != nil {
		return err
	}
	v, err := s.Load(name)
	if err != nil {
		return err
	}
	v.Items = append(v.Items, SequenceItem{Item: &ViewItem{
		ID:            conversationID,
		TitleOverride: titleOverride,
		Note:          note,
		TreePath:      DefaultTreePath(),
	}})
	return s.Save(v)
}

// SetExportHints validates and attaches export hints to a view. Hints are
// opaque to evaluation (spec.md §4.5.1); only the format string is
// validated here since it is the one field an exporter dispatches on.
func (s *Store) SetExportHints(name string, hints ExportHints) error {
	if hints.Format != "" {
		validated, err := validate.ExportFormat(hints.Format)
		if err != nil {
			return err
		}
		hints.Format = validated
	}
	v, err := s.Load(name)
	if err != nil {
		return err
	}
	v.Export = &hints
	return s.Save(v)
}

// ViewCheckResult is check_view's issue-counts summary (spec.md §4.5.5,
// §6.3): how many items resolved cleanly, which ids are missing, how many
// have drifted, and a human-readable issue per problem found.
type ViewCheckResult struct {
	ResolvedItems int
	MissingIDs    []string
	DriftCount    int
	Issues        []string
}

// CheckView evaluates name and summarizes the evaluation's health: missing
// conversation ids, drifted snapshots, and a resolved-item count. It never
// mutates the view; it only reports.
func (s *Store) CheckView(ctx context.Context, name string, st store.Storage) (*ViewCheckResult, error) {
	evaluated, err := s.Evaluate(ctx, name, st)
	if err != nil {
		return nil, err
	}

	result := &ViewCheckResult{
		ResolvedItems: len(evaluated.Items),
		MissingIDs:    evaluated.MissingIDs,
		DriftCount:    evaluated.DriftCount,
	}

	for _, id := range evaluated.MissingIDs {
		result.Issues = append(result.Issues, fmt.Sprintf("missing conversation: %s", id))
	}
	for _, item := range evaluated.Items {
		if item.DriftDetected {
			result.Issues = append(result.Issues, fmt.Sprintf("drifted conversation: %s", item.ConversationID))
		}
	}

	return result, nil
}

// RemoveFromView drops every ViewItem referencing id.
func (s *Store) RemoveFromView(name, id string) error {
	if _, err := validate.ConversationID(id); err != nil {
		return err
	}
	v, err := s.Load(name)
	if err != nil {
		return err
	}
	removed := false
	kept := v.Items[:0]
	for _, seq := range v.Items {
		if seq.Item != nil && seq.Item.ID == id {
			removed = true
			continue
		}
		kept = append(kept, seq)
	}
	if !removed {
		return &ctkerr.NotFoundError{Kind: "view_item", ID: id}
	}
	v.Items = kept
	return s.Save(v)
}
