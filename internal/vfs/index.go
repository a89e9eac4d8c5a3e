package vfs

import (
	"sort"
	"strings"
	"sync"

	"github.com/queelius/ctk/internal/ctkerr"
)

// Completion is one entry of get_completions (spec.md §4.4.6).
type Completion struct {
	Display     string
	ID          string
	Slug        string
	DisplayMeta string // slug | uuid | full-uuid | name | command
}

// index is the secondary in-memory conversation index of spec.md §4.4.4:
// slug -> conversation_id, and an id-prefix accelerant for resolve_prefix
// and tab completion. Grounded on
// original_source/ctk/core/shell_completer.py's slug/UUID matching and
// on the sync.RWMutex + map shape of
// KittClouds-Go-Machine-n/GoKitt/pkg/docstore.Store.
type index struct {
	mu        sync.RWMutex
	built     bool
	slugToID  map[string]string
	idToSlug  map[string]string
	ids       []string // sorted, for prefix scans
}

func newIndex() *index {
	return &index{slugToID: make(map[string]string), idToSlug: make(map[string]string)}
}

// rebuild replaces the index contents. slugs maps conversation id -> slug
// (slug may be empty if the conversation has none).
func (ix *index) rebuild(slugs map[string]string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.slugToID = make(map[string]string, len(slugs))
	ix.idToSlug = make(map[string]string, len(slugs))
	ix.ids = make([]string, 0, len(slugs))

	for id, slug := range slugs {
		ix.ids = append(ix.ids, id)
		if slug != "" {
			ix.slugToID[slug] = id
			ix.idToSlug[id] = slug
		}
	}
	sort.Strings(ix.ids)
	ix.built = true
}

func (ix *index) isBuilt() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.built
}

// invalidate marks the index stale; the next operation rebuilds it
// lazily (spec.md §4.4.4).
func (ix *index) invalidate() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.built = false
}

// matches returns every conversation id whose slug or id starts with
// prefix (case-insensitive), slug matches first.
func (ix *index) matches(prefix string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	lower := strings.ToLower(prefix)
	seen := make(map[string]bool)
	var out []string

	for slug, id := range ix.slugToID {
		if strings.HasPrefix(strings.ToLower(slug), lower) && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range ix.ids {
		if strings.HasPrefix(strings.ToLower(id), lower) && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// resolvePrefix implements spec.md §4.4.5's policy: 0 matches is
// NotFound, 1 match returns it, >=2 is AmbiguousPrefix listing up to 5
// candidates plus a counter.
func (ix *index) resolvePrefix(prefix string) (string, error) {
	matches := ix.matches(prefix)
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

// getCompletions implements spec.md §4.4.6: primary lookup by slug
// prefix, secondary by id prefix, capped at limit.
func (ix *index) getCompletions(prefix string, limit int) []Completion {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	lower := strings.ToLower(prefix)
	var out []Completion
	seen := make(map[string]bool)

	var slugs []string
	for slug := range ix.slugToID {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	for _, slug := range slugs {
		if len(out) >= limit {
			return out
		}
		if strings.HasPrefix(strings.ToLower(slug), lower) {
			id := ix.slugToID[slug]
			out = append(out, Completion{Display: slug, ID: id, Slug: slug, DisplayMeta: "slug"})
			seen[id] = true
		}
	}

	for _, id := range ix.ids {
		if len(out) >= limit {
			return out
		}
		if seen[id] {
			continue
		}
		if strings.HasPrefix(strings.ToLower(id), lower) {
			out = append(out, Completion{Display: id, ID: id, DisplayMeta: "uuid"})
			seen[id] = true
		}
	}

	return out
}
