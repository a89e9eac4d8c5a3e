package model

import "strings"

// Tag is the primitive of spec.md §3.6: (name, category?). Category is
// inferred from name containing a ':' (the prefix before ':' becomes the
// category).
type Tag struct {
	Name     string
	Category string
}

// NewTag derives Category from a "category:rest" naming convention.
func NewTag(name string) Tag {
	if idx := strings.Index(name, ":"); idx > 0 {
		return Tag{Name: name, Category: name[:idx]}
	}
	return Tag{Name: name}
}
