package vfs

// Entry is spec.md §6.2's VFSEntry: a single listed child under a
// directory path. MetadataValue carries the scalar for the four
// message metadata files (text/role/timestamp/id); it is non-empty
// only when IsDirectory is false.
type Entry struct {
	Name            string
	IsDirectory     bool
	ConversationID  string
	MessageID       string
	Title           string
	Role            string
	ContentPreview  string
	HasChildren     bool
	CreatedAt       *int64
	UpdatedAt       *int64
	Tags            []string
	Starred         bool
	Pinned          bool
	Archived        bool
	Source          string
	Model           string
	Slug            string
	MetadataValue   string
}

// contentPreview truncates text to its first line, then to 50 runes,
// appending "..." when truncated (spec.md §6.2).
func contentPreview(text string) string {
	firstLine := text
	for i, r := range text {
		if r == '\n' {
			firstLine = text[:i]
			break
		}
	}

	runes := []rune(firstLine)
	if len(runes) <= 50 {
		return firstLine
	}
	return string(runes[:50]) + "..."
}
