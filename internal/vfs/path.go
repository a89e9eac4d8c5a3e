// Package vfs implements C4: a read-only virtual filesystem over the
// store, grounded on original_source/ctk/core/vfs.py's path model and
// shell_completer.py's prefix/completion behavior.
package vfs

import (
	"strconv"
	"strings"

	"github.com/queelius/ctk/internal/ctkerr"
)

// PathType is the closed enum of spec.md §4.4.
type PathType int

const (
	PathRoot PathType = iota
	PathChats
	PathConversation
	PathTags
	PathStarred
	PathPinned
	PathArchived
	PathRecent
	PathSource
	PathModel
	PathViews
)

func (p PathType) String() string {
	switch p {
	case PathRoot:
		return "ROOT"
	case PathChats:
		return "CHATS"
	case PathConversation:
		return "CONVERSATION"
	case PathTags:
		return "TAGS"
	case PathStarred:
		return "STARRED"
	case PathPinned:
		return "PINNED"
	case PathArchived:
		return "ARCHIVED"
	case PathRecent:
		return "RECENT"
	case PathSource:
		return "SOURCE"
	case PathModel:
		return "MODEL"
	case PathViews:
		return "VIEWS"
	default:
		return "UNKNOWN"
	}
}

// Path is the parsed, typed representation of a VFS path string
// (spec.md §4.4: normalized_path, path_type, is_directory, message_path).
type Path struct {
	Raw            string
	Normalized     string
	Type           PathType
	IsDirectory    bool
	ConversationID string   // set when Type == PathConversation (or a message lives under one)
	Tail           string   // remaining segment after the category (tag name, source name, bucket, view name)
	MessagePath    []int    // m<k> indices, 1-based, empty if none
	segments       []string // normalized segments, for internal use
}

// Parse canonicalizes path_string (resolving "." and "..") and classifies
// it per the directory tree in spec.md §4.4.1.
func Parse(pathString string) (*Path, error) {
	normalized := normalize(pathString)
	segments := splitSegments(normalized)

	p := &Path{
		Raw:         pathString,
		Normalized:  normalized,
		IsDirectory: true,
		segments:    segments,
	}

	if len(segments) == 0 {
		p.Type = PathRoot
		return p, nil
	}

	category := segments[0]
	rest := segments[1:]

	switch category {
	case "chats":
		p.Type = PathChats
		return parseConversationRest(p, rest)
	case "tags":
		p.Type = PathTags
		if len(rest) > 0 {
			p.Tail = strings.Join(rest, "/")
		}
		return p, nil
	case "starred":
		p.Type = PathStarred
		return parseConversationRest(p, rest)
	case "pinned":
		p.Type = PathPinned
		return parseConversationRest(p, rest)
	case "archived":
		p.Type = PathArchived
		return parseConversationRest(p, rest)
	case "recent":
		p.Type = PathRecent
		if len(rest) > 0 {
			p.Tail = rest[0]
			return parseConversationRest(p, rest[1:])
		}
		return p, nil
	case "source":
		p.Type = PathSource
		if len(rest) > 0 {
			p.Tail = rest[0]
			return parseConversationRest(p, rest[1:])
		}
		return p, nil
	case "model":
		p.Type = PathModel
		if len(rest) > 0 {
			p.Tail = rest[0]
			return parseConversationRest(p, rest[1:])
		}
		return p, nil
	case "views":
		p.Type = PathViews
		if len(rest) > 0 {
			p.Tail = rest[0]
		}
		return p, nil
	default:
		return nil, &ctkerr.InvalidPathError{Path: pathString, Reason: "unknown top-level segment: " + category}
	}
}

// parseConversationRest consumes [conversationIdent, m<k>, m<k>, ...] from
// rest, setting ConversationID, Type=PathConversation, and MessagePath.
func parseConversationRest(p *Path, rest []string) (*Path, error) {
	if len(rest) == 0 {
		return p, nil
	}

	p.ConversationID = rest[0]
	p.Type = PathConversation

	messageSegs := rest[1:]
	for _, seg := range messageSegs {
		if !strings.HasPrefix(seg, "m") {
			return nil, &ctkerr.InvalidPathError{Path: p.Raw, Reason: "malformed message segment: " + seg}
		}
		k, err := strconv.Atoi(seg[1:])
		if err != nil || k < 1 {
			return nil, &ctkerr.InvalidPathError{Path: p.Raw, Reason: "malformed message index: " + seg}
		}
		p.MessagePath = append(p.MessagePath, k)
	}

	return p, nil
}

func splitSegments(normalized string) []string {
	trimmed := strings.Trim(normalized, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// normalize resolves "." and ".." components without touching the
// filesystem (there is no filesystem; this is a pure string operation).
func normalize(pathString string) string {
	raw := strings.Split(pathString, "/")
	var stack []string
	for _, seg := range raw {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	return "/" + strings.Join(stack, "/")
}
