// Package model implements C1: Message, MessageContent, MessageRole,
// ConversationMetadata, and ConversationTree, per spec.md §3-4.1.
package model

import "strings"

// MessageRole is the closed enumeration of spec.md §3.1, serialized as
// lowercase strings.
type MessageRole string

const (
	RoleSystem      MessageRole = "system"
	RoleUser        MessageRole = "user"
	RoleAssistant   MessageRole = "assistant"
	RoleTool        MessageRole = "tool"
	RoleFunction    MessageRole = "function"
	RoleToolResult  MessageRole = "tool_result"
)

// ParseMessageRole coerces any case to a MessageRole, per spec.md §4.1
// ("from-string coercion accepting any case").
func ParseMessageRole(s string) (MessageRole, bool) {
	switch MessageRole(strings.ToLower(s)) {
	case RoleSystem:
		return RoleSystem, true
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	case RoleTool:
		return RoleTool, true
	case RoleFunction:
		return RoleFunction, true
	case RoleToolResult:
		return RoleToolResult, true
	default:
		return "", false
	}
}

// ContentPart is one piece of a structured, possibly multi-part message
// content (spec.md §3.2: "may carry typed parts such as text, image
// reference, tool invocation, tool result").
type ContentPart struct {
	Type string         `json:"type"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// MessageContent is the structured container of spec.md §3.2: at least a
// Text field, plus an open set of typed Parts.
type MessageContent struct {
	Text  string        `json:"text"`
	Parts []ContentPart `json:"parts,omitempty"`
}

// GetText concatenates the top-level Text with any textual Parts.
func (c MessageContent) GetText() string {
	var b strings.Builder
	b.WriteString(c.Text)
	for _, p := range c.Parts {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Message is a single node in a ConversationTree (spec.md §3.3). Messages
// are immutable once a conversation is persisted in a given version.
type Message struct {
	ID        string
	Role      MessageRole
	Content   MessageContent
	Timestamp *int64 // unix seconds; nil when absent
	ParentID  *string
	Metadata  map[string]any
}

// IsRoot reports whether m has no parent.
func (m Message) IsRoot() bool { return m.ParentID == nil }
