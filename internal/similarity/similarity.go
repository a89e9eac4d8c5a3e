// Package similarity implements content fingerprinting, conversation
// similarity, and duplicate grouping, generalized from
// original_source/ctk/core/db_operations.py's compute_hash/compute_similarity
// and sharing its SHA256-over-sorted-messages idiom with
// dimajix-llm-monitor/internal/storage/postgres.go's computeHash chaining.
// The same fingerprint also backs the drift detection of spec.md §4.5.4.
package similarity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/queelius/ctk/internal/model"
)

// Fingerprint computes a content hash over t's messages in id-sorted
// order, hashing role and the canonical serialization of content
// (spec.md §4.5.4).
func Fingerprint(t *model.ConversationTree) string {
	msgs := append([]*model.Message(nil), t.Messages()...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

	h := sha256.New()
	for _, m := range msgs {
		h.Write([]byte(m.Role))
		h.Write([]byte(m.Content.GetText()))
		for _, p := range m.Content.Parts {
			h.Write([]byte(p.Type))
			h.Write([]byte(p.Text))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// extractText concatenates all message text in the tree, used as the
// corpus for Jaccard similarity.
func extractText(t *model.ConversationTree) string {
	var b strings.Builder
	for _, m := range t.Messages() {
		text := m.Content.GetText()
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(text)
	}
	return b.String()
}

// Jaccard computes Jaccard similarity (0-1) between two conversations'
// tokenized lowercase text.
func Jaccard(a, b *model.ConversationTree) float64 {
	wordsA := tokenize(extractText(a))
	wordsB := tokenize(extractText(b))

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA)
	for w := range wordsB {
		if !wordsA[w] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenize(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
