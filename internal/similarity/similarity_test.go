package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queelius/ctk/internal/model"
)

func treeWithText(id string, texts ...string) *model.ConversationTree {
	t := model.NewConversationTree(id)
	var parent *string
	for i, txt := range texts {
		msgID := string(rune('a' + i))
		t.AddMessage(model.Message{ID: msgID, Role: model.RoleUser, Content: model.MessageContent{Text: txt}, ParentID: parent})
		p := msgID
		parent = &p
	}
	return t
}

func TestFingerprintStableUnderReordering(t *testing.T) {
	a := treeWithText("a", "hello", "world")

	// Same messages as a, inserted child-first.
	b := model.NewConversationTree("a")
	parent := "a"
	b.AddMessage(model.Message{ID: "b", Role: model.RoleUser, Content: model.MessageContent{Text: "world"}, ParentID: &parent})
	b.AddMessage(model.Message{ID: "a", Role: model.RoleUser, Content: model.MessageContent{Text: "hello"}})

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := treeWithText("a", "hello")
	b := treeWithText("a", "goodbye")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestJaccardIdenticalIsOne(t *testing.T) {
	a := treeWithText("a", "the quick brown fox")
	b := treeWithText("b", "the quick brown fox")
	assert.InDelta(t, 1.0, Jaccard(a, b), 0.0001)
}

func TestJaccardDisjointIsZero(t *testing.T) {
	a := treeWithText("a", "alpha beta")
	b := treeWithText("b", "gamma delta")
	assert.Equal(t, 0.0, Jaccard(a, b))
}

func TestJaccardEmptyIsZero(t *testing.T) {
	a := model.NewConversationTree("a")
	b := model.NewConversationTree("b")
	assert.Equal(t, 0.0, Jaccard(a, b))
}
