package memory_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
)

func makeConversation(roles ...model.Role) *model.Conversation {
	conv := &model.Conversation{ID: model.NewConversationID()}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, role := range roles {
		conv.Messages = append(conv.Messages, &model.Message{
			ID:             model.NewMessageID(),
			ConversationID: conv.ID,
			Role:           role,
			Content:        string(role) + "-msg",
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		})
	}
	return conv
}

func TestLatestEvidencePair(t *testing.T) {
	conv := makeConversation(model.RoleSystem, model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant)
	conv.Messages[1].Content = "hi"
	conv.Messages[2].Content = "hello"
	conv.Messages[3].Content = "bye"
	conv.Messages[4].Content = "goodbye"

	user, assistant, ok := memory.LatestEvidencePairForTest(conv)
	gt.True(t, ok)
	gt.Equal(t, user.Content, "bye")
	gt.Equal(t, assistant.Content, "goodbye")
	gt.Equal(t, memory.ChunkTextForTest(user, assistant), "user: bye\nassistant: goodbye")
}

func TestLatestEvidencePairSkipsNonAdjacent(t *testing.T) {
	// The nearest user before the last assistant wins even across other roles
	conv := makeConversation(model.RoleUser, model.RoleSystem, model.RoleAssistant)
	user, assistant, ok := memory.LatestEvidencePairForTest(conv)
	gt.True(t, ok)
	gt.Equal(t, user.Role, model.RoleUser)
	gt.Equal(t, assistant.Role, model.RoleAssistant)
}

func TestLatestEvidencePairSkipConditions(t *testing.T) {
	testCases := []struct {
		name  string
		roles []model.Role
	}{
		{"empty conversation", nil},
		{"single message", []model.Role{model.RoleUser}},
		{"no assistant reply yet", []model.Role{model.RoleSystem, model.RoleUser}},
		{"no user before assistant", []model.Role{model.RoleAssistant, model.RoleUser}},
		{"assistants only", []model.Role{model.RoleAssistant, model.RoleAssistant}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, ok := memory.LatestEvidencePairForTest(makeConversation(tc.roles...))
			gt.False(t, ok)
		})
	}
}
