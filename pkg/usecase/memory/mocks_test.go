package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"google.golang.org/genai"
)

// mockGemini is a mock implementation of adapter.Gemini for testing
type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return nil, errors.New("not implemented")
}

func (m *mockGemini) CreateChat(ctx context.Context, config *genai.GenerateContentConfig, history []*genai.Content) (*genai.Chat, error) {
	return nil, errors.New("not implemented")
}

// textResponse wraps raw model output as a genai response
func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: []*genai.Part{{Text: text}},
				},
			},
		},
	}
}

// fixedResponses returns each response in order, repeating the last one
func fixedResponses(responses ...string) *mockGemini {
	calls := 0
	return &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			idx := calls
			if idx >= len(responses) {
				idx = len(responses) - 1
			}
			calls++
			return textResponse(responses[idx]), nil
		},
	}
}

// newTestRepo creates an ephemeral SQLite repository
func newTestRepo(t *testing.T) repository.Repository {
	t.Helper()
	repo, err := repository.NewSQLite(":memory:")
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// seedConversation persists the conversation and its messages so foreign keys
// resolve during the pipeline run
func seedConversation(t *testing.T, repo repository.Repository, conv *model.Conversation) {
	t.Helper()
	ctx := context.Background()
	gt.NoError(t, repo.PutConversation(ctx, conv))
	for _, msg := range conv.Messages {
		gt.NoError(t, repo.PutMessage(ctx, msg))
	}
}
