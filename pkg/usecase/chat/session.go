package chat

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
	"google.golang.org/genai"
)

const systemPrompt = "You are a helpful, attentive assistant with long-term memory of the user. " +
	"Answer naturally and remember personal details the user shares."

// Session manages one conversation: it persists the message log, generates
// replies, and hands every finished turn to the memory pipeline.
type Session struct {
	repo   repository.Repository
	gemini adapter.Gemini
	memory *memory.UseCase

	conv *model.Conversation
}

// NewInput contains parameters for creating a chat session
type NewInput struct {
	Repo           repository.Repository
	Gemini         adapter.Gemini
	Memory         *memory.UseCase
	ConversationID model.ConversationID // empty to start a new conversation
}

// New opens an existing conversation or starts a fresh one
func New(ctx context.Context, input NewInput) (*Session, error) {
	s := &Session{
		repo:   input.Repo,
		gemini: input.Gemini,
		memory: input.Memory,
	}

	if input.ConversationID != "" {
		conv, err := input.Repo.GetConversation(ctx, input.ConversationID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get conversation")
		}
		if conv == nil {
			return nil, goerr.New("conversation not found",
				goerr.V("conversation_id", input.ConversationID))
		}
		s.conv = conv
		return s, nil
	}

	now := time.Now()
	s.conv = &model.Conversation{
		ID:        model.NewConversationID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := input.Repo.PutConversation(ctx, s.conv); err != nil {
		return nil, goerr.Wrap(err, "failed to create conversation")
	}
	return s, nil
}

// Conversation returns the session's conversation
func (s *Session) Conversation() *model.Conversation {
	return s.conv
}

// Send processes one chat turn: persist the user message, generate the
// assistant reply, persist it, then consolidate memory. The reply is returned
// regardless of the memory pipeline's outcome.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	userMsg := &model.Message{
		ID:             model.NewMessageID(),
		ConversationID: s.conv.ID,
		Role:           model.RoleUser,
		Content:        text,
		Timestamp:      time.Now(),
	}
	if err := s.repo.PutMessage(ctx, userMsg); err != nil {
		return "", goerr.Wrap(err, "failed to save user message")
	}
	s.conv.Messages = append(s.conv.Messages, userMsg)

	reply, err := s.generateReply(ctx)
	if err != nil {
		return "", err
	}

	assistantMsg := &model.Message{
		ID:             model.NewMessageID(),
		ConversationID: s.conv.ID,
		Role:           model.RoleAssistant,
		Content:        reply,
		Timestamp:      time.Now(),
	}
	if err := s.repo.PutMessage(ctx, assistantMsg); err != nil {
		return "", goerr.Wrap(err, "failed to save assistant message")
	}
	s.conv.Messages = append(s.conv.Messages, assistantMsg)

	s.conv.UpdatedAt = assistantMsg.Timestamp
	if err := s.repo.PutConversation(ctx, s.conv); err != nil {
		return "", goerr.Wrap(err, "failed to update conversation")
	}

	// Best-effort: the reply is already final, memory failures stay internal
	s.memory.Consolidate(ctx, s.conv)

	return reply, nil
}

// generateReply produces the assistant response from the full message history
func (s *Session) generateReply(ctx context.Context) (string, error) {
	contents := make([]*genai.Content, 0, len(s.conv.Messages))
	for _, msg := range s.conv.Messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		} else if msg.Role == model.RoleSystem {
			continue
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
	}

	resp, err := s.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate reply")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("reply generation returned no candidates",
			goerr.T(model.ErrTagProvider))
	}

	var reply string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			reply += part.Text
		}
	}
	return reply, nil
}
