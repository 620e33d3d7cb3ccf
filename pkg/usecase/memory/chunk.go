package memory

import (
	"time"

	"github.com/m-mizutani/recall/pkg/model"
)

// evidencePair is the latest user/assistant message pair of a conversation
type evidencePair struct {
	user      *model.Message
	assistant *model.Message
}

// latestEvidencePair finds the most recent assistant message and the nearest
// user message before it. The two need not be adjacent. Returns false when no
// pair can be formed, which is a recognized skip condition, not an error.
func latestEvidencePair(conv *model.Conversation) (*evidencePair, bool) {
	messages := conv.Messages
	if len(messages) < 2 {
		return nil, false
	}

	assistantIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleAssistant {
			assistantIdx = i
			break
		}
	}
	if assistantIdx < 0 {
		return nil, false
	}

	userIdx := -1
	for i := assistantIdx - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			userIdx = i
			break
		}
	}
	if userIdx < 0 {
		return nil, false
	}

	return &evidencePair{
		user:      messages[userIdx],
		assistant: messages[assistantIdx],
	}, true
}

// text renders the pair as the literal two-line evidence form handed to
// extraction
func (p *evidencePair) text() string {
	return "user: " + p.user.Content + "\nassistant: " + p.assistant.Content
}

// buildChunk materializes the pair as an immutable evidence record,
// timestamped at the assistant reply (falling back to now when absent)
func buildChunk(conv *model.Conversation, summary *model.SessionSummary, pair *evidencePair, now time.Time) *model.MemoryChunk {
	timestamp := pair.assistant.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	return &model.MemoryChunk{
		ID:             model.NewChunkID(),
		ConversationID: conv.ID,
		SummaryID:      summary.ID,
		Text:           pair.text(),
		Timestamp:      timestamp,
		CreatedAt:      now,
	}
}

// LatestEvidencePairForTest exposes latestEvidencePair for testing
func LatestEvidencePairForTest(conv *model.Conversation) (user, assistant *model.Message, ok bool) {
	pair, ok := latestEvidencePair(conv)
	if !ok {
		return nil, nil, false
	}
	return pair.user, pair.assistant, true
}

// ChunkTextForTest exposes the evidence text rendering for testing
func ChunkTextForTest(user, assistant *model.Message) string {
	return (&evidencePair{user: user, assistant: assistant}).text()
}
