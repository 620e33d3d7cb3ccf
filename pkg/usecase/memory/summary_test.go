package memory_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
)

func TestMergeExtraction(t *testing.T) {
	conv := makeConversation(model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant)
	now := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)

	summary := &model.SessionSummary{
		ID:             model.NewSummaryID(),
		ConversationID: conv.ID,
		SummaryText:    "old summary",
		Keywords:       []string{"work", "stress"},
		Themes:         []string{"work"},
	}

	memory.MergeExtractionForTest(summary, &model.ExtractedSummary{
		SummaryText: "new summary",
		Keywords:    []string{"stress", "deadline", ""},
		Themes:      []string{"health"},
	}, conv, now)

	gt.Equal(t, summary.SummaryText, "new summary")
	gt.Equal(t, summary.Keywords, []string{"work", "stress", "deadline"})
	gt.Equal(t, summary.Themes, []string{"work", "health"})
	gt.Equal(t, summary.StartTime, conv.Messages[0].Timestamp)
	gt.Equal(t, summary.EndTime, conv.Messages[3].Timestamp)
	gt.Equal(t, summary.UpdatedAt, now)
}

func TestMergeExtractionKeepsTextWhenEmpty(t *testing.T) {
	conv := makeConversation(model.RoleUser, model.RoleAssistant)
	summary := &model.SessionSummary{SummaryText: "old summary"}

	memory.MergeExtractionForTest(summary, &model.ExtractedSummary{}, conv, time.Now())

	// An empty extraction must never clear the existing text
	gt.Equal(t, summary.SummaryText, "old summary")
}
