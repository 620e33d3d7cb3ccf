package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
)

// getOrCreateSummary loads the conversation's summary row or creates it. On
// an existing row the end of the time span is widened to the latest message
// and written back immediately; that write shares the turn's transaction, so
// a later step failure rolls it back together with everything else.
func getOrCreateSummary(ctx context.Context, tx repository.Tx, conv *model.Conversation, now time.Time) (*model.SessionSummary, error) {
	existing, err := tx.GetSessionSummary(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if last := conv.LastMessage(); last != nil {
			existing.EndTime = last.Timestamp
		}
		existing.UpdatedAt = now
		if err := tx.UpdateSessionSummary(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	startTime, endTime := now, now
	if first := conv.FirstMessage(); first != nil {
		startTime = first.Timestamp
		endTime = conv.LastMessage().Timestamp
	}

	summary := &model.SessionSummary{
		ID:             model.NewSummaryID(),
		ConversationID: conv.ID,
		StartTime:      startTime,
		EndTime:        endTime,
		Keywords:       []string{},
		Themes:         []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.PutSessionSummary(ctx, summary); err != nil {
		if model.IsConstraintConflict(err) {
			// Another turn of the same conversation won the insert; adopt its row
			winner, readErr := tx.GetSessionSummary(ctx, conv.ID)
			if readErr != nil {
				return nil, readErr
			}
			if winner == nil {
				return nil, goerr.Wrap(err, "summary conflict but row not found",
					goerr.T(model.ErrTagStore), goerr.V("conversation_id", conv.ID))
			}
			return winner, nil
		}
		return nil, err
	}
	return summary, nil
}

// mergeExtraction folds the extraction's summary fields into the row:
// summary text replaced only by a non-empty value, keywords and themes
// unioned, time span re-synced to the conversation.
func mergeExtraction(summary *model.SessionSummary, extracted *model.ExtractedSummary, conv *model.Conversation, now time.Time) {
	if extracted.SummaryText != "" {
		summary.SummaryText = extracted.SummaryText
	}

	summary.Keywords = unionTerms(summary.Keywords, extracted.Keywords)
	summary.Themes = unionTerms(summary.Themes, extracted.Themes)

	if first := conv.FirstMessage(); first != nil {
		summary.StartTime = first.Timestamp
		summary.EndTime = conv.LastMessage().Timestamp
	}
	summary.UpdatedAt = now
}

// unionTerms appends the new terms not already present, dropping empties and
// preserving insertion order
func unionTerms(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, term := range existing {
		seen[term] = struct{}{}
	}
	merged := existing
	for _, term := range incoming {
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		merged = append(merged, term)
	}
	return merged
}

// MergeExtractionForTest exposes mergeExtraction for testing
func MergeExtractionForTest(summary *model.SessionSummary, extracted *model.ExtractedSummary, conv *model.Conversation, now time.Time) {
	mergeExtraction(summary, extracted, conv, now)
}
