package memory

import (
	"context"

	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// Consolidate runs the memory pipeline for a completed chat turn. It is
// strictly best-effort: the chat reply has already been delivered, so every
// failure is logged and absorbed here instead of propagating to the caller.
// All writes of one turn happen in a single transaction; a failing step rolls
// back the whole turn.
func (uc *UseCase) Consolidate(ctx context.Context, conv *model.Conversation) {
	logger := logging.From(ctx).With("conversation_id", conv.ID)

	pair, ok := latestEvidencePair(conv)
	if !ok {
		logger.Info("skipping memory update: no user/assistant pair found")
		return
	}

	if err := uc.consolidate(ctx, conv, pair); err != nil {
		logger.Error("memory update failed, changes rolled back", "error", err)
		return
	}

	logger.Info("memory update complete")
}

// consolidate executes the pipeline steps for one evidence pair inside one
// transaction
func (uc *UseCase) consolidate(ctx context.Context, conv *model.Conversation, pair *evidencePair) error {
	return uc.repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
		now := uc.now()

		summary, err := getOrCreateSummary(ctx, tx, conv, now)
		if err != nil {
			return err
		}

		chunk := buildChunk(conv, summary, pair, now)
		if err := tx.PutChunk(ctx, chunk); err != nil {
			return err
		}

		extractCtx, cancel := context.WithTimeout(ctx, uc.extractionTimeout)
		defer cancel()
		extraction, err := uc.extract(extractCtx, chunk.Text, summary.SummaryText)
		if err != nil {
			return err
		}

		entities, err := upsertEntities(ctx, tx, extraction.Entities, now)
		if err != nil {
			return err
		}

		if err := upsertTriples(ctx, tx, extraction.Triples, entities, summary, chunk, now); err != nil {
			return err
		}

		mergeExtraction(summary, &extraction.SessionSummary, conv, uc.now())
		return tx.UpdateSessionSummary(ctx, summary)
	})
}

// ConsolidateForTest runs the pipeline and surfaces the error Consolidate
// would have absorbed
func (uc *UseCase) ConsolidateForTest(ctx context.Context, conv *model.Conversation) error {
	pair, ok := latestEvidencePair(conv)
	if !ok {
		return nil
	}
	return uc.consolidate(ctx, conv, pair)
}
