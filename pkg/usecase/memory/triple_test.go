package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
)

func boolPtr(b bool) *bool       { return &b }
func floatPtr(f float64) *float64 { return &f }

// seedMemoryScaffold creates the summary/chunk rows a triple batch links to
func seedMemoryScaffold(t *testing.T, ctx context.Context, tx repository.Tx, conv *model.Conversation, now time.Time) (*model.SessionSummary, *model.MemoryChunk) {
	t.Helper()
	summary := &model.SessionSummary{
		ID:             model.NewSummaryID(),
		ConversationID: conv.ID,
		StartTime:      now,
		EndTime:        now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	gt.NoError(t, tx.PutSessionSummary(ctx, summary))

	chunk := &model.MemoryChunk{
		ID:             model.NewChunkID(),
		ConversationID: conv.ID,
		SummaryID:      summary.ID,
		Text:           "user: hi\nassistant: hello",
		Timestamp:      now,
		CreatedAt:      now,
	}
	gt.NoError(t, tx.PutChunk(ctx, chunk))
	return summary, chunk
}

func TestUpsertTriplesRequiresRelation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	conv := makeConversation(model.RoleUser, model.RoleAssistant)
	seedConversation(t, repo, conv)
	now := time.Now()

	gt.NoError(t, repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
		summary, chunk := seedMemoryScaffold(t, ctx, tx, conv, now)

		entities, err := memory.UpsertEntitiesForTest(ctx, tx, []model.ExtractedEntity{
			{CanonicalName: "Oliver", EntityType: strPtr("person")},
		}, now)
		gt.NoError(t, err)

		err = memory.UpsertTriplesForTest(ctx, tx, []model.ExtractedTriple{
			{Subject: "Oliver", SubjectType: strPtr("person"), RelationType: ""},
			{Subject: "Oliver", SubjectType: strPtr("person"), RelationType: "  "},
		}, entities, summary, chunk, now)
		gt.NoError(t, err)

		triples, err := tx.ListTriplesBySubjects(ctx, []model.EntityID{entities["oliver|person"].ID})
		gt.NoError(t, err)
		gt.A(t, triples).Length(0)
		return nil
	}))
}

func TestUpsertTriplesStateOverwrite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	conv := makeConversation(model.RoleUser, model.RoleAssistant)
	seedConversation(t, repo, conv)
	now := time.Now()

	gt.NoError(t, repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
		summary, chunk := seedMemoryScaffold(t, ctx, tx, conv, now)

		entities, err := memory.UpsertEntitiesForTest(ctx, tx, []model.ExtractedEntity{
			{CanonicalName: "Oliver", EntityType: strPtr("person")},
		}, now)
		gt.NoError(t, err)
		subjectID := entities["oliver|person"].ID

		observe := func(isState *bool, importance *float64) {
			gt.NoError(t, memory.UpsertTriplesForTest(ctx, tx, []model.ExtractedTriple{
				{
					Subject:      "Oliver",
					SubjectType:  strPtr("person"),
					RelationType: "feels",
					IsState:      isState,
					Importance:   importance,
				},
			}, entities, summary, chunk, now))
		}

		observe(boolPtr(true), floatPtr(0.4))
		observe(nil, floatPtr(0.2)) // null is_state keeps previous; importance must not drop

		triple, err := tx.GetTripleByKey(ctx, subjectID, "feels", "")
		gt.NoError(t, err)
		gt.NotNil(t, triple)
		gt.Equal(t, triple.IsState, true)
		gt.Equal(t, *triple.Importance, 0.4)

		observe(boolPtr(false), floatPtr(0.6)) // latest non-null observation wins

		triple, err = tx.GetTripleByKey(ctx, subjectID, "feels", "")
		gt.NoError(t, err)
		gt.Equal(t, triple.IsState, false)
		gt.Equal(t, *triple.Importance, 0.6)

		// Still a single row for the key
		triples, err := tx.ListTriplesBySubjects(ctx, []model.EntityID{subjectID})
		gt.NoError(t, err)
		gt.A(t, triples).Length(1)
		return nil
	}))
}

func TestUpsertTriplesResolvesObject(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	conv := makeConversation(model.RoleUser, model.RoleAssistant)
	seedConversation(t, repo, conv)
	now := time.Now()

	gt.NoError(t, repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
		summary, chunk := seedMemoryScaffold(t, ctx, tx, conv, now)

		entities, err := memory.UpsertEntitiesForTest(ctx, tx, []model.ExtractedEntity{
			{CanonicalName: "Oliver", EntityType: strPtr("person")},
			{CanonicalName: "Hazal", EntityType: strPtr("person")},
		}, now)
		gt.NoError(t, err)

		gt.NoError(t, memory.UpsertTriplesForTest(ctx, tx, []model.ExtractedTriple{
			{
				Subject:      "Oliver",
				SubjectType:  strPtr("person"),
				Object:       strPtr("Hazal"),
				ObjectType:   strPtr("person"),
				RelationType: "married_to",
			},
		}, entities, summary, chunk, now))

		subjectID := entities["oliver|person"].ID
		triple, err := tx.GetTripleByKey(ctx, subjectID, "married_to", entities["hazal|person"].ID)
		gt.NoError(t, err)
		gt.NotNil(t, triple)
		gt.Equal(t, triple.ObjectEntityID, entities["hazal|person"].ID)
		return nil
	}))
}
