package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
)

func newRepo(t *testing.T) repository.Repository {
	t.Helper()
	repo, err := repository.NewSQLite(":memory:")
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func putConversation(t *testing.T, repo repository.Repository, updatedAt time.Time) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{
		ID:        model.NewConversationID(),
		Title:     "test conversation",
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	gt.NoError(t, repo.PutConversation(context.Background(), conv))
	return conv
}

func TestConversationRoundtrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	conv := putConversation(t, repo, now)

	for i, role := range []model.Role{model.RoleUser, model.RoleAssistant} {
		gt.NoError(t, repo.PutMessage(ctx, &model.Message{
			ID:             model.NewMessageID(),
			ConversationID: conv.ID,
			Role:           role,
			Content:        string(role),
			Timestamp:      now.Add(time.Duration(i) * time.Second),
		}))
	}

	loaded, err := repo.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.NotNil(t, loaded)
	gt.Equal(t, loaded.Title, "test conversation")
	gt.A(t, loaded.Messages).Length(2)
	gt.Equal(t, loaded.Messages[0].Role, model.RoleUser)
	gt.Equal(t, loaded.Messages[1].Role, model.RoleAssistant)
	gt.Equal(t, loaded.Messages[0].Timestamp, now)
}

func TestGetConversationMissing(t *testing.T) {
	repo := newRepo(t)
	loaded, err := repo.GetConversation(context.Background(), "no-such-id")
	gt.NoError(t, err)
	gt.Nil(t, loaded)
}

func TestListConversationsOrder(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	older := putConversation(t, repo, base)
	newer := putConversation(t, repo, base.Add(time.Hour))

	convs, err := repo.ListConversations(ctx, 0, 10)
	gt.NoError(t, err)
	gt.A(t, convs).Length(2)
	gt.Equal(t, convs[0].ID, newer.ID)
	gt.Equal(t, convs[1].ID, older.ID)
}

func TestTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	conv := putConversation(t, repo, time.Now())

	now := time.Now()
	err := repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
		gt.NoError(t, tx.PutSessionSummary(ctx, &model.SessionSummary{
			ID:             model.NewSummaryID(),
			ConversationID: conv.ID,
			StartTime:      now,
			EndTime:        now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}))
		return goerr.New("boom")
	})
	gt.Error(t, err)

	view, err := repo.GetMemory(ctx, conv.ID)
	gt.NoError(t, err)
	gt.Nil(t, view.Summary)
}

func TestEntityUniqueConflict(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now()

	gt.NoError(t, repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
		first := &model.Entity{
			ID:            model.NewEntityID(),
			CanonicalName: "Oliver",
			EntityType:    "Person",
			Aliases:       []string{"Ollie"},
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}
		gt.NoError(t, tx.PutEntity(ctx, first))

		// Same normalized key, different surface casing
		dup := &model.Entity{
			ID:            model.NewEntityID(),
			CanonicalName: "oliver",
			EntityType:    "person",
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}
		err := tx.PutEntity(ctx, dup)
		gt.Error(t, err)
		gt.True(t, model.IsConstraintConflict(err))

		// The conflict is recoverable by re-reading the winning row
		winner, err := tx.GetEntityByKey(ctx, "oliver", "person")
		gt.NoError(t, err)
		gt.NotNil(t, winner)
		gt.Equal(t, winner.ID, first.ID)
		return nil
	}))
}

func TestTripleUniqueConflict(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now()

	gt.NoError(t, repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
		subject := &model.Entity{
			ID:            model.NewEntityID(),
			CanonicalName: "Oliver",
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}
		gt.NoError(t, tx.PutEntity(ctx, subject))

		first := &model.Triple{
			ID:              model.NewTripleID(),
			SubjectEntityID: subject.ID,
			RelationType:    "Works_On",
			FirstSeenAt:     now,
			LastSeenAt:      now,
		}
		gt.NoError(t, tx.PutTriple(ctx, first))

		dup := &model.Triple{
			ID:              model.NewTripleID(),
			SubjectEntityID: subject.ID,
			RelationType:    "works_on",
			FirstSeenAt:     now,
			LastSeenAt:      now,
		}
		err := tx.PutTriple(ctx, dup)
		gt.Error(t, err)
		gt.True(t, model.IsConstraintConflict(err))

		winner, err := tx.GetTripleByKey(ctx, subject.ID, "works_on", "")
		gt.NoError(t, err)
		gt.NotNil(t, winner)
		gt.Equal(t, winner.ID, first.ID)
		return nil
	}))
}

func TestEnsureLinksIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now()
	conv := putConversation(t, repo, now)

	gt.NoError(t, repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
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

		subject := &model.Entity{
			ID:            model.NewEntityID(),
			CanonicalName: "Oliver",
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}
		gt.NoError(t, tx.PutEntity(ctx, subject))

		triple := &model.Triple{
			ID:              model.NewTripleID(),
			SubjectEntityID: subject.ID,
			RelationType:    "feels",
			FirstSeenAt:     now,
			LastSeenAt:      now,
		}
		gt.NoError(t, tx.PutTriple(ctx, triple))

		// Linking twice must leave exactly one row per pair
		gt.NoError(t, tx.EnsureTripleSessionLink(ctx, triple.ID, summary.ID))
		gt.NoError(t, tx.EnsureTripleSessionLink(ctx, triple.ID, summary.ID))
		gt.NoError(t, tx.EnsureTripleChunkLink(ctx, triple.ID, chunk.ID))
		gt.NoError(t, tx.EnsureTripleChunkLink(ctx, triple.ID, chunk.ID))
		return nil
	}))

	// GetMemory joins the session links; a duplicate link would duplicate rows
	view, err := repo.GetMemory(ctx, conv.ID)
	gt.NoError(t, err)
	gt.A(t, view.Triples).Length(1)
}

func TestSessionSummaryUniquePerConversation(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now()
	conv := putConversation(t, repo, now)

	gt.NoError(t, repo.Tx(ctx, func(ctx context.Context, tx repository.Tx) error {
		summary := &model.SessionSummary{
			ID:             model.NewSummaryID(),
			ConversationID: conv.ID,
			StartTime:      now,
			EndTime:        now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		gt.NoError(t, tx.PutSessionSummary(ctx, summary))

		dup := &model.SessionSummary{
			ID:             model.NewSummaryID(),
			ConversationID: conv.ID,
			StartTime:      now,
			EndTime:        now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err := tx.PutSessionSummary(ctx, dup)
		gt.Error(t, err)
		gt.True(t, model.IsConstraintConflict(err))
		return nil
	}))
}
