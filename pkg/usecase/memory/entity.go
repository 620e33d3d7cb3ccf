package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// upsertEntities canonicalizes the extraction's entity mentions into
// persistent rows and returns them keyed by canonical (name|type).
//
// Existing rows for the whole batch are preloaded with one query, then each
// mention either refreshes its match or inserts a new row. A concurrent
// writer racing the insert loses to the store's unique constraint; that
// conflict is recovered by re-reading the winning row.
func upsertEntities(ctx context.Context, tx repository.Tx, mentions []model.ExtractedEntity, now time.Time) (map[string]*model.Entity, error) {
	cache := make(map[string]*model.Entity)

	names := make([]string, 0, len(mentions))
	nameSeen := make(map[string]struct{}, len(mentions))
	for _, m := range mentions {
		name := model.NormalizeTerm(m.CanonicalName)
		if name == "" {
			continue
		}
		if _, ok := nameSeen[name]; ok {
			continue
		}
		nameSeen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return cache, nil
	}

	existing, err := tx.ListEntitiesByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	for _, ent := range existing {
		cache[ent.Key()] = ent
	}

	var newCount, reusedCount int
	for _, m := range mentions {
		if model.NormalizeTerm(m.CanonicalName) == "" {
			continue
		}

		key := m.Key()
		if ent, ok := cache[key]; ok {
			ent.LastSeenAt = now
			ent.Aliases = unionTerms(ent.Aliases, m.Aliases)
			if err := tx.UpdateEntity(ctx, ent); err != nil {
				return nil, err
			}
			reusedCount++
			continue
		}

		ent := &model.Entity{
			ID:            model.NewEntityID(),
			CanonicalName: m.CanonicalName,
			Aliases:       m.Aliases,
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}
		if m.EntityType != nil {
			ent.EntityType = *m.EntityType
		}
		if ent.Aliases == nil {
			ent.Aliases = []string{}
		}

		if err := tx.PutEntity(ctx, ent); err != nil {
			if !model.IsConstraintConflict(err) {
				return nil, err
			}
			// A concurrent turn inserted the same key first; fall back to its row
			winner, readErr := tx.GetEntityByKey(ctx,
				model.NormalizeTerm(ent.CanonicalName), model.NormalizeTerm(ent.EntityType))
			if readErr != nil {
				return nil, readErr
			}
			if winner == nil {
				return nil, goerr.Wrap(err, "entity conflict but row not found",
					goerr.T(model.ErrTagStore),
					goerr.V("canonical_name", ent.CanonicalName))
			}
			winner.LastSeenAt = now
			winner.Aliases = unionTerms(winner.Aliases, m.Aliases)
			if err := tx.UpdateEntity(ctx, winner); err != nil {
				return nil, err
			}
			cache[key] = winner
			reusedCount++
			continue
		}

		cache[key] = ent
		newCount++
	}

	logging.From(ctx).Debug("entity upsert complete",
		"total", len(cache), "new", newCount, "reused", reusedCount)

	return cache, nil
}

// UpsertEntitiesForTest exposes upsertEntities for testing
func UpsertEntitiesForTest(ctx context.Context, tx repository.Tx, mentions []model.ExtractedEntity, now time.Time) (map[string]*model.Entity, error) {
	return upsertEntities(ctx, tx, mentions, now)
}
