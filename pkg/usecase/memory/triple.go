package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// upsertTriples canonicalizes the extraction's candidate facts into triple
// rows and links each one to the session and the evidence chunk.
//
// A candidate needs a non-empty subject and relation, and its subject must
// resolve through the same extraction's entity batch; otherwise it is
// dropped. An unresolved object is tolerated: the triple keeps a null object
// reference and the informal object stays in the relation text.
func upsertTriples(ctx context.Context, tx repository.Tx, candidates []model.ExtractedTriple,
	entities map[string]*model.Entity, summary *model.SessionSummary, chunk *model.MemoryChunk, now time.Time) error {
	if len(candidates) == 0 {
		return nil
	}

	// Preload existing triples for every subject in the batch with one query
	subjectIDs := make([]model.EntityID, 0, len(candidates))
	subjectSeen := make(map[model.EntityID]struct{}, len(candidates))
	for _, c := range candidates {
		if model.NormalizeTerm(c.Subject) == "" {
			continue
		}
		ent, ok := entities[c.SubjectKey()]
		if !ok {
			continue
		}
		if _, ok := subjectSeen[ent.ID]; ok {
			continue
		}
		subjectSeen[ent.ID] = struct{}{}
		subjectIDs = append(subjectIDs, ent.ID)
	}

	existing, err := tx.ListTriplesBySubjects(ctx, subjectIDs)
	if err != nil {
		return err
	}
	byKey := make(map[string]*model.Triple, len(existing))
	for _, triple := range existing {
		byKey[triple.Key()] = triple
	}

	var newCount, reusedCount, droppedCount int
	for _, c := range candidates {
		if model.NormalizeTerm(c.Subject) == "" || model.NormalizeTerm(c.RelationType) == "" {
			droppedCount++
			continue
		}

		subject, ok := entities[c.SubjectKey()]
		if !ok {
			// The subject was not declared as an entity in this extraction
			droppedCount++
			continue
		}

		var objectID model.EntityID
		if objKey := c.ObjectKey(); objKey != "" {
			if object, ok := entities[objKey]; ok {
				objectID = object.ID
			}
		}

		key := model.TripleKey(subject.ID, c.RelationType, objectID)
		triple, reused := byKey[key]
		if reused {
			applyObservation(triple, &c, now)
			if err := tx.UpdateTriple(ctx, triple); err != nil {
				return err
			}
			reusedCount++
		} else {
			triple = newTriple(subject.ID, objectID, &c, now)
			if err := tx.PutTriple(ctx, triple); err != nil {
				if !model.IsConstraintConflict(err) {
					return err
				}
				// Lost an insert race on the dedup key; retry as an update
				winner, readErr := tx.GetTripleByKey(ctx, subject.ID,
					model.NormalizeTerm(c.RelationType), objectID)
				if readErr != nil {
					return readErr
				}
				if winner == nil {
					return goerr.Wrap(err, "triple conflict but row not found",
						goerr.T(model.ErrTagStore), goerr.V("key", key))
				}
				applyObservation(winner, &c, now)
				if err := tx.UpdateTriple(ctx, winner); err != nil {
					return err
				}
				triple = winner
				reusedCount++
			} else {
				newCount++
			}
			byKey[key] = triple
		}

		if err := tx.EnsureTripleSessionLink(ctx, triple.ID, summary.ID); err != nil {
			return err
		}
		if err := tx.EnsureTripleChunkLink(ctx, triple.ID, chunk.ID); err != nil {
			return err
		}
	}

	logging.From(ctx).Debug("triple upsert complete",
		"new", newCount, "reused", reusedCount, "dropped", droppedCount)

	return nil
}

// newTriple builds a fresh triple row from one observation
func newTriple(subjectID, objectID model.EntityID, c *model.ExtractedTriple, now time.Time) *model.Triple {
	triple := &model.Triple{
		ID:              model.NewTripleID(),
		SubjectEntityID: subjectID,
		ObjectEntityID:  objectID,
		RelationType:    c.RelationType,
		Importance:      c.Importance,
		Confidence:      c.Confidence,
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}
	if c.RelationText != nil {
		triple.RelationText = *c.RelationText
	}
	if c.IsState != nil {
		triple.IsState = *c.IsState
	}
	return triple
}

// applyObservation folds a re-observation into an existing triple:
// importance and confidence only move upward, is_state is overwritten by the
// latest non-null value, last_seen_at is refreshed
func applyObservation(triple *model.Triple, c *model.ExtractedTriple, now time.Time) {
	triple.LastSeenAt = now
	if c.Importance != nil && (triple.Importance == nil || *c.Importance > *triple.Importance) {
		triple.Importance = c.Importance
	}
	if c.Confidence != nil && (triple.Confidence == nil || *c.Confidence > *triple.Confidence) {
		triple.Confidence = c.Confidence
	}
	if c.IsState != nil {
		triple.IsState = *c.IsState
	}
}

// UpsertTriplesForTest exposes upsertTriples for testing
func UpsertTriplesForTest(ctx context.Context, tx repository.Tx, candidates []model.ExtractedTriple,
	entities map[string]*model.Entity, summary *model.SessionSummary, chunk *model.MemoryChunk, now time.Time) error {
	return upsertTriples(ctx, tx, candidates, entities, summary, chunk, now)
}
