package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
)

// sqliteTx implements Tx over one *sql.Tx
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetSessionSummary(ctx context.Context, id model.ConversationID) (*model.SessionSummary, error) {
	summary := &model.SessionSummary{ConversationID: id}
	var startTime, endTime, createdAt, updatedAt, keywords, themes string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, start_time, end_time, summary_text, keywords, themes, created_at, updated_at
		FROM session_summaries WHERE conversation_id = ?`, id).
		Scan(&summary.ID, &startTime, &endTime, &summary.SummaryText,
			&keywords, &themes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session summary",
			goerr.T(model.ErrTagStore), goerr.V("conversation_id", id))
	}
	summary.StartTime = parseTime(startTime)
	summary.EndTime = parseTime(endTime)
	summary.CreatedAt = parseTime(createdAt)
	summary.UpdatedAt = parseTime(updatedAt)
	summary.Keywords = decodeStrings(keywords)
	summary.Themes = decodeStrings(themes)
	return summary, nil
}

func (t *sqliteTx) PutSessionSummary(ctx context.Context, summary *model.SessionSummary) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO session_summaries (id, conversation_id, start_time, end_time, summary_text, keywords, themes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.ConversationID,
		formatTime(summary.StartTime), formatTime(summary.EndTime),
		summary.SummaryText, encodeStrings(summary.Keywords), encodeStrings(summary.Themes),
		formatTime(summary.CreatedAt), formatTime(summary.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return goerr.Wrap(err, "session summary already exists",
				goerr.T(model.ErrTagConstraintConflict),
				goerr.V("conversation_id", summary.ConversationID))
		}
		return goerr.Wrap(err, "failed to put session summary",
			goerr.T(model.ErrTagStore), goerr.V("summary_id", summary.ID))
	}
	return nil
}

func (t *sqliteTx) UpdateSessionSummary(ctx context.Context, summary *model.SessionSummary) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE session_summaries
		SET start_time = ?, end_time = ?, summary_text = ?, keywords = ?, themes = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(summary.StartTime), formatTime(summary.EndTime),
		summary.SummaryText, encodeStrings(summary.Keywords), encodeStrings(summary.Themes),
		formatTime(summary.UpdatedAt), summary.ID)
	if err != nil {
		return goerr.Wrap(err, "failed to update session summary",
			goerr.T(model.ErrTagStore), goerr.V("summary_id", summary.ID))
	}
	return nil
}

func (t *sqliteTx) PutChunk(ctx context.Context, chunk *model.MemoryChunk) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO memory_chunks (id, conversation_id, session_summary_id, text, topic_hint, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.ConversationID, chunk.SummaryID,
		chunk.Text, chunk.TopicHint, formatTime(chunk.Timestamp), formatTime(chunk.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put chunk",
			goerr.T(model.ErrTagStore), goerr.V("chunk_id", chunk.ID))
	}
	return nil
}

func (t *sqliteTx) ListEntitiesByNames(ctx context.Context, names []string) ([]*model.Entity, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(names)-1) + "?"
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = model.NormalizeTerm(name)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, canonical_name, entity_type, aliases, first_seen_at, last_seen_at
		FROM entities WHERE name_norm IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list entities", goerr.T(model.ErrTagStore))
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate entities", goerr.T(model.ErrTagStore))
	}
	return entities, nil
}

func (t *sqliteTx) GetEntityByKey(ctx context.Context, nameNorm, typeNorm string) (*model.Entity, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, canonical_name, entity_type, aliases, first_seen_at, last_seen_at
		FROM entities WHERE name_norm = ? AND type_norm = ?`, nameNorm, typeNorm)

	ent, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ent, nil
}

func (t *sqliteTx) PutEntity(ctx context.Context, entity *model.Entity) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO entities (id, canonical_name, entity_type, name_norm, type_norm, aliases, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entity.ID, entity.CanonicalName, entity.EntityType,
		model.NormalizeTerm(entity.CanonicalName), model.NormalizeTerm(entity.EntityType),
		encodeStrings(entity.Aliases),
		formatTime(entity.FirstSeenAt), formatTime(entity.LastSeenAt))
	if err != nil {
		if isUniqueViolation(err) {
			return goerr.Wrap(err, "entity already exists",
				goerr.T(model.ErrTagConstraintConflict),
				goerr.V("canonical_name", entity.CanonicalName),
				goerr.V("entity_type", entity.EntityType))
		}
		return goerr.Wrap(err, "failed to put entity",
			goerr.T(model.ErrTagStore), goerr.V("entity_id", entity.ID))
	}
	return nil
}

func (t *sqliteTx) UpdateEntity(ctx context.Context, entity *model.Entity) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE entities SET aliases = ?, last_seen_at = ? WHERE id = ?`,
		encodeStrings(entity.Aliases), formatTime(entity.LastSeenAt), entity.ID)
	if err != nil {
		return goerr.Wrap(err, "failed to update entity",
			goerr.T(model.ErrTagStore), goerr.V("entity_id", entity.ID))
	}
	return nil
}

func (t *sqliteTx) ListTriplesBySubjects(ctx context.Context, subjectIDs []model.EntityID) ([]*model.Triple, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(subjectIDs)-1) + "?"
	args := make([]any, len(subjectIDs))
	for i, id := range subjectIDs {
		args[i] = id
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, subject_entity_id, object_entity_id, relation_type, relation_text,
		       importance, is_state, confidence, first_seen_at, last_seen_at
		FROM triples WHERE subject_entity_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list triples", goerr.T(model.ErrTagStore))
	}
	defer rows.Close()

	var triples []*model.Triple
	for rows.Next() {
		triple, err := scanTriple(rows)
		if err != nil {
			return nil, err
		}
		triples = append(triples, triple)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate triples", goerr.T(model.ErrTagStore))
	}
	return triples, nil
}

func (t *sqliteTx) GetTripleByKey(ctx context.Context, subjectID model.EntityID, relationNorm string, objectID model.EntityID) (*model.Triple, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, subject_entity_id, object_entity_id, relation_type, relation_text,
		       importance, is_state, confidence, first_seen_at, last_seen_at
		FROM triples WHERE subject_entity_id = ? AND relation_norm = ? AND object_entity_id = ?`,
		subjectID, relationNorm, objectID)

	triple, err := scanTriple(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return triple, nil
}

func (t *sqliteTx) PutTriple(ctx context.Context, triple *model.Triple) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO triples (id, subject_entity_id, object_entity_id, relation_type, relation_norm,
			relation_text, importance, is_state, confidence, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		triple.ID, triple.SubjectEntityID, triple.ObjectEntityID,
		triple.RelationType, model.NormalizeTerm(triple.RelationType),
		triple.RelationText, floatArg(triple.Importance), boolArg(triple.IsState), floatArg(triple.Confidence),
		formatTime(triple.FirstSeenAt), formatTime(triple.LastSeenAt))
	if err != nil {
		if isUniqueViolation(err) {
			return goerr.Wrap(err, "triple already exists",
				goerr.T(model.ErrTagConstraintConflict),
				goerr.V("subject_entity_id", triple.SubjectEntityID),
				goerr.V("relation_type", triple.RelationType))
		}
		return goerr.Wrap(err, "failed to put triple",
			goerr.T(model.ErrTagStore), goerr.V("triple_id", triple.ID))
	}
	return nil
}

func (t *sqliteTx) UpdateTriple(ctx context.Context, triple *model.Triple) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE triples SET relation_text = ?, importance = ?, is_state = ?, confidence = ?, last_seen_at = ?
		WHERE id = ?`,
		triple.RelationText, floatArg(triple.Importance), boolArg(triple.IsState), floatArg(triple.Confidence),
		formatTime(triple.LastSeenAt), triple.ID)
	if err != nil {
		return goerr.Wrap(err, "failed to update triple",
			goerr.T(model.ErrTagStore), goerr.V("triple_id", triple.ID))
	}
	return nil
}

func (t *sqliteTx) EnsureTripleSessionLink(ctx context.Context, tripleID model.TripleID, summaryID model.SummaryID) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO triple_session_links (triple_id, session_summary_id) VALUES (?, ?)`,
		tripleID, summaryID)
	if err != nil {
		return goerr.Wrap(err, "failed to link triple to session",
			goerr.T(model.ErrTagStore),
			goerr.V("triple_id", tripleID), goerr.V("summary_id", summaryID))
	}
	return nil
}

func (t *sqliteTx) EnsureTripleChunkLink(ctx context.Context, tripleID model.TripleID, chunkID model.ChunkID) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO triple_chunk_links (triple_id, chunk_id) VALUES (?, ?)`,
		tripleID, chunkID)
	if err != nil {
		return goerr.Wrap(err, "failed to link triple to chunk",
			goerr.T(model.ErrTagStore),
			goerr.V("triple_id", tripleID), goerr.V("chunk_id", chunkID))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	ent := &model.Entity{}
	var aliases, firstSeen, lastSeen string
	if err := row.Scan(&ent.ID, &ent.CanonicalName, &ent.EntityType, &aliases, &firstSeen, &lastSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan entity", goerr.T(model.ErrTagStore))
	}
	ent.Aliases = decodeStrings(aliases)
	ent.FirstSeenAt = parseTime(firstSeen)
	ent.LastSeenAt = parseTime(lastSeen)
	return ent, nil
}

func scanTriple(row rowScanner) (*model.Triple, error) {
	triple := &model.Triple{}
	var importance, confidence sql.NullFloat64
	var isState int
	var firstSeen, lastSeen string
	if err := row.Scan(&triple.ID, &triple.SubjectEntityID, &triple.ObjectEntityID,
		&triple.RelationType, &triple.RelationText,
		&importance, &isState, &confidence, &firstSeen, &lastSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan triple", goerr.T(model.ErrTagStore))
	}
	triple.Importance = nullFloat(importance)
	triple.Confidence = nullFloat(confidence)
	triple.IsState = isState != 0
	triple.FirstSeenAt = parseTime(firstSeen)
	triple.LastSeenAt = parseTime(lastSeen)
	return triple, nil
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolArg(v bool) int {
	if v {
		return 1
	}
	return 0
}
