package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);

CREATE TABLE IF NOT EXISTS session_summaries (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL UNIQUE REFERENCES conversations(id) ON DELETE CASCADE,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	summary_text TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '[]',
	themes TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_chunks (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	session_summary_id TEXT NOT NULL REFERENCES session_summaries(id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	topic_hint TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_conversation ON memory_chunks(conversation_id);

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	name_norm TEXT NOT NULL,
	type_norm TEXT NOT NULL DEFAULT '',
	aliases TEXT NOT NULL DEFAULT '[]',
	first_seen_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL,
	UNIQUE(name_norm, type_norm)
);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name_norm);

CREATE TABLE IF NOT EXISTS triples (
	id TEXT PRIMARY KEY,
	subject_entity_id TEXT NOT NULL REFERENCES entities(id),
	object_entity_id TEXT NOT NULL DEFAULT '',
	relation_type TEXT NOT NULL,
	relation_norm TEXT NOT NULL,
	relation_text TEXT NOT NULL DEFAULT '',
	importance REAL,
	is_state INTEGER NOT NULL DEFAULT 0,
	confidence REAL,
	first_seen_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL,
	UNIQUE(subject_entity_id, relation_norm, object_entity_id)
);
CREATE INDEX IF NOT EXISTS idx_triples_subject ON triples(subject_entity_id);

CREATE TABLE IF NOT EXISTS triple_session_links (
	triple_id TEXT NOT NULL REFERENCES triples(id) ON DELETE CASCADE,
	session_summary_id TEXT NOT NULL REFERENCES session_summaries(id) ON DELETE CASCADE,
	UNIQUE(triple_id, session_summary_id)
);

CREATE TABLE IF NOT EXISTS triple_chunk_links (
	triple_id TEXT NOT NULL REFERENCES triples(id) ON DELETE CASCADE,
	chunk_id TEXT NOT NULL REFERENCES memory_chunks(id) ON DELETE CASCADE,
	UNIQUE(triple_id, chunk_id)
);
`

// sqliteRepo implements Repository on SQLite via database/sql
type sqliteRepo struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite database at path and bootstraps the
// schema. Use ":memory:" for an ephemeral store.
func NewSQLite(path string) (Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database",
			goerr.T(model.ErrTagStore), goerr.V("path", path))
	}

	// A single connection keeps transactions and in-memory databases sane
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to configure sqlite", goerr.T(model.ErrTagStore))
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to initialize schema", goerr.T(model.ErrTagStore))
	}

	return &sqliteRepo{db: db}, nil
}

func (r *sqliteRepo) Close() error {
	return r.db.Close()
}

// Tx runs fn within one transaction, committing on nil and rolling back on
// error or panic
func (r *sqliteRepo) Tx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	rawTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction", goerr.T(model.ErrTagStore))
	}

	committed := false
	defer func() {
		if !committed {
			_ = rawTx.Rollback()
		}
	}()

	if err := fn(ctx, &sqliteTx{tx: rawTx}); err != nil {
		return err
	}

	if err := rawTx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit transaction", goerr.T(model.ErrTagStore))
	}
	committed = true
	return nil
}

func (r *sqliteRepo) PutConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		conv.ID, conv.Title, formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put conversation",
			goerr.T(model.ErrTagStore), goerr.V("conversation_id", conv.ID))
	}
	return nil
}

func (r *sqliteRepo) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	conv := &model.Conversation{ID: id}
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT title, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation",
			goerr.T(model.ErrTagStore), goerr.V("conversation_id", id))
	}
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, role, content, timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp, id`, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages",
			goerr.T(model.ErrTagStore), goerr.V("conversation_id", id))
	}
	defer rows.Close()

	for rows.Next() {
		msg := &model.Message{ConversationID: id}
		var ts string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, goerr.Wrap(err, "failed to scan message", goerr.T(model.ErrTagStore))
		}
		msg.Timestamp = parseTime(ts)
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate messages", goerr.T(model.ErrTagStore))
	}

	return conv, nil
}

func (r *sqliteRepo) ListConversations(ctx context.Context, offset, limit int) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list conversations", goerr.T(model.ErrTagStore))
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		conv := &model.Conversation{}
		var createdAt, updatedAt string
		if err := rows.Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan conversation", goerr.T(model.ErrTagStore))
		}
		conv.CreatedAt = parseTime(createdAt)
		conv.UpdatedAt = parseTime(updatedAt)
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate conversations", goerr.T(model.ErrTagStore))
	}
	return convs, nil
}

func (r *sqliteRepo) PutMessage(ctx context.Context, msg *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, formatTime(msg.Timestamp))
	if err != nil {
		return goerr.Wrap(err, "failed to put message",
			goerr.T(model.ErrTagStore), goerr.V("message_id", msg.ID))
	}
	return nil
}

func (r *sqliteRepo) GetMemory(ctx context.Context, id model.ConversationID) (*MemoryView, error) {
	view := &MemoryView{}

	var summary model.SessionSummary
	var startTime, endTime, createdAt, updatedAt, keywords, themes string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, start_time, end_time, summary_text, keywords, themes, created_at, updated_at
		FROM session_summaries WHERE conversation_id = ?`, id).
		Scan(&summary.ID, &startTime, &endTime, &summary.SummaryText,
			&keywords, &themes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return view, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session summary",
			goerr.T(model.ErrTagStore), goerr.V("conversation_id", id))
	}
	summary.ConversationID = id
	summary.StartTime = parseTime(startTime)
	summary.EndTime = parseTime(endTime)
	summary.CreatedAt = parseTime(createdAt)
	summary.UpdatedAt = parseTime(updatedAt)
	summary.Keywords = decodeStrings(keywords)
	summary.Themes = decodeStrings(themes)
	view.Summary = &summary

	chunkRows, err := r.db.QueryContext(ctx, `
		SELECT id, session_summary_id, text, topic_hint, timestamp, created_at
		FROM memory_chunks WHERE conversation_id = ? ORDER BY timestamp`, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list chunks", goerr.T(model.ErrTagStore))
	}
	defer chunkRows.Close()
	for chunkRows.Next() {
		chunk := &model.MemoryChunk{ConversationID: id}
		var ts, created string
		if err := chunkRows.Scan(&chunk.ID, &chunk.SummaryID, &chunk.Text, &chunk.TopicHint, &ts, &created); err != nil {
			return nil, goerr.Wrap(err, "failed to scan chunk", goerr.T(model.ErrTagStore))
		}
		chunk.Timestamp = parseTime(ts)
		chunk.CreatedAt = parseTime(created)
		view.Chunks = append(view.Chunks, chunk)
	}
	if err := chunkRows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate chunks", goerr.T(model.ErrTagStore))
	}

	tripleRows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.subject_entity_id, t.object_entity_id, t.relation_type, t.relation_text,
		       t.importance, t.is_state, t.confidence, t.first_seen_at, t.last_seen_at,
		       s.canonical_name, COALESCE(o.canonical_name, '')
		FROM triples t
		JOIN triple_session_links l ON l.triple_id = t.id
		JOIN entities s ON s.id = t.subject_entity_id
		LEFT JOIN entities o ON o.id = t.object_entity_id
		WHERE l.session_summary_id = ?
		ORDER BY t.first_seen_at`, summary.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list triples", goerr.T(model.ErrTagStore))
	}
	defer tripleRows.Close()
	for tripleRows.Next() {
		tv := &TripleView{Triple: &model.Triple{}}
		var importance, confidence sql.NullFloat64
		var isState int
		var firstSeen, lastSeen string
		if err := tripleRows.Scan(&tv.Triple.ID, &tv.Triple.SubjectEntityID, &tv.Triple.ObjectEntityID,
			&tv.Triple.RelationType, &tv.Triple.RelationText,
			&importance, &isState, &confidence, &firstSeen, &lastSeen,
			&tv.SubjectName, &tv.ObjectName); err != nil {
			return nil, goerr.Wrap(err, "failed to scan triple", goerr.T(model.ErrTagStore))
		}
		tv.Triple.Importance = nullFloat(importance)
		tv.Triple.Confidence = nullFloat(confidence)
		tv.Triple.IsState = isState != 0
		tv.Triple.FirstSeenAt = parseTime(firstSeen)
		tv.Triple.LastSeenAt = parseTime(lastSeen)
		view.Triples = append(view.Triples, tv)
	}
	if err := tripleRows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate triples", goerr.T(model.ErrTagStore))
	}

	return view, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	data, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	var ss []string
	if err := json.Unmarshal([]byte(raw), &ss); err != nil {
		return nil
	}
	return ss
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// isUniqueViolation detects SQLite unique-constraint failures
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
