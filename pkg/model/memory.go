package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SummaryID string

// NewSummaryID generates a new unique SummaryID
func NewSummaryID() SummaryID {
	return SummaryID(uuid.New().String())
}

type ChunkID string

// NewChunkID generates a new unique ChunkID
func NewChunkID() ChunkID {
	return ChunkID(uuid.New().String())
}

type EntityID string

// NewEntityID generates a new unique EntityID
func NewEntityID() EntityID {
	return EntityID(uuid.New().String())
}

type TripleID string

// NewTripleID generates a new unique TripleID
func NewTripleID() TripleID {
	return TripleID(uuid.New().String())
}

// SessionSummary is the rolling per-conversation memory digest. There is at
// most one per conversation (unique constraint on ConversationID).
type SessionSummary struct {
	ID             SummaryID
	ConversationID ConversationID

	StartTime time.Time
	EndTime   time.Time

	SummaryText string
	Keywords    []string
	Themes      []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemoryChunk is an immutable evidence record: the latest user/assistant
// message pair that was handed to extraction.
type MemoryChunk struct {
	ID             ChunkID
	ConversationID ConversationID
	SummaryID      SummaryID

	Text      string
	TopicHint string
	Timestamp time.Time

	CreatedAt time.Time
}

// Entity is a canonical node in the memory graph. Uniqueness is on the
// normalized (canonical_name, entity_type) pair.
type Entity struct {
	ID            EntityID
	CanonicalName string
	EntityType    string
	Aliases       []string

	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Key returns the canonical dedup key for this entity
func (e *Entity) Key() string {
	return EntityKey(e.CanonicalName, e.EntityType)
}

// EntityKey builds the canonical entity dedup key: lowercase-trimmed name and
// type joined by "|". A missing type normalizes to the empty string.
func EntityKey(name, entityType string) string {
	return NormalizeTerm(name) + "|" + NormalizeTerm(entityType)
}

// NormalizeTerm lowercases and trims a surface form for key comparison
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Triple is a directed fact edge between entities. The object side is
// optional: a fact may have no structured object, in which case RelationText
// carries the informal reference.
type Triple struct {
	ID              TripleID
	SubjectEntityID EntityID
	ObjectEntityID  EntityID // empty when the object is unresolved

	RelationType string
	RelationText string

	Importance *float64 // 0..1, never decreases once set
	IsState    bool     // ongoing state vs. point event
	Confidence *float64 // 0..1, never decreases once set

	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Key returns the canonical dedup key for this triple
func (t *Triple) Key() string {
	return TripleKey(t.SubjectEntityID, t.RelationType, t.ObjectEntityID)
}

// TripleKey builds the triple dedup key:
// subject_id | normalized relation | object_id_or_empty
func TripleKey(subjectID EntityID, relationType string, objectID EntityID) string {
	return string(subjectID) + "|" + NormalizeTerm(relationType) + "|" + string(objectID)
}

// TripleSessionLink records that a triple was observed within a session
type TripleSessionLink struct {
	TripleID  TripleID
	SummaryID SummaryID
}

// TripleChunkLink records the evidence chunk a triple was extracted from
type TripleChunkLink struct {
	TripleID TripleID
	ChunkID  ChunkID
}
