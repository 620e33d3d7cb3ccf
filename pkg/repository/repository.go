package repository

import (
	"context"

	"github.com/m-mizutani/recall/pkg/model"
)

// Repository defines persistence for conversations and the memory graph
type Repository interface {
	// PutConversation saves conversation metadata (insert or update)
	PutConversation(ctx context.Context, conv *model.Conversation) error

	// GetConversation retrieves a conversation with its ordered messages
	GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// ListConversations retrieves conversation metadata, newest first
	ListConversations(ctx context.Context, offset, limit int) ([]*model.Conversation, error)

	// PutMessage appends a message to its conversation
	PutMessage(ctx context.Context, msg *model.Message) error

	// Tx runs fn inside a single transaction. fn's writes are committed when
	// it returns nil and rolled back entirely when it returns an error.
	Tx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetMemory loads the consolidated memory view of a conversation for
	// inspection: its summary and the triples linked to it
	GetMemory(ctx context.Context, id model.ConversationID) (*MemoryView, error)

	// Close releases the underlying store
	Close() error
}

// Tx is the transactional handle the memory pipeline writes through. All
// methods see the transaction's own uncommitted writes.
type Tx interface {
	// GetSessionSummary returns the conversation's summary row, or nil if
	// none exists yet
	GetSessionSummary(ctx context.Context, id model.ConversationID) (*model.SessionSummary, error)

	// PutSessionSummary inserts a new summary row
	PutSessionSummary(ctx context.Context, summary *model.SessionSummary) error

	// UpdateSessionSummary rewrites an existing summary row
	UpdateSessionSummary(ctx context.Context, summary *model.SessionSummary) error

	// PutChunk inserts an evidence chunk
	PutChunk(ctx context.Context, chunk *model.MemoryChunk) error

	// ListEntitiesByNames retrieves all entities whose normalized canonical
	// name is in names (one query for the whole batch)
	ListEntitiesByNames(ctx context.Context, names []string) ([]*model.Entity, error)

	// GetEntityByKey retrieves an entity by its normalized (name, type) pair,
	// or nil if absent
	GetEntityByKey(ctx context.Context, nameNorm, typeNorm string) (*model.Entity, error)

	// PutEntity inserts a new entity. A duplicate normalized (name, type)
	// pair fails with a constraint_conflict tagged error.
	PutEntity(ctx context.Context, entity *model.Entity) error

	// UpdateEntity rewrites an existing entity's mutable fields
	UpdateEntity(ctx context.Context, entity *model.Entity) error

	// ListTriplesBySubjects retrieves all triples whose subject is in
	// subjectIDs (one query for the whole batch)
	ListTriplesBySubjects(ctx context.Context, subjectIDs []model.EntityID) ([]*model.Triple, error)

	// GetTripleByKey retrieves a triple by its dedup key, or nil if absent
	GetTripleByKey(ctx context.Context, subjectID model.EntityID, relationNorm string, objectID model.EntityID) (*model.Triple, error)

	// PutTriple inserts a new triple. A duplicate dedup key fails with a
	// constraint_conflict tagged error.
	PutTriple(ctx context.Context, triple *model.Triple) error

	// UpdateTriple rewrites an existing triple's mutable fields
	UpdateTriple(ctx context.Context, triple *model.Triple) error

	// EnsureTripleSessionLink inserts the link if absent; inserting an
	// existing pair is a no-op
	EnsureTripleSessionLink(ctx context.Context, tripleID model.TripleID, summaryID model.SummaryID) error

	// EnsureTripleChunkLink inserts the link if absent; inserting an existing
	// pair is a no-op
	EnsureTripleChunkLink(ctx context.Context, tripleID model.TripleID, chunkID model.ChunkID) error
}

// MemoryView is the read-side projection of one conversation's memory
type MemoryView struct {
	Summary *model.SessionSummary
	Chunks  []*model.MemoryChunk
	Triples []*TripleView
}

// TripleView is a triple joined with its entity names for display
type TripleView struct {
	Triple      *model.Triple
	SubjectName string
	ObjectName  string
}
