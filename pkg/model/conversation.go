package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single utterance within a conversation
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Role           Role
	Content        string
	Timestamp      time.Time
}

// Conversation is an ordered message log. The memory pipeline treats it as
// read-only input; the chat layer owns writes.
type Conversation struct {
	ID        ConversationID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time

	Messages []*Message
}

// LastMessage returns the most recent message, or nil for an empty conversation
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// FirstMessage returns the oldest message, or nil for an empty conversation
func (c *Conversation) FirstMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[0]
}
