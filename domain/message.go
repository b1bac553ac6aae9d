// Package domain contains core concepts of the chat relay.
// This file defines persisted entities mirrored from the backing store.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
	MessagePoll MessageType = "poll"
)

// Message is a persisted chat message. Text carries the body for text
// messages; file and poll messages reference their payload instead.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	Type           MessageType
	FileURL        string
	FileName       string
	ReplyToID      string
	PollID         string
	Edited         bool
	DeletedForAll  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReplySnapshot is the denormalized view of a reply target embedded in an
// outgoing message payload, resolved once at send time.
type ReplySnapshot struct {
	ID       string `json:"id"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
	Type     string `json:"type"`
}

// Conversation carries the attributes of a conversation the relay cares
// about. The member set is runtime state owned by the registry, not here.
type Conversation struct {
	ID         string
	IsReadOnly bool
	UpdatedAt  time.Time
}

// Participant grants a user access to a conversation.
type Participant struct {
	ConversationID string
	UserID         string
	LastReadAt     time.Time
}

// Profile is the stored identity attached to a user id.
type Profile struct {
	UserID      string
	DisplayName string
	Role        Role
}
