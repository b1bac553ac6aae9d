// Package event defines the outbound events fanned out to room members.
// Every event marshals as the data field of a wire frame, keyed by Name.
package event

import (
	"time"

	"chat-relay/domain"
)

type DomainEvent interface {
	Name() string
}

// PollOptionState is the client-facing view of one poll option.
type PollOptionState struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	OrderIndex int    `json:"orderIndex"`
}

// PollState embeds a poll and its current tally inside a message payload.
type PollState struct {
	ID            string            `json:"id"`
	Question      string            `json:"question"`
	AllowMultiple bool              `json:"allowMultiple"`
	Options       []PollOptionState `json:"options"`
	Tally         domain.Tally      `json:"tally"`
}

// MessagePayload is the echoed message shape shared by the new_message
// broadcast and the sender's acknowledgment. Sender name and role are
// attached from the resolved connection identity.
type MessagePayload struct {
	ID             string                `json:"id"`
	ConversationID string                `json:"conversationId"`
	SenderID       string                `json:"senderId"`
	SenderName     string                `json:"senderName"`
	SenderRole     domain.Role           `json:"senderRole"`
	Type           domain.MessageType    `json:"type"`
	Text           string                `json:"text,omitempty"`
	FileURL        string                `json:"fileUrl,omitempty"`
	FileName       string                `json:"fileName,omitempty"`
	ReplyTo        *domain.ReplySnapshot `json:"replyTo,omitempty"`
	Poll           *PollState            `json:"poll,omitempty"`
	Edited         bool                  `json:"edited"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

type NewMessage struct {
	Message MessagePayload `json:"message"`
}

func (NewMessage) Name() string { return "new_message" }

type PollUpdated struct {
	ConversationID string       `json:"conversationId"`
	PollID         string       `json:"pollId"`
	Tally          domain.Tally `json:"tally"`
}

func (PollUpdated) Name() string { return "poll_updated" }

type MessageEdited struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	Text           string    `json:"text"`
	Edited         bool      `json:"edited"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (MessageEdited) Name() string { return "message_edited" }

type MessageDeleted struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	DeletedBy      string `json:"deletedBy"`
}

func (MessageDeleted) Name() string { return "message_deleted" }

type ReactionUpdated struct {
	ConversationID string                 `json:"conversationId"`
	MessageID      string                 `json:"messageId"`
	Summary        domain.ReactionSummary `json:"summary"`
}

func (ReactionUpdated) Name() string { return "reaction_updated" }

type UserRead struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	LastReadAt     time.Time `json:"lastReadAt"`
}

func (UserRead) Name() string { return "user_read" }

type UserTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
}

func (UserTyping) Name() string { return "user_typing" }

type UserStoppedTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (UserStoppedTyping) Name() string { return "user_stopped_typing" }

// Error is pushed to a single connection when a command failed outside the
// acknowledgment path.
type Error struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) Name() string { return "error" }
