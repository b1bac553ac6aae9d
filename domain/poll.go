package domain

import "time"

// Poll question bounds enforced at the command boundary.
const (
	PollQuestionMaxLen = 200
	PollOptionMaxLen   = 120
	PollMinOptions     = 2
	PollMaxOptions     = 12
)

// Poll is owned by its creating message and scoped to one conversation.
type Poll struct {
	ID             string
	ConversationID string
	CreatedBy      string
	Question       string
	AllowMultiple  bool
}

type PollOption struct {
	ID         string
	PollID     string
	Text       string
	OrderIndex int
}

// Vote has composite identity (poll, option, user); the store enforces
// uniqueness of the triple.
type Vote struct {
	PollID    string
	OptionID  string
	UserID    string
	CreatedAt time.Time
}
