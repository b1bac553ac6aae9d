//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

// Worker doesn't protect itself. The supervisor owns panic recovery and
// restarts; a worker just runs until its context is done.
type Worker interface {
	Run(ctx context.Context) error
}

type Supervisor interface {
	Add(worker ...Worker) Supervisor
	Run(ctx context.Context)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging and supervision purposes.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one delivery target, usually a live connection.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Registry tracks which connections belong to which conversation rooms.
// Implementations must tolerate a broadcast snapshot racing a concurrent
// join; a late joiner may miss the in-flight event.
type Registry interface {
	Register(connID string, sink EventSink)
	Join(connID, roomID string)
	Leave(connID string)
	SinksForRoom(roomID, excludeConnID string) []EventSink
}

// AuthVerifier exchanges a bearer token for the account it belongs to.
type AuthVerifier interface {
	VerifyToken(ctx context.Context, token string) (userID, email string, err error)
}

// ProfileStore fetches the stored role and display name for a user.
// A nil profile with nil error means no profile row exists.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// Store is the narrow interface over the relational collaborator. All
// methods are point queries or single-row writes; the relay never opens a
// multi-statement transaction.
type Store interface {
	// Participants
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ConversationsOf(ctx context.Context, userID string) ([]string, error)
	UpdateLastRead(ctx context.Context, conversationID, userID string, at time.Time) (bool, error)

	// Conversations
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error

	// Messages
	InsertMessage(ctx context.Context, msg domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	UpdateMessageText(ctx context.Context, id, text string, at time.Time) error

	// Polls and votes
	InsertPoll(ctx context.Context, p domain.Poll) error
	InsertPollOptions(ctx context.Context, options []domain.PollOption) error
	GetPoll(ctx context.Context, id string) (*domain.Poll, error)
	GetPollOptions(ctx context.Context, pollID string) ([]domain.PollOption, error)
	ListVotes(ctx context.Context, pollID string) ([]domain.Vote, error)
	UpsertVote(ctx context.Context, v domain.Vote) error
	DeleteOtherVotes(ctx context.Context, pollID, keepOptionID, userID string) error

	// Reactions (written by the REST surface, only read here)
	ListReactions(ctx context.Context, messageID string) ([]domain.Reaction, error)
}
