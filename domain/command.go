package domain

import (
	"encoding/json"
	"errors"
	"strings"

	errs "chat-relay/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Inbound command names, matching the wire event field one to one.
const (
	CmdSendMessage    = "send_message"
	CmdVotePoll       = "vote_poll"
	CmdEditMessage    = "edit_message"
	CmdDeleteMessage  = "delete_message"
	CmdReact          = "react_to_message"
	CmdRemoveReaction = "remove_reaction"
	CmdMarkRead       = "mark_read"
	CmdTypingStart    = "typing_start"
	CmdTypingStop     = "typing_stop"
	CmdJoin           = "join_conversation"
)

// Command is the tagged-variant type decoded at the transport boundary.
// Every variant names the conversation it targets.
type Command interface {
	Conversation() string
}

type PollPayload struct {
	Question      string   `json:"question" validate:"required,max=200"`
	Options       []string `json:"options" validate:"required,min=2,max=12,dive,required,max=120"`
	AllowMultiple *bool    `json:"allowMultiple" validate:"required"`
}

type SendMessageCommand struct {
	ConversationID string       `json:"conversationId" validate:"required"`
	Type           MessageType  `json:"type" validate:"required,oneof=text file poll"`
	Text           string       `json:"text" validate:"max=5000"`
	FileURL        string       `json:"fileUrl"`
	FileName       string       `json:"fileName"`
	ReplyToID      string       `json:"replyToId"`
	Poll           *PollPayload `json:"poll"`
}

func (c SendMessageCommand) Conversation() string { return c.ConversationID }

type VotePollCommand struct {
	ConversationID string `json:"conversationId" validate:"required"`
	PollID         string `json:"pollId" validate:"required"`
	OptionID       string `json:"optionId" validate:"required"`
}

func (c VotePollCommand) Conversation() string { return c.ConversationID }

type EditMessageCommand struct {
	ConversationID string `json:"conversationId" validate:"required"`
	MessageID      string `json:"messageId" validate:"required"`
	Text           string `json:"text" validate:"required,max=5000"`
}

func (c EditMessageCommand) Conversation() string { return c.ConversationID }

type DeleteMessageCommand struct {
	ConversationID    string `json:"conversationId" validate:"required"`
	MessageID         string `json:"messageId" validate:"required"`
	DeleteForEveryone bool   `json:"deleteForEveryone"`
}

func (c DeleteMessageCommand) Conversation() string { return c.ConversationID }

type ReactCommand struct {
	ConversationID string `json:"conversationId" validate:"required"`
	MessageID      string `json:"messageId" validate:"required"`
	Emoji          string `json:"emoji" validate:"required"`
}

func (c ReactCommand) Conversation() string { return c.ConversationID }

type MarkReadCommand struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

func (c MarkReadCommand) Conversation() string { return c.ConversationID }

type TypingCommand struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

func (c TypingCommand) Conversation() string { return c.ConversationID }

type JoinCommand struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

func (c JoinCommand) Conversation() string { return c.ConversationID }

// DecodeCommand parses and validates a raw payload for the given event name.
// Anything that fails here is rejected before handler logic runs, so no
// store call ever sees a malformed command.
func DecodeCommand(event string, data json.RawMessage) (Command, error) {
	switch event {
	case CmdSendMessage:
		return unmarshalCommand[SendMessageCommand](data)
	case CmdVotePoll:
		return unmarshalCommand[VotePollCommand](data)
	case CmdEditMessage:
		return unmarshalCommand[EditMessageCommand](data)
	case CmdDeleteMessage:
		return unmarshalCommand[DeleteMessageCommand](data)
	case CmdReact, CmdRemoveReaction:
		return unmarshalCommand[ReactCommand](data)
	case CmdMarkRead:
		return unmarshalCommand[MarkReadCommand](data)
	case CmdTypingStart, CmdTypingStop:
		return unmarshalCommand[TypingCommand](data)
	case CmdJoin:
		return unmarshalCommand[JoinCommand](data)
	}
	return nil, errs.Validation("event", "unknown event "+event)
}

func unmarshalCommand[T Command](data json.RawMessage) (Command, error) {
	var cmd T
	if len(data) == 0 {
		return nil, errs.Validation("payload", "missing payload")
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, errs.Validation("payload", "malformed payload")
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, toValidationError(err)
	}
	return cmd, nil
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return errs.Validation(strings.ToLower(first.Field()), "failed "+first.Tag()+" constraint")
	}
	return errs.Validation("payload", "invalid payload")
}
