// Package services holds the command handlers of the relay: one handler per
// client-initiated action, each validating its preconditions, mutating the
// backing store, and triggering room fan-out.
//
// Preconditions run in a fixed order and short-circuit on first failure:
// payload shape (checked at the boundary, before this package), then the
// participant check, then command-specific authorization and state checks.
// The participant check is re-run on every command and never cached on the
// connection.
package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/runtime/workers"
)

// Caller is the resolved identity of the connection issuing a command.
type Caller struct {
	ConnID      string
	UserID      string
	DisplayName string
	Role        domain.Role
}

type ChatService struct {
	store     contract.Store
	registry  contract.Registry
	envelopes chan<- workers.Envelope
	log       *slog.Logger
	now       func() time.Time
}

func NewChatService(store contract.Store, registry contract.Registry,
	envelopes chan<- workers.Envelope, log *slog.Logger) *ChatService {
	return &ChatService{
		store:     store,
		registry:  registry,
		envelopes: envelopes,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage inserts a text, file, or poll message, touches the
// conversation's activity timestamp, and broadcasts new_message to the
// room. The echoed payload doubles as the sender's acknowledgment.
func (s *ChatService) SendMessage(ctx context.Context, caller Caller,
	cmd domain.SendMessageCommand) (payload event.MessagePayload, err error) {
	defer s.recoverFault(domain.CmdSendMessage, &err)

	if err = s.requireParticipant(ctx, cmd.ConversationID, caller.UserID); err != nil {
		return event.MessagePayload{}, err
	}

	conversation, err := s.store.GetConversation(ctx, cmd.ConversationID)
	if err != nil {
		return event.MessagePayload{}, errors.Store("conversations.get", err)
	}
	if conversation == nil {
		return event.MessagePayload{}, errors.ErrNotFound
	}
	if conversation.IsReadOnly && !caller.Role.AdminTier() {
		return event.MessagePayload{}, errors.ErrUnauthorized
	}

	now := s.now()
	message := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: cmd.ConversationID,
		SenderID:       caller.UserID,
		Type:           cmd.Type,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var pollState *event.PollState
	switch cmd.Type {
	case domain.MessageText:
		text := strings.TrimSpace(cmd.Text)
		if text == "" {
			return event.MessagePayload{}, errors.Validation("text", "text message requires a body")
		}
		message.Text = text
	case domain.MessageFile:
		if cmd.FileURL == "" {
			return event.MessagePayload{}, errors.Validation("fileUrl", "file message requires a file reference")
		}
		message.Text = strings.TrimSpace(cmd.Text)
		message.FileURL = cmd.FileURL
		message.FileName = cmd.FileName
	case domain.MessagePoll:
		pollState, err = s.createPoll(ctx, caller, cmd, &message)
		if err != nil {
			return event.MessagePayload{}, err
		}
	}

	replyTo, err := s.resolveReplyTarget(ctx, cmd)
	if err != nil {
		return event.MessagePayload{}, err
	}
	if replyTo != nil {
		message.ReplyToID = replyTo.ID
	}

	if err = s.store.InsertMessage(ctx, message); err != nil {
		if message.PollID != "" {
			s.log.Warn("Partial poll creation: message insert failed after poll rows",
				"poll_id", message.PollID, "conversation_id", cmd.ConversationID, "error", err)
		}
		return event.MessagePayload{}, errors.Store("messages.insert", err)
	}

	// New sends must advance the conversation's last activity; a failure
	// here is a residual-state risk, not a failed send.
	if touchErr := s.store.TouchConversation(ctx, cmd.ConversationID, now); touchErr != nil {
		s.log.Warn("Conversation activity touch failed",
			"conversation_id", cmd.ConversationID, "error", touchErr)
	}

	payload = s.toMessagePayload(message, caller, replyTo, pollState)
	s.broadcast(cmd.ConversationID, "", event.NewMessage{Message: payload})
	return payload, nil
}

// createPoll validates the poll variant, then performs the non-atomic
// poll + options insert sequence. A failure after the poll row succeeded
// leaves residual state; it is logged loudly rather than rolled back.
func (s *ChatService) createPoll(ctx context.Context, caller Caller,
	cmd domain.SendMessageCommand, message *domain.Message) (*event.PollState, error) {
	if !caller.Role.AdminTier() {
		return nil, errors.ErrUnauthorized
	}
	if cmd.Poll == nil {
		return nil, errors.Validation("poll", "poll message requires a poll payload")
	}

	poll := domain.Poll{
		ID:             uuid.NewString(),
		ConversationID: cmd.ConversationID,
		CreatedBy:      caller.UserID,
		Question:       cmd.Poll.Question,
		AllowMultiple:  *cmd.Poll.AllowMultiple,
	}
	options := lo.Map(cmd.Poll.Options, func(text string, i int) domain.PollOption {
		return domain.PollOption{
			ID:         uuid.NewString(),
			PollID:     poll.ID,
			Text:       text,
			OrderIndex: i,
		}
	})

	if err := s.store.InsertPoll(ctx, poll); err != nil {
		return nil, errors.Store("polls.insert", err)
	}
	if err := s.store.InsertPollOptions(ctx, options); err != nil {
		s.log.Warn("Partial poll creation: options insert failed after poll row",
			"poll_id", poll.ID, "conversation_id", cmd.ConversationID, "error", err)
		return nil, errors.Store("poll_options.insert", err)
	}

	message.PollID = poll.ID
	message.Text = poll.Question

	optionIDs := lo.Map(options, func(o domain.PollOption, _ int) string { return o.ID })
	state := &event.PollState{
		ID:            poll.ID,
		Question:      poll.Question,
		AllowMultiple: poll.AllowMultiple,
		Options: lo.Map(options, func(o domain.PollOption, _ int) event.PollOptionState {
			return event.PollOptionState{ID: o.ID, Text: o.Text, OrderIndex: o.OrderIndex}
		}),
		Tally: domain.ComputeTally(optionIDs, nil, caller.UserID),
	}
	return state, nil
}

func (s *ChatService) resolveReplyTarget(ctx context.Context,
	cmd domain.SendMessageCommand) (*domain.ReplySnapshot, error) {
	if cmd.ReplyToID == "" {
		return nil, nil
	}

	target, err := s.store.GetMessage(ctx, cmd.ReplyToID)
	if err != nil {
		return nil, errors.Store("messages.get", err)
	}
	if target == nil || target.ConversationID != cmd.ConversationID {
		return nil, errors.ErrNotFound
	}

	return &domain.ReplySnapshot{
		ID:       target.ID,
		SenderID: target.SenderID,
		Text:     target.Text,
		Type:     string(target.Type),
	}, nil
}

// VotePoll applies one vote mutation and broadcasts the recomputed tally.
// Re-casting an already-held vote is suppressed by the store's composite
// uniqueness; for single-choice polls the user's votes on every other
// option are cleared first (distinct delete-then-insert, not a
// transaction).
func (s *ChatService) VotePoll(ctx context.Context, caller Caller,
	cmd domain.VotePollCommand) (updated event.PollUpdated, err error) {
	defer s.recoverFault(domain.CmdVotePoll, &err)

	if err = s.requireParticipant(ctx, cmd.ConversationID, caller.UserID); err != nil {
		return event.PollUpdated{}, err
	}

	poll, err := s.store.GetPoll(ctx, cmd.PollID)
	if err != nil {
		return event.PollUpdated{}, errors.Store("polls.get", err)
	}
	if poll == nil || poll.ConversationID != cmd.ConversationID {
		return event.PollUpdated{}, errors.ErrNotFound
	}

	options, err := s.store.GetPollOptions(ctx, poll.ID)
	if err != nil {
		return event.PollUpdated{}, errors.Store("poll_options.list", err)
	}
	optionIDs := lo.Map(options, func(o domain.PollOption, _ int) string { return o.ID })
	if !lo.Contains(optionIDs, cmd.OptionID) {
		return event.PollUpdated{}, errors.ErrNotFound
	}

	if !poll.AllowMultiple {
		if err = s.store.DeleteOtherVotes(ctx, poll.ID, cmd.OptionID, caller.UserID); err != nil {
			return event.PollUpdated{}, errors.Store("poll_votes.clear", err)
		}
	}
	vote := domain.Vote{
		PollID:    poll.ID,
		OptionID:  cmd.OptionID,
		UserID:    caller.UserID,
		CreatedAt: s.now(),
	}
	if err = s.store.UpsertVote(ctx, vote); err != nil {
		return event.PollUpdated{}, errors.Store("poll_votes.upsert", err)
	}

	votes, err := s.store.ListVotes(ctx, poll.ID)
	if err != nil {
		return event.PollUpdated{}, errors.Store("poll_votes.list", err)
	}

	updated = event.PollUpdated{
		ConversationID: cmd.ConversationID,
		PollID:         poll.ID,
		Tally:          domain.ComputeTally(optionIDs, votes, caller.UserID),
	}
	s.broadcast(cmd.ConversationID, "", updated)
	return updated, nil
}

// EditMessage updates a text message in place. Edits never touch the
// conversation's activity timestamp, so they don't reorder conversation
// lists; only the message's own timestamp moves.
func (s *ChatService) EditMessage(ctx context.Context, caller Caller,
	cmd domain.EditMessageCommand) (edited event.MessageEdited, err error) {
	defer s.recoverFault(domain.CmdEditMessage, &err)

	if err = s.requireParticipant(ctx, cmd.ConversationID, caller.UserID); err != nil {
		return event.MessageEdited{}, err
	}

	text := strings.TrimSpace(cmd.Text)
	if text == "" || len(text) > 5000 {
		return event.MessageEdited{}, errors.Validation("text", "edited text must be 1-5000 characters")
	}

	message, err := s.store.GetMessage(ctx, cmd.MessageID)
	if err != nil {
		return event.MessageEdited{}, errors.Store("messages.get", err)
	}
	if message == nil || message.ConversationID != cmd.ConversationID {
		return event.MessageEdited{}, errors.ErrNotFound
	}
	if message.SenderID != caller.UserID {
		return event.MessageEdited{}, errors.ErrUnauthorized
	}
	if message.Type != domain.MessageText {
		return event.MessageEdited{}, errors.Validation("type", "only text messages can be edited")
	}
	if message.DeletedForAll {
		return event.MessageEdited{}, errors.Validation("messageId", "message was deleted")
	}

	now := s.now()
	if err = s.store.UpdateMessageText(ctx, message.ID, text, now); err != nil {
		return event.MessageEdited{}, errors.Store("messages.update", err)
	}

	edited = event.MessageEdited{
		ConversationID: cmd.ConversationID,
		MessageID:      message.ID,
		Text:           text,
		Edited:         true,
		UpdatedAt:      now,
	}
	s.broadcast(cmd.ConversationID, "", edited)
	return edited, nil
}

// DeleteMessage only triggers the room broadcast; the deletion itself is
// performed by the REST surface. Nothing is emitted for delete-for-me.
func (s *ChatService) DeleteMessage(ctx context.Context, caller Caller,
	cmd domain.DeleteMessageCommand) (err error) {
	defer s.recoverFault(domain.CmdDeleteMessage, &err)

	if err = s.requireParticipant(ctx, cmd.ConversationID, caller.UserID); err != nil {
		return err
	}

	if !cmd.DeleteForEveryone {
		return nil
	}

	message, err := s.store.GetMessage(ctx, cmd.MessageID)
	if err != nil {
		return errors.Store("messages.get", err)
	}
	if message == nil || message.ConversationID != cmd.ConversationID {
		return errors.ErrNotFound
	}
	if message.SenderID != caller.UserID && !caller.Role.AdminTier() {
		return errors.ErrUnauthorized
	}

	s.broadcast(cmd.ConversationID, "", event.MessageDeleted{
		ConversationID: cmd.ConversationID,
		MessageID:      message.ID,
		DeletedBy:      caller.UserID,
	})
	return nil
}

// React recomputes and broadcasts the reaction summary for a message. The
// reaction rows themselves are written by the REST surface; this handler
// is fire-and-forget and performs no mutation beyond the aggregation read.
func (s *ChatService) React(ctx context.Context, caller Caller,
	cmd domain.ReactCommand) (err error) {
	defer s.recoverFault(domain.CmdReact, &err)

	if err = s.requireParticipant(ctx, cmd.ConversationID, caller.UserID); err != nil {
		return err
	}

	message, err := s.store.GetMessage(ctx, cmd.MessageID)
	if err != nil {
		return errors.Store("messages.get", err)
	}
	if message == nil || message.ConversationID != cmd.ConversationID {
		return errors.ErrNotFound
	}

	records, err := s.store.ListReactions(ctx, message.ID)
	if err != nil {
		return errors.Store("reactions.list", err)
	}

	s.broadcast(cmd.ConversationID, "", event.ReactionUpdated{
		ConversationID: cmd.ConversationID,
		MessageID:      message.ID,
		Summary:        domain.AggregateReactions(records),
	})
	return nil
}

// MarkRead advances the caller's last-read timestamp. The participant
// check is implicit: the update targets the caller's own participant row
// and touching zero rows means there is none.
func (s *ChatService) MarkRead(ctx context.Context, caller Caller,
	cmd domain.MarkReadCommand) (read event.UserRead, err error) {
	defer s.recoverFault(domain.CmdMarkRead, &err)

	now := s.now()
	updated, err := s.store.UpdateLastRead(ctx, cmd.ConversationID, caller.UserID, now)
	if err != nil {
		return event.UserRead{}, errors.Store("participants.update", err)
	}
	if !updated {
		return event.UserRead{}, errors.ErrUnauthorized
	}

	read = event.UserRead{
		ConversationID: cmd.ConversationID,
		UserID:         caller.UserID,
		LastReadAt:     now,
	}
	s.broadcast(cmd.ConversationID, caller.ConnID, read)
	return read, nil
}

// TypingStart requires participation; TypingStop deliberately does not, so
// a stale stop after leaving a conversation still clears the indicator.
// Both exclude the sender from the fan-out.
func (s *ChatService) TypingStart(ctx context.Context, caller Caller,
	cmd domain.TypingCommand) (err error) {
	defer s.recoverFault(domain.CmdTypingStart, &err)

	if err = s.requireParticipant(ctx, cmd.ConversationID, caller.UserID); err != nil {
		return err
	}

	s.broadcast(cmd.ConversationID, caller.ConnID, event.UserTyping{
		ConversationID: cmd.ConversationID,
		UserID:         caller.UserID,
		DisplayName:    caller.DisplayName,
	})
	return nil
}

func (s *ChatService) TypingStop(_ context.Context, caller Caller,
	cmd domain.TypingCommand) (err error) {
	defer s.recoverFault(domain.CmdTypingStop, &err)

	s.broadcast(cmd.ConversationID, caller.ConnID, event.UserStoppedTyping{
		ConversationID: cmd.ConversationID,
		UserID:         caller.UserID,
	})
	return nil
}

// Join registers the connection in the room. It trusts the caller: no
// participant check, no acknowledgment, no broadcast.
func (s *ChatService) Join(_ context.Context, caller Caller, cmd domain.JoinCommand) {
	s.registry.Join(caller.ConnID, cmd.ConversationID)
}

func (s *ChatService) requireParticipant(ctx context.Context, conversationID, userID string) error {
	ok, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return errors.Store("participants.check", err)
	}
	if !ok {
		return errors.ErrUnauthorized
	}
	return nil
}

func (s *ChatService) toMessagePayload(m domain.Message, caller Caller,
	replyTo *domain.ReplySnapshot, poll *event.PollState) event.MessagePayload {
	return event.MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       caller.UserID,
		SenderName:     caller.DisplayName,
		SenderRole:     caller.Role,
		Type:           m.Type,
		Text:           m.Text,
		FileURL:        m.FileURL,
		FileName:       m.FileName,
		ReplyTo:        replyTo,
		Poll:           poll,
		Edited:         m.Edited,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// broadcast enqueues one envelope for the fan-out worker. The buffer
// absorbs bursts; when it is full the event is dropped and logged, never
// blocking the issuing handler.
func (s *ChatService) broadcast(roomID, excludeConnID string, evt event.DomainEvent) {
	select {
	case s.envelopes <- workers.Envelope{RoomID: roomID, Exclude: excludeConnID, Event: evt}:
	default:
		s.log.Warn("Fan-out buffer full, dropping event",
			"room_id", roomID, "event", evt.Name())
	}
}

// recoverFault keeps an unexpected handler fault local: logged with
// context, surfaced to the caller as a generic failure, never propagated
// to the wire or the process.
func (s *ChatService) recoverFault(command string, err *error) {
	if r := recover(); r != nil {
		s.log.Error("Handler fault recovered", "command", command, "cause", r)
		*err = errors.ErrInternal
	}
}
