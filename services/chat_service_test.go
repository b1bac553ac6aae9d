package services

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/runtime/workers"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*ChatService, *mocks.MockStore, *mocks.MockRegistry, chan workers.Envelope) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	storeMock := mocks.NewMockStore(ctrl)
	registryMock := mocks.NewMockRegistry(ctrl)
	envelopes := make(chan workers.Envelope, 8)

	svc := NewChatService(storeMock, registryMock, envelopes, slog.Default())
	svc.now = func() time.Time { return fixedNow }

	return svc, storeMock, registryMock, envelopes
}

func member() Caller {
	return Caller{ConnID: "conn-1", UserID: "user-1", DisplayName: "Alice", Role: domain.RoleMember}
}

func admin() Caller {
	return Caller{ConnID: "conn-9", UserID: "admin-1", DisplayName: "Root", Role: domain.RoleAdmin}
}

func takeEnvelope(req *require.Assertions, envelopes chan workers.Envelope) workers.Envelope {
	select {
	case env := <-envelopes:
		return env
	default:
		req.Fail("Expected a broadcast envelope")
		return workers.Envelope{}
	}
}

func requireNoBroadcast(req *require.Assertions, envelopes chan workers.Envelope) {
	select {
	case env := <-envelopes:
		req.Failf("Unexpected broadcast", "got %s for room %s", env.Event.Name(), env.RoomID)
	default:
	}
}

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("should insert, touch activity and broadcast a text message", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").
			Return(&domain.Conversation{ID: "c1"}, nil).Times(1)

		var inserted domain.Message
		storeMock.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msg domain.Message) error {
				inserted = msg
				return nil
			}).Times(1)
		storeMock.EXPECT().TouchConversation(gomock.Any(), "c1", fixedNow).Return(nil).Times(1)

		payload, err := svc.SendMessage(ctx, caller, domain.SendMessageCommand{
			ConversationID: "c1",
			Type:           domain.MessageText,
			Text:           "  hello  ",
		})

		req.NoError(err)
		req.Equal("hello", inserted.Text)
		req.Equal(caller.UserID, inserted.SenderID)
		req.NotEmpty(inserted.ID)

		req.Equal(inserted.ID, payload.ID)
		req.Equal("Alice", payload.SenderName)
		req.Equal(domain.RoleMember, payload.SenderRole)

		env := takeEnvelope(req, envelopes)
		req.Equal("c1", env.RoomID)
		req.Empty(env.Exclude)
		req.Equal("new_message", env.Event.Name())
	})

	t.Run("should reject a non-participant without touching the store further", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(false, nil).Times(1)

		_, err := svc.SendMessage(ctx, caller, domain.SendMessageCommand{
			ConversationID: "c1",
			Type:           domain.MessageText,
			Text:           "hello",
		})

		req.ErrorIs(err, errors.ErrUnauthorized)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("should reject an unknown conversation", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").Return(nil, nil).Times(1)

		_, err := svc.SendMessage(ctx, caller, domain.SendMessageCommand{
			ConversationID: "c1",
			Type:           domain.MessageText,
			Text:           "hello",
		})

		req.ErrorIs(err, errors.ErrNotFound)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("should keep a read-only conversation closed to members but open to admins", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		readOnly := &domain.Conversation{ID: "c1", IsReadOnly: true}

		memberCaller := member()
		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", memberCaller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").Return(readOnly, nil).Times(1)

		_, err := svc.SendMessage(ctx, memberCaller, domain.SendMessageCommand{
			ConversationID: "c1", Type: domain.MessageText, Text: "hello",
		})
		req.ErrorIs(err, errors.ErrUnauthorized)
		requireNoBroadcast(req, envelopes)

		adminCaller := admin()
		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", adminCaller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").Return(readOnly, nil).Times(1)
		storeMock.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		storeMock.EXPECT().TouchConversation(gomock.Any(), "c1", fixedNow).Return(nil).Times(1)

		_, err = svc.SendMessage(ctx, adminCaller, domain.SendMessageCommand{
			ConversationID: "c1", Type: domain.MessageText, Text: "announcement",
		})
		req.NoError(err)
		takeEnvelope(req, envelopes)
	})

	t.Run("should reject a blank text body", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").
			Return(&domain.Conversation{ID: "c1"}, nil).Times(1)

		_, err := svc.SendMessage(ctx, caller, domain.SendMessageCommand{
			ConversationID: "c1", Type: domain.MessageText, Text: "   ",
		})

		var validationErr errors.ValidationError
		req.ErrorAs(err, &validationErr)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("should still succeed when the activity touch fails", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").
			Return(&domain.Conversation{ID: "c1"}, nil).Times(1)
		storeMock.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		storeMock.EXPECT().TouchConversation(gomock.Any(), "c1", fixedNow).
			Return(fmt.Errorf("deadlock")).Times(1)

		_, err := svc.SendMessage(ctx, caller, domain.SendMessageCommand{
			ConversationID: "c1", Type: domain.MessageText, Text: "hello",
		})

		req.NoError(err)
		takeEnvelope(req, envelopes)
	})

	t.Run("should reject a reply target from another conversation", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").
			Return(&domain.Conversation{ID: "c1"}, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m-elsewhere").
			Return(&domain.Message{ID: "m-elsewhere", ConversationID: "c2"}, nil).Times(1)

		_, err := svc.SendMessage(ctx, caller, domain.SendMessageCommand{
			ConversationID: "c1", Type: domain.MessageText, Text: "hello", ReplyToID: "m-elsewhere",
		})

		req.ErrorIs(err, errors.ErrNotFound)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("should require a file reference on file messages", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, _ := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").
			Return(&domain.Conversation{ID: "c1"}, nil).Times(1)

		_, err := svc.SendMessage(ctx, caller, domain.SendMessageCommand{
			ConversationID: "c1", Type: domain.MessageFile,
		})

		var validationErr errors.ValidationError
		req.ErrorAs(err, &validationErr)
	})
}

func TestChatService_SendMessage_Poll(t *testing.T) {
	ctx := context.Background()
	allowMultiple := false
	pollCmd := func() domain.SendMessageCommand {
		return domain.SendMessageCommand{
			ConversationID: "c1",
			Type:           domain.MessagePoll,
			Poll: &domain.PollPayload{
				Question:      "lunch?",
				Options:       []string{"pizza", "sushi"},
				AllowMultiple: &allowMultiple,
			},
		}
	}

	t.Run("should reject poll creation below the admin tier", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").
			Return(&domain.Conversation{ID: "c1"}, nil).Times(1)

		_, err := svc.SendMessage(ctx, caller, pollCmd())

		req.ErrorIs(err, errors.ErrUnauthorized)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("should create poll rows, carrier message and a zero tally", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := admin()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").
			Return(&domain.Conversation{ID: "c1"}, nil).Times(1)

		var insertedPoll domain.Poll
		storeMock.EXPECT().InsertPoll(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, p domain.Poll) error {
				insertedPoll = p
				return nil
			}).Times(1)

		var insertedOptions []domain.PollOption
		storeMock.EXPECT().InsertPollOptions(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, options []domain.PollOption) error {
				insertedOptions = options
				return nil
			}).Times(1)

		var inserted domain.Message
		storeMock.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msg domain.Message) error {
				inserted = msg
				return nil
			}).Times(1)
		storeMock.EXPECT().TouchConversation(gomock.Any(), "c1", fixedNow).Return(nil).Times(1)

		payload, err := svc.SendMessage(ctx, caller, pollCmd())

		req.NoError(err)
		req.Equal("lunch?", insertedPoll.Question)
		req.False(insertedPoll.AllowMultiple)
		req.Len(insertedOptions, 2)
		req.Equal(0, insertedOptions[0].OrderIndex)
		req.Equal(1, insertedOptions[1].OrderIndex)
		req.Equal(insertedPoll.ID, inserted.PollID)

		req.NotNil(payload.Poll)
		req.Len(payload.Poll.Tally.Totals, 2)
		for _, total := range payload.Poll.Tally.Totals {
			req.Zero(total.Count)
		}

		takeEnvelope(req, envelopes)
	})

	t.Run("should surface a store failure when option rows fail after the poll row", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := admin()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetConversation(gomock.Any(), "c1").
			Return(&domain.Conversation{ID: "c1"}, nil).Times(1)
		storeMock.EXPECT().InsertPoll(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		storeMock.EXPECT().InsertPollOptions(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("connection reset")).Times(1)

		_, err := svc.SendMessage(ctx, caller, pollCmd())

		var storeErr errors.StoreError
		req.ErrorAs(err, &storeErr)
		requireNoBroadcast(req, envelopes)
	})
}

func TestChatService_VotePoll(t *testing.T) {
	ctx := context.Background()
	poll := func(allowMultiple bool) *domain.Poll {
		return &domain.Poll{ID: "p1", ConversationID: "c1", AllowMultiple: allowMultiple}
	}
	options := []domain.PollOption{
		{ID: "opt-a", PollID: "p1", Text: "pizza", OrderIndex: 0},
		{ID: "opt-b", PollID: "p1", Text: "sushi", OrderIndex: 1},
	}

	t.Run("should clear other options first on a single-choice poll", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetPoll(gomock.Any(), "p1").Return(poll(false), nil).Times(1)
		storeMock.EXPECT().GetPollOptions(gomock.Any(), "p1").Return(options, nil).Times(1)

		clearCall := storeMock.EXPECT().
			DeleteOtherVotes(gomock.Any(), "p1", "opt-b", caller.UserID).
			Return(nil).Times(1)
		storeMock.EXPECT().
			UpsertVote(gomock.Any(), domain.Vote{
				PollID: "p1", OptionID: "opt-b", UserID: caller.UserID, CreatedAt: fixedNow,
			}).
			Return(nil).Times(1).
			After(clearCall)

		storeMock.EXPECT().ListVotes(gomock.Any(), "p1").
			Return([]domain.Vote{
				{PollID: "p1", OptionID: "opt-b", UserID: caller.UserID, CreatedAt: fixedNow},
			}, nil).Times(1)

		updated, err := svc.VotePoll(ctx, caller, domain.VotePollCommand{
			ConversationID: "c1", PollID: "p1", OptionID: "opt-b",
		})

		req.NoError(err)
		req.Equal([]string{"opt-b"}, updated.Tally.MyVotes)
		req.Equal(1, updated.Tally.Totals[1].Count)

		env := takeEnvelope(req, envelopes)
		req.Equal("poll_updated", env.Event.Name())
		req.Empty(env.Exclude)
	})

	t.Run("should not clear anything on a multi-choice poll", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetPoll(gomock.Any(), "p1").Return(poll(true), nil).Times(1)
		storeMock.EXPECT().GetPollOptions(gomock.Any(), "p1").Return(options, nil).Times(1)
		storeMock.EXPECT().DeleteOtherVotes(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		storeMock.EXPECT().UpsertVote(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		storeMock.EXPECT().ListVotes(gomock.Any(), "p1").Return(nil, nil).Times(1)

		_, err := svc.VotePoll(ctx, caller, domain.VotePollCommand{
			ConversationID: "c1", PollID: "p1", OptionID: "opt-a",
		})

		req.NoError(err)
		takeEnvelope(req, envelopes)
	})

	t.Run("should leave the tally unchanged when re-casting a held vote", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		held := []domain.Vote{
			{PollID: "p1", OptionID: "opt-a", UserID: caller.UserID, CreatedAt: fixedNow.Add(-time.Hour)},
		}

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetPoll(gomock.Any(), "p1").Return(poll(false), nil).Times(1)
		storeMock.EXPECT().GetPollOptions(gomock.Any(), "p1").Return(options, nil).Times(1)
		storeMock.EXPECT().DeleteOtherVotes(gomock.Any(), "p1", "opt-a", caller.UserID).Return(nil).Times(1)
		// The store's composite uniqueness suppresses the duplicate row
		storeMock.EXPECT().UpsertVote(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		storeMock.EXPECT().ListVotes(gomock.Any(), "p1").Return(held, nil).Times(1)

		updated, err := svc.VotePoll(ctx, caller, domain.VotePollCommand{
			ConversationID: "c1", PollID: "p1", OptionID: "opt-a",
		})

		req.NoError(err)
		req.Equal(1, updated.Tally.Totals[0].Count)
		req.Equal([]string{"opt-a"}, updated.Tally.MyVotes)
		takeEnvelope(req, envelopes)
	})

	t.Run("should reject an option outside the poll", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetPoll(gomock.Any(), "p1").Return(poll(false), nil).Times(1)
		storeMock.EXPECT().GetPollOptions(gomock.Any(), "p1").Return(options, nil).Times(1)

		_, err := svc.VotePoll(ctx, caller, domain.VotePollCommand{
			ConversationID: "c1", PollID: "p1", OptionID: "opt-ghost",
		})

		req.ErrorIs(err, errors.ErrNotFound)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("should reject a poll attached to another conversation", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetPoll(gomock.Any(), "p1").
			Return(&domain.Poll{ID: "p1", ConversationID: "c2"}, nil).Times(1)

		_, err := svc.VotePoll(ctx, caller, domain.VotePollCommand{
			ConversationID: "c1", PollID: "p1", OptionID: "opt-a",
		})

		req.ErrorIs(err, errors.ErrNotFound)
		requireNoBroadcast(req, envelopes)
	})
}

func TestChatService_EditMessage(t *testing.T) {
	ctx := context.Background()
	stored := func() *domain.Message {
		return &domain.Message{
			ID: "m1", ConversationID: "c1", SenderID: "user-1",
			Type: domain.MessageText, Text: "original",
		}
	}

	t.Run("should update the text without touching conversation activity", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").Return(stored(), nil).Times(1)
		storeMock.EXPECT().UpdateMessageText(gomock.Any(), "m1", "revised", fixedNow).Return(nil).Times(1)
		// No TouchConversation expectation: edits must not reorder
		// conversation lists.

		edited, err := svc.EditMessage(ctx, caller, domain.EditMessageCommand{
			ConversationID: "c1", MessageID: "m1", Text: " revised ",
		})

		req.NoError(err)
		req.Equal("revised", edited.Text)
		req.True(edited.Edited)
		req.Equal(fixedNow, edited.UpdatedAt)

		env := takeEnvelope(req, envelopes)
		req.Equal("message_edited", env.Event.Name())
	})

	t.Run("should let only the author edit", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := admin()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").Return(stored(), nil).Times(1)

		// Even the admin tier cannot edit someone else's message
		_, err := svc.EditMessage(ctx, caller, domain.EditMessageCommand{
			ConversationID: "c1", MessageID: "m1", Text: "revised",
		})

		req.ErrorIs(err, errors.ErrUnauthorized)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("should reject editing a non-text message", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, _ := newTestService(t)
		caller := member()

		fileMsg := stored()
		fileMsg.Type = domain.MessageFile

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").Return(fileMsg, nil).Times(1)

		_, err := svc.EditMessage(ctx, caller, domain.EditMessageCommand{
			ConversationID: "c1", MessageID: "m1", Text: "revised",
		})

		var validationErr errors.ValidationError
		req.ErrorAs(err, &validationErr)
	})

	t.Run("should reject editing a deleted message", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, _ := newTestService(t)
		caller := member()

		deleted := stored()
		deleted.DeletedForAll = true

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").Return(deleted, nil).Times(1)

		_, err := svc.EditMessage(ctx, caller, domain.EditMessageCommand{
			ConversationID: "c1", MessageID: "m1", Text: "revised",
		})

		var validationErr errors.ValidationError
		req.ErrorAs(err, &validationErr)
	})
}

func TestChatService_DeleteMessage(t *testing.T) {
	ctx := context.Background()
	stored := &domain.Message{ID: "m1", ConversationID: "c1", SenderID: "user-1", Type: domain.MessageText}

	t.Run("should do nothing for delete-for-me", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		// No message lookup, no broadcast.

		err := svc.DeleteMessage(ctx, caller, domain.DeleteMessageCommand{
			ConversationID: "c1", MessageID: "m1", DeleteForEveryone: false,
		})

		req.NoError(err)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("should broadcast when the author deletes for everyone", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").Return(stored, nil).Times(1)

		err := svc.DeleteMessage(ctx, caller, domain.DeleteMessageCommand{
			ConversationID: "c1", MessageID: "m1", DeleteForEveryone: true,
		})

		req.NoError(err)
		env := takeEnvelope(req, envelopes)
		req.Equal("message_deleted", env.Event.Name())
		deleted := env.Event.(event.MessageDeleted)
		req.Equal(caller.UserID, deleted.DeletedBy)
	})

	t.Run("should allow the admin tier to delete someone else's message", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := admin()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").Return(stored, nil).Times(1)

		err := svc.DeleteMessage(ctx, caller, domain.DeleteMessageCommand{
			ConversationID: "c1", MessageID: "m1", DeleteForEveryone: true,
		})

		req.NoError(err)
		takeEnvelope(req, envelopes)
	})

	t.Run("should reject another member deleting for everyone", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := Caller{ConnID: "conn-2", UserID: "user-2", Role: domain.RoleMember}

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").Return(stored, nil).Times(1)

		err := svc.DeleteMessage(ctx, caller, domain.DeleteMessageCommand{
			ConversationID: "c1", MessageID: "m1", DeleteForEveryone: true,
		})

		req.ErrorIs(err, errors.ErrUnauthorized)
		requireNoBroadcast(req, envelopes)
	})
}

func TestChatService_React(t *testing.T) {
	ctx := context.Background()

	t.Run("should recompute and broadcast the summary without mutating", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").
			Return(&domain.Message{ID: "m1", ConversationID: "c1"}, nil).Times(1)
		storeMock.EXPECT().ListReactions(gomock.Any(), "m1").
			Return([]domain.Reaction{
				{MessageID: "m1", UserID: "user-1", Emoji: "👍"},
				{MessageID: "m1", UserID: "user-2", Emoji: "👍"},
			}, nil).Times(1)

		err := svc.React(ctx, caller, domain.ReactCommand{
			ConversationID: "c1", MessageID: "m1", Emoji: "👍",
		})

		req.NoError(err)
		env := takeEnvelope(req, envelopes)
		req.Equal("reaction_updated", env.Event.Name())
		// The sender receives the broadcast too
		req.Empty(env.Exclude)

		updated := env.Event.(event.ReactionUpdated)
		req.Equal(2, updated.Summary.TotalReactions)
		req.Equal("👍", *updated.Summary.TopReaction)
	})

	t.Run("should reject a message from another conversation", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)
		storeMock.EXPECT().GetMessage(gomock.Any(), "m1").
			Return(&domain.Message{ID: "m1", ConversationID: "c2"}, nil).Times(1)

		err := svc.React(ctx, caller, domain.ReactCommand{
			ConversationID: "c1", MessageID: "m1", Emoji: "👍",
		})

		req.ErrorIs(err, errors.ErrNotFound)
		requireNoBroadcast(req, envelopes)
	})
}

func TestChatService_MarkRead(t *testing.T) {
	ctx := context.Background()

	t.Run("should advance last read and exclude the reader from fan-out", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().
			UpdateLastRead(gomock.Any(), "c1", caller.UserID, fixedNow).
			Return(true, nil).Times(1)

		read, err := svc.MarkRead(ctx, caller, domain.MarkReadCommand{ConversationID: "c1"})

		req.NoError(err)
		req.Equal(fixedNow, read.LastReadAt)

		env := takeEnvelope(req, envelopes)
		req.Equal("user_read", env.Event.Name())
		req.Equal(caller.ConnID, env.Exclude)
	})

	t.Run("should treat zero touched rows as a participant failure", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().
			UpdateLastRead(gomock.Any(), "c1", caller.UserID, fixedNow).
			Return(false, nil).Times(1)

		_, err := svc.MarkRead(ctx, caller, domain.MarkReadCommand{ConversationID: "c1"})

		req.ErrorIs(err, errors.ErrUnauthorized)
		requireNoBroadcast(req, envelopes)
	})
}

func TestChatService_Typing(t *testing.T) {
	ctx := context.Background()

	t.Run("start should require participation and skip the sender", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(true, nil).Times(1)

		err := svc.TypingStart(ctx, caller, domain.TypingCommand{ConversationID: "c1"})

		req.NoError(err)
		env := takeEnvelope(req, envelopes)
		req.Equal("user_typing", env.Event.Name())
		req.Equal(caller.ConnID, env.Exclude)

		typing := env.Event.(event.UserTyping)
		req.Equal("Alice", typing.DisplayName)
	})

	t.Run("start should reject a non-participant", func(t *testing.T) {
		req := require.New(t)
		svc, storeMock, _, envelopes := newTestService(t)
		caller := member()

		storeMock.EXPECT().IsParticipant(gomock.Any(), "c1", caller.UserID).Return(false, nil).Times(1)

		err := svc.TypingStart(ctx, caller, domain.TypingCommand{ConversationID: "c1"})

		req.ErrorIs(err, errors.ErrUnauthorized)
		requireNoBroadcast(req, envelopes)
	})

	t.Run("stop should broadcast without any participant check", func(t *testing.T) {
		req := require.New(t)
		svc, _, _, envelopes := newTestService(t)
		caller := member()

		// No store expectation at all: a stale stop after leaving the
		// conversation must still clear the indicator.
		err := svc.TypingStop(ctx, caller, domain.TypingCommand{ConversationID: "c1"})

		req.NoError(err)
		env := takeEnvelope(req, envelopes)
		req.Equal("user_stopped_typing", env.Event.Name())
		req.Equal(caller.ConnID, env.Exclude)
	})
}

func TestChatService_Join(t *testing.T) {
	svc, _, registryMock, envelopes := newTestService(t)
	req := require.New(t)
	caller := member()

	// Join trusts the caller: registry only, no store call, no broadcast
	registryMock.EXPECT().Join(caller.ConnID, "c1").Times(1)

	svc.Join(context.Background(), caller, domain.JoinCommand{ConversationID: "c1"})

	requireNoBroadcast(req, envelopes)
}

func TestChatService_RecoversHandlerFault(t *testing.T) {
	req := require.New(t)
	svc, storeMock, _, envelopes := newTestService(t)
	caller := member()

	storeMock.EXPECT().
		IsParticipant(gomock.Any(), "c1", caller.UserID).
		DoAndReturn(func(context.Context, string, string) (bool, error) {
			panic("store driver bug")
		}).Times(1)

	_, err := svc.SendMessage(context.Background(), caller, domain.SendMessageCommand{
		ConversationID: "c1", Type: domain.MessageText, Text: "hello",
	})

	req.ErrorIs(err, errors.ErrInternal)
	requireNoBroadcast(req, envelopes)
}
