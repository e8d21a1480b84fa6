package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/threadswap/chat-service/logger"
	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"
	"github.com/threadswap/chat-service/tools/ids"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Store is the persistence surface the service needs; the mongo store and
// the in-memory store both satisfy it.
type Store interface {
	GetOrCreateConversation(ctx context.Context, a, b string) (*chatmodel.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*chatmodel.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*chatmodel.Conversation, error)
	HideConversation(ctx context.Context, id, userID string) error
	InsertMessage(ctx context.Context, m *chatmodel.Message) error
	ListMessages(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]*chatmodel.Message, bool, error)
	MarkReadTo(ctx context.Context, conversationID, readerID string, upToSeq int64) error
	UnreadCount(ctx context.Context, conversationID, readerID string) (int64, error)
}

// SeqAllocator issues the strictly increasing per-conversation seq. Commit
// records that a number's message landed; the committed waterline trails
// issuance by at most the sends still in flight.
type SeqAllocator interface {
	Next(ctx context.Context, conversationID string) (int64, error)
	Commit(ctx context.Context, conversationID string, toSeq int64) error
}

// UserDirectory is the identity collaborator; it answers existence only.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Wake receives best-effort new-message pokes (NATS in production). Publish
// failures are logged and swallowed: the poll cycle delivers regardless.
type Wake interface {
	Publish(subject string, data []byte) error
}

// WakeSubjectPrefix + conversation id is the subject a client subscribes to.
const WakeSubjectPrefix = "chat.conv.updated."

// WakeEvent is the poke payload. It intentionally carries no message text;
// subscribers fetch through the normal list path.
type WakeEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	Seq            int64  `json:"seq"`
}

// ChatService owns validation, authorization, and orchestration for the
// messaging operations. All ordering and uniqueness guarantees live in the
// store and allocator; this layer never holds state of its own.
type ChatService struct {
	store Store
	seq   SeqAllocator
	users UserDirectory
	wake  Wake // optional
}

func New(store Store, seq SeqAllocator, users UserDirectory, wake Wake) *ChatService {
	return &ChatService{store: store, seq: seq, users: users, wake: wake}
}

// GetOrCreate resolves the single conversation between caller and recipient,
// creating it when absent.
func (s *ChatService) GetOrCreate(ctx context.Context, callerID, recipientID string) (*chatmodel.Conversation, error) {
	if !chatmodel.ValidatePair(callerID, recipientID) {
		return nil, errs.ErrInvalidArgument.WithDetail("cannot start a conversation with yourself").Wrap()
	}
	for _, id := range []string{callerID, recipientID} {
		ok, err := s.users.Exists(ctx, id)
		if err != nil {
			return nil, errs.ErrTransient.WrapMsg("user lookup", "user", id, "cause", err)
		}
		if !ok {
			return nil, errs.ErrNotFound.WithDetailf("user %s", id).Wrap()
		}
	}

	conv, created, err := s.store.GetOrCreateConversation(ctx, callerID, recipientID)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("conversation created",
			zap.String("conversation", conv.ID),
			zap.Strings("participants", conv.Participants))
	}
	return conv, nil
}

// Send appends a message. Seq assignment happens before the insert, so an
// append that returns before another begins is guaranteed the lower seq.
func (s *ChatService) Send(ctx context.Context, conversationID, callerID, text string) (*chatmodel.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.ErrInvalidArgument.WithDetail("empty message text").Wrap()
	}
	if utf8.RuneCountInString(text) > chatmodel.MaxTextLen {
		return nil, errs.ErrInvalidArgument.WithDetailf("message text exceeds %d characters", chatmodel.MaxTextLen).Wrap()
	}

	conv, err := s.authorized(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}

	seq, err := s.seq.Next(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	m := &chatmodel.Message{
		ID:             ids.GenerateString(),
		ConversationID: conv.ID,
		SenderID:       callerID,
		Text:           text,
		Seq:            seq,
		CreatedAt:      time.Now().UTC(),
		ReadBy:         []string{},
	}
	if err := s.store.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	// advisory waterline; the message is already durable
	if err := s.seq.Commit(ctx, conv.ID, m.Seq); err != nil {
		logger.Warn("advance committed seq",
			zap.String("conversation", conv.ID),
			zap.Int64("seq", m.Seq),
			zap.Error(err))
	}
	s.publishWake(m)
	return m, nil
}

// List returns one page of messages, newest first.
func (s *ChatService) List(ctx context.Context, conversationID, callerID, cursor string, pageSize int) (*chatmodel.MessagePage, error) {
	beforeSeq, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	if _, err := s.authorized(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	msgs, hasMore, err := s.store.ListMessages(ctx, conversationID, beforeSeq, pageSize)
	if err != nil {
		return nil, err
	}
	page := &chatmodel.MessagePage{Messages: msgs, HasMore: hasMore}
	if hasMore && len(msgs) > 0 {
		page.NextCursor = encodeCursor(msgs[len(msgs)-1].Seq)
	}
	return page, nil
}

// MarkAllRead records the caller as having seen every peer-authored message
// currently in the conversation. Idempotent.
func (s *ChatService) MarkAllRead(ctx context.Context, conversationID, callerID string) error {
	if _, err := s.authorized(ctx, conversationID, callerID); err != nil {
		return err
	}
	return s.store.MarkReadTo(ctx, conversationID, callerID, 0)
}

// ListConversations returns the caller's visible conversations with unread
// counts, most recently updated first.
func (s *ChatService) ListConversations(ctx context.Context, callerID string) ([]*chatmodel.ConversationSummary, error) {
	convs, err := s.store.ListConversations(ctx, callerID)
	if err != nil {
		return nil, err
	}
	out := make([]*chatmodel.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		unread, err := s.store.UnreadCount(ctx, c.ID, callerID)
		if err != nil {
			return nil, err
		}
		out = append(out, &chatmodel.ConversationSummary{Conversation: *c, Unread: unread})
	}
	return out, nil
}

// Delete removes the conversation from the caller's list only.
func (s *ChatService) Delete(ctx context.Context, conversationID, callerID string) error {
	if _, err := s.authorized(ctx, conversationID, callerID); err != nil {
		return err
	}
	return s.store.HideConversation(ctx, conversationID, callerID)
}

// authorized loads the conversation and rejects non-participants. Forbidden
// is always surfaced, never silently filtered.
func (s *ChatService) authorized(ctx context.Context, conversationID, callerID string) (*chatmodel.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, errs.ErrForbidden.WithDetailf("user %s is not a participant", callerID).Wrap()
	}
	return conv, nil
}

func (s *ChatService) publishWake(m *chatmodel.Message) {
	if s.wake == nil {
		return
	}
	payload, err := json.Marshal(WakeEvent{
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		Seq:            m.Seq,
	})
	if err != nil {
		return
	}
	if err := s.wake.Publish(WakeSubjectPrefix+m.ConversationID, payload); err != nil {
		logger.Warn("wake publish failed",
			zap.String("conversation", m.ConversationID),
			zap.Error(err))
	}
}
