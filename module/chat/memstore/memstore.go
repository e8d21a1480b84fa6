package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"

	"github.com/google/uuid"
)

// Store is an in-memory implementation of the chat store surface, mirroring
// the mongo store's semantics under a single mutex. It backs the test suite
// and the dev-mode server; the mutex stands in for the document-level
// atomicity mongo provides.
type Store struct {
	mu        sync.Mutex
	convs     map[string]*chatmodel.Conversation // by id
	byPair    map[string]string                  // pair key -> conversation id
	messages  map[string][]*chatmodel.Message    // conversation id -> ascending by seq
	seqs      map[string]int64                   // conversation id -> last issued seq
	committed map[string]int64                   // conversation id -> committed waterline
	users     map[string]Profile                 // user directory
}

// Profile is the directory record for a user; the chat service only needs
// existence, the fields feed the client-side profile cache in dev mode.
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

func New() *Store {
	return &Store{
		convs:     make(map[string]*chatmodel.Conversation),
		byPair:    make(map[string]string),
		messages:  make(map[string][]*chatmodel.Message),
		seqs:      make(map[string]int64),
		committed: make(map[string]int64),
		users:     make(map[string]Profile),
	}
}

// AddUser registers a user in the directory.
func (s *Store) AddUser(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[p.ID] = p
}

// Exists implements the user directory collaborator.
func (s *Store) Exists(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userID]
	return ok, nil
}

// Next implements the seq allocator: check-then-increment is serialized by
// the store mutex, which is the in-memory stand-in for the redis/mongo
// segment protocol.
func (s *Store) Next(_ context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[conversationID]++
	return s.seqs[conversationID], nil
}

// Commit implements the allocator's waterline advance; the committed map
// mirrors the seq document's max_seq field.
func (s *Store) Commit(_ context.Context, conversationID string, toSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if toSeq > s.committed[conversationID] {
		s.committed[conversationID] = toSeq
	}
	return nil
}

// Committed reports the waterline Commit has reached, for assertions.
func (s *Store) Committed(conversationID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed[conversationID]
}

func (s *Store) GetOrCreateConversation(_ context.Context, a, b string) (*chatmodel.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := chatmodel.PairKey(a, b)
	if id, ok := s.byPair[key]; ok {
		return cloneConv(s.convs[id]), false, nil
	}

	now := time.Now().UTC()
	c := &chatmodel.Conversation{
		ID:            uuid.NewString(),
		PairKey:       key,
		Participants:  chatmodel.SortedPair(a, b),
		LastMessage:   "",
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.convs[c.ID] = c
	s.byPair[key] = c.ID
	return cloneConv(c), true, nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*chatmodel.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, errs.ErrNotFound.WithDetailf("conversation %s", id).Wrap()
	}
	return cloneConv(c), nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]*chatmodel.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*chatmodel.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(userID) && !c.HiddenForUser(userID) {
			out = append(out, cloneConv(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) HideConversation(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return errs.ErrNotFound.WithDetailf("conversation %s", id).Wrap()
	}
	if !c.HiddenForUser(userID) {
		c.HiddenFor = append(c.HiddenFor, userID)
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) InsertMessage(_ context.Context, m *chatmodel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[m.ConversationID]
	if !ok {
		return errs.ErrNotFound.WithDetailf("conversation %s", m.ConversationID).Wrap()
	}

	cp := cloneMsg(m)
	msgs := s.messages[m.ConversationID]
	// appends arrive nearly sorted; walk back from the tail for the rare
	// out-of-order commit of a lower seq
	i := len(msgs)
	for i > 0 && msgs[i-1].Seq > cp.Seq {
		i--
	}
	msgs = append(msgs, nil)
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = cp
	s.messages[m.ConversationID] = msgs

	if cp.Seq > c.MaxSeq {
		c.MaxSeq = cp.Seq
		c.LastMessage = cp.Text
		c.LastMessageAt = cp.CreatedAt
	}
	c.UpdatedAt = time.Now().UTC()
	c.HiddenFor = nil
	return nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string, beforeSeq int64, limit int) ([]*chatmodel.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	var out []*chatmodel.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if beforeSeq > 0 && msgs[i].Seq >= beforeSeq {
			continue
		}
		if len(out) == limit {
			return out, true, nil
		}
		out = append(out, cloneMsg(msgs[i]))
	}
	return out, false, nil
}

func (s *Store) MarkReadTo(_ context.Context, conversationID, readerID string, upToSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages[conversationID] {
		if m.SenderID == readerID {
			continue
		}
		if upToSeq > 0 && m.Seq > upToSeq {
			break
		}
		if !m.ReadByUser(readerID) {
			m.ReadBy = append(m.ReadBy, readerID)
		}
	}
	return nil
}

func (s *Store) UnreadCount(_ context.Context, conversationID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.messages[conversationID] {
		if m.SenderID != readerID && !m.ReadByUser(readerID) {
			n++
		}
	}
	return n, nil
}

// Ping satisfies the health surface; memory is always reachable.
func (s *Store) Ping(context.Context) error { return nil }

func cloneConv(c *chatmodel.Conversation) *chatmodel.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.HiddenFor = append([]string(nil), c.HiddenFor...)
	return &cp
}

func cloneMsg(m *chatmodel.Message) *chatmodel.Message {
	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	return &cp
}
