package model

import (
	"sort"
	"strings"
	"time"
)

// Conversation is the shared record of a two-party thread. One document per
// unordered participant pair; PairKey carries the uniqueness constraint.
// Deleting a conversation is per-participant: the deleter is added to
// HiddenFor and the next append clears the list, reviving the thread in both
// lists without ever destroying the peer's view.
type Conversation struct {
	ID            string    `bson:"_id" json:"id"`
	PairKey       string    `bson:"pair_key" json:"-"`
	Participants  []string  `bson:"participants" json:"participants"` // always two, sorted
	LastMessage   string    `bson:"last_message" json:"last_message"`
	LastMessageAt time.Time `bson:"last_message_at" json:"last_message_at"`
	MaxSeq        int64     `bson:"max_seq" json:"-"`
	HiddenFor     []string  `bson:"hidden_for,omitempty" json:"-"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

const ConversationTableName = "conversation"

// bson field names, kept as constants so store queries and index definitions
// cannot drift from the struct tags.
const (
	ConvFieldID            = "_id"
	ConvFieldPairKey       = "pair_key"
	ConvFieldParticipants  = "participants"
	ConvFieldLastMessage   = "last_message"
	ConvFieldLastMessageAt = "last_message_at"
	ConvFieldMaxSeq        = "max_seq"
	ConvFieldHiddenFor     = "hidden_for"
	ConvFieldCreatedAt     = "created_at"
	ConvFieldUpdatedAt     = "updated_at"
)

// PairKey returns the canonical order-independent key for two participants.
// Both lookup and the unique index use it, which is what makes get-or-create
// converge to a single document under concurrent calls.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// SortedPair returns the two ids in canonical order.
func SortedPair(a, b string) []string {
	p := []string{a, b}
	sort.Strings(p)
	return p
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Peer returns the other participant.
func (c *Conversation) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

func (c *Conversation) HiddenForUser(userID string) bool {
	for _, h := range c.HiddenFor {
		if h == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the list-view shape: the conversation plus the
// caller's unread count.
type ConversationSummary struct {
	Conversation
	Unread int64 `json:"unread"`
}

// ValidatePair rejects malformed participant pairs before any store work.
func ValidatePair(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && b != "" && a != b
}
