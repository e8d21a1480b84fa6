package model

import "time"

// MaxTextLen bounds the trimmed message body. 1000 characters counts runes,
// not bytes: the bound is user-visible content length.
const MaxTextLen = 1000

// Message is one immutable entry in a conversation's append-only log.
// Seq is the server-assigned per-conversation ordering key; CreatedAt equals
// seq order by construction and exists for display. ReadBy is the only field
// ever mutated after insert and it only grows.
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	SenderID       string    `bson:"sender_id" json:"sender_id"`
	Text           string    `bson:"text" json:"text"`
	Seq            int64     `bson:"seq" json:"seq"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	ReadBy         []string  `bson:"read_by" json:"read_by"`
}

const MessageTableName = "message"

const (
	MsgFieldID             = "_id"
	MsgFieldConversationID = "conversation_id"
	MsgFieldSenderID       = "sender_id"
	MsgFieldText           = "text"
	MsgFieldSeq            = "seq"
	MsgFieldCreatedAt      = "created_at"
	MsgFieldReadBy         = "read_by"
)

func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r == userID {
			return true
		}
	}
	return false
}

// MessagePage is one cursor page, newest first. NextCursor is opaque; an
// empty cursor means the newest page.
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}
