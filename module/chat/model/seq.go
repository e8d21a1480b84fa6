package model

import "time"

// SeqConversation holds the per-conversation sequence waterlines. IssuedSeq
// is the highest number ever leased to an allocator segment; MaxSeq is the
// highest committed (visible) seq. IssuedSeq >= MaxSeq always; the gap is
// sends that leased a number and have not landed (or never will).
type SeqConversation struct {
	ConversationID string    `bson:"conversation_id"`
	IssuedSeq      int64     `bson:"issued_seq"`
	MaxSeq         int64     `bson:"max_seq"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

const SeqConversationTableName = "seq_conversation"

const (
	SeqFieldConversationID = "conversation_id"
	SeqFieldIssuedSeq      = "issued_seq"
	SeqFieldMaxSeq         = "max_seq"
	SeqFieldCreatedAt      = "created_at"
	SeqFieldUpdatedAt      = "updated_at"
)
