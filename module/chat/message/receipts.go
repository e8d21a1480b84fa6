package message

import (
	"context"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
)

// MarkReadTo adds the reader to read_by on every peer-authored message with
// seq <= upToSeq (zero means all). The sender guard keeps a reader out of
// their own messages' read_by; $addToSet makes the whole operation idempotent
// and safe under concurrent invocation: a set union only grows.
func (s *Store) MarkReadTo(ctx context.Context, conversationID, readerID string, upToSeq int64) error {
	filter := bson.M{
		chatmodel.MsgFieldConversationID: conversationID,
		chatmodel.MsgFieldSenderID:       bson.M{"$ne": readerID},
		chatmodel.MsgFieldReadBy:         bson.M{"$ne": readerID},
	}
	if upToSeq > 0 {
		filter[chatmodel.MsgFieldSeq] = bson.M{"$lte": upToSeq}
	}
	_, err := s.MsgColl.UpdateMany(ctx, filter,
		bson.M{"$addToSet": bson.M{chatmodel.MsgFieldReadBy: readerID}},
	)
	if err != nil {
		return errs.ErrTransient.WrapMsg("mark read", "conversation", conversationID, "reader", readerID, "cause", err)
	}
	return nil
}

// UnreadCount counts peer-authored messages the reader has not observed.
func (s *Store) UnreadCount(ctx context.Context, conversationID, readerID string) (int64, error) {
	n, err := s.MsgColl.CountDocuments(ctx, bson.M{
		chatmodel.MsgFieldConversationID: conversationID,
		chatmodel.MsgFieldSenderID:       bson.M{"$ne": readerID},
		chatmodel.MsgFieldReadBy:         bson.M{"$ne": readerID},
	})
	if err != nil {
		return 0, errs.ErrTransient.WrapMsg("count unread", "conversation", conversationID, "cause", err)
	}
	return n, nil
}
