package message

import (
	"context"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ListMessages returns up to limit messages newest first. beforeSeq bounds
// the page exclusively; zero means start from the newest. Keying the page on
// seq keeps pagination stable under concurrent appends: new messages land
// above every already-served boundary.
func (s *Store) ListMessages(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]*chatmodel.Message, bool, error) {
	filter := bson.M{chatmodel.MsgFieldConversationID: conversationID}
	if beforeSeq > 0 {
		filter[chatmodel.MsgFieldSeq] = bson.M{"$lt": beforeSeq}
	}

	// one extra row decides hasMore without a second count query
	cur, err := s.MsgColl.Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: chatmodel.MsgFieldSeq, Value: -1}}).
			SetLimit(int64(limit)+1),
	)
	if err != nil {
		return nil, false, errs.ErrTransient.WrapMsg("list messages", "conversation", conversationID, "cause", err)
	}
	defer cur.Close(ctx)

	var out []*chatmodel.Message
	for cur.Next(ctx) {
		var m chatmodel.Message
		if err := cur.Decode(&m); err != nil {
			return nil, false, errs.ErrTransient.WrapMsg("decode message", "cause", err)
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, false, errs.ErrTransient.WrapMsg("iterate messages", "cause", err)
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}
