package message

import (
	"context"
	"time"

	"github.com/threadswap/chat-service/logger"
	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// InsertMessage appends a fully-built message (seq and id already assigned)
// and brings the owning conversation's summary up to date. The summary
// update guards on max_seq so a slow writer can never roll last_message back
// behind a newer append that landed first. Once the insert has committed the
// message is visible to readers, so a summary failure is reported as success
// with a stale last_message rather than as a failed send; the next append
// repairs the summary (its guard compares against the stale max_seq).
func (s *Store) InsertMessage(ctx context.Context, m *chatmodel.Message) error {
	if _, err := s.MsgColl.InsertOne(ctx, m); err != nil {
		return errs.ErrTransient.WrapMsg("insert message", "conversation", m.ConversationID, "cause", err)
	}

	_, err := s.ConvColl.UpdateOne(ctx,
		bson.M{
			chatmodel.ConvFieldID:     m.ConversationID,
			chatmodel.ConvFieldMaxSeq: bson.M{"$lt": m.Seq},
		},
		bson.M{
			"$set": bson.M{
				chatmodel.ConvFieldLastMessage:   m.Text,
				chatmodel.ConvFieldLastMessageAt: m.CreatedAt,
				chatmodel.ConvFieldMaxSeq:        m.Seq,
				chatmodel.ConvFieldUpdatedAt:     time.Now().UTC(),
				chatmodel.ConvFieldHiddenFor:     []string{}, // a new message revives the thread for both
			},
		},
	)
	if err != nil {
		logger.Warn("conversation summary update failed, message already committed",
			zap.String("conversation", m.ConversationID),
			zap.Int64("seq", m.Seq),
			zap.Error(err))
	}
	return nil
}
