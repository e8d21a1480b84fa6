package message

import (
	"context"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the mongo-backed conversation and message store.
type Store struct {
	ConvColl *mongo.Collection
	MsgColl  *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		ConvColl: db.Collection(chatmodel.ConversationTableName),
		MsgColl:  db.Collection(chatmodel.MessageTableName),
	}
}

// EnsureIndexes creates the indexes the correctness arguments lean on. The
// unique pair_key index is what turns concurrent get-or-create into
// at-most-one-creation; the unique (conversation_id, seq) index makes a
// double-committed seq a store error instead of a silent ordering bug.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.ConvColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: chatmodel.ConvFieldPairKey, Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: chatmodel.ConvFieldParticipants, Value: 1},
				{Key: chatmodel.ConvFieldUpdatedAt, Value: -1},
			},
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "create conversation indexes")
	}
	_, err = s.MsgColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: chatmodel.MsgFieldConversationID, Value: 1},
				{Key: chatmodel.MsgFieldSeq, Value: -1},
			},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "create message indexes")
	}
	return nil
}

// Ping reports store reachability for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.ConvColl.Database().Client().Ping(ctx, nil)
}
