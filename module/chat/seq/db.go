package seq

import (
	"context"
	"time"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DAO leases seq segments out of mongo. The $inc on issued_seq is the only
// authority for number assignment; redis in allocator.go is just the hot
// cache in front of it.
type DAO struct {
	Coll *mongo.Collection
}

func NewDAO(db *mongo.Database) *DAO {
	return &DAO{Coll: db.Collection(chatmodel.SeqConversationTableName)}
}

// AllocSegment atomically leases `block` numbers: issued_seq += block,
// returning the half-open lease as [start, end].
func (d *DAO) AllocSegment(ctx context.Context, conversationID string, block int64) (start, end int64, err error) {
	if block <= 0 {
		block = defaultBlock
	}
	now := time.Now()

	var before struct {
		IssuedSeq int64 `bson:"issued_seq"`
	}
	err = d.Coll.FindOneAndUpdate(ctx,
		bson.M{chatmodel.SeqFieldConversationID: conversationID},
		bson.M{
			"$inc": bson.M{chatmodel.SeqFieldIssuedSeq: block},
			"$setOnInsert": bson.M{
				chatmodel.SeqFieldMaxSeq:    int64(0),
				chatmodel.SeqFieldCreatedAt: now,
			},
			"$set": bson.M{chatmodel.SeqFieldUpdatedAt: now},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil && err != mongo.ErrNoDocuments {
		return 0, 0, errs.ErrTransient.WrapMsg("alloc seq segment", "conversation", conversationID, "cause", err)
	}
	old := before.IssuedSeq // zero when the document was just created
	return old + 1, old + block, nil
}

// AdvanceCommit raises the committed waterline: max_seq = max(max_seq, toSeq).
func (d *DAO) AdvanceCommit(ctx context.Context, conversationID string, toSeq int64) error {
	_, err := d.Coll.UpdateOne(ctx,
		bson.M{chatmodel.SeqFieldConversationID: conversationID},
		bson.M{
			"$max": bson.M{chatmodel.SeqFieldMaxSeq: toSeq},
			"$set": bson.M{chatmodel.SeqFieldUpdatedAt: time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errs.ErrTransient.WrapMsg("advance commit waterline", "conversation", conversationID, "cause", err)
	}
	return nil
}
