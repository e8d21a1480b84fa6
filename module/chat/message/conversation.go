package message

import (
	"context"
	"time"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GetOrCreateConversation finds or creates the single conversation for an
// unordered participant pair. Implemented as an upsert keyed on the pair key,
// so concurrent callers converge on one document; the found path touches
// nothing, not even updated_at. The bool reports whether this call created it.
func (s *Store) GetOrCreateConversation(ctx context.Context, a, b string) (*chatmodel.Conversation, bool, error) {
	key := chatmodel.PairKey(a, b)
	now := time.Now().UTC()
	candidateID := uuid.NewString()

	var out chatmodel.Conversation
	err := s.ConvColl.FindOneAndUpdate(ctx,
		bson.M{chatmodel.ConvFieldPairKey: key},
		bson.M{"$setOnInsert": bson.M{
			chatmodel.ConvFieldID:            candidateID,
			chatmodel.ConvFieldPairKey:       key,
			chatmodel.ConvFieldParticipants:  chatmodel.SortedPair(a, b),
			chatmodel.ConvFieldLastMessage:   "",
			chatmodel.ConvFieldLastMessageAt: now,
			chatmodel.ConvFieldMaxSeq:        int64(0),
			chatmodel.ConvFieldCreatedAt:     now,
			chatmodel.ConvFieldUpdatedAt:     now,
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		// Two upserts racing on the same missing pair key can both take the
		// insert path; the unique index fails the loser, which then reads the
		// winner's document.
		if mongo.IsDuplicateKeyError(err) {
			return s.getByPairKey(ctx, key)
		}
		return nil, false, errs.ErrTransient.WrapMsg("get-or-create conversation", "pair", key, "cause", err)
	}
	return &out, out.ID == candidateID, nil
}

func (s *Store) getByPairKey(ctx context.Context, key string) (*chatmodel.Conversation, bool, error) {
	var out chatmodel.Conversation
	if err := s.ConvColl.FindOne(ctx, bson.M{chatmodel.ConvFieldPairKey: key}).Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, false, errs.ErrConflict.WrapMsg("conversation vanished after duplicate-key race", "pair", key)
		}
		return nil, false, errs.ErrTransient.WrapMsg("load conversation by pair", "pair", key, "cause", err)
	}
	return &out, false, nil
}

// GetConversation loads one conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*chatmodel.Conversation, error) {
	var out chatmodel.Conversation
	if err := s.ConvColl.FindOne(ctx, bson.M{chatmodel.ConvFieldID: id}).Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotFound.WithDetailf("conversation %s", id).Wrap()
		}
		return nil, errs.ErrTransient.WrapMsg("load conversation", "id", id, "cause", err)
	}
	return &out, nil
}

// ListConversations returns the caller's visible conversations, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]*chatmodel.Conversation, error) {
	cur, err := s.ConvColl.Find(ctx,
		bson.M{
			chatmodel.ConvFieldParticipants: userID,
			chatmodel.ConvFieldHiddenFor:    bson.M{"$ne": userID},
		},
		options.Find().SetSort(bson.D{{Key: chatmodel.ConvFieldUpdatedAt, Value: -1}}),
	)
	if err != nil {
		return nil, errs.ErrTransient.WrapMsg("list conversations", "user", userID, "cause", err)
	}
	defer cur.Close(ctx)

	var out []*chatmodel.Conversation
	for cur.Next(ctx) {
		var c chatmodel.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, errs.ErrTransient.WrapMsg("decode conversation", "cause", err)
		}
		out = append(out, &c)
	}
	if err := cur.Err(); err != nil {
		return nil, errs.ErrTransient.WrapMsg("iterate conversations", "cause", err)
	}
	return out, nil
}

// HideConversation removes the conversation from one participant's list.
// Idempotent; the shared document and the peer's view survive.
func (s *Store) HideConversation(ctx context.Context, id, userID string) error {
	res, err := s.ConvColl.UpdateOne(ctx,
		bson.M{chatmodel.ConvFieldID: id},
		bson.M{
			"$addToSet": bson.M{chatmodel.ConvFieldHiddenFor: userID},
			"$set":      bson.M{chatmodel.ConvFieldUpdatedAt: time.Now().UTC()},
		},
	)
	if err != nil {
		return errs.ErrTransient.WrapMsg("hide conversation", "id", id, "cause", err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WithDetailf("conversation %s", id).Wrap()
	}
	return nil
}
