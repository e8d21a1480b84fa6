package user

import (
	"context"

	"github.com/threadswap/chat-service/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// User is the slice of the marketplace profile the chat subsystem reads:
// existence for validation, display fields for chat lists. Account
// management itself lives with the identity service.
type User struct {
	ID          string `bson:"_id" json:"id"`
	DisplayName string `bson:"display_name" json:"display_name"`
	AvatarURL   string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
}

const TableName = "users"

// Directory answers identity lookups against the shared users collection.
type Directory struct {
	Coll *mongo.Collection
}

func NewDirectory(db *mongo.Database) *Directory {
	return &Directory{Coll: db.Collection(TableName)}
}

func (d *Directory) Exists(ctx context.Context, userID string) (bool, error) {
	n, err := d.Coll.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return false, errs.ErrTransient.WrapMsg("user existence check", "user", userID, "cause", err)
	}
	return n > 0, nil
}

// Get loads profile fields for chat list rendering.
func (d *Directory) Get(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := d.Coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotFound.WithDetailf("user %s", userID).Wrap()
		}
		return nil, errs.ErrTransient.WrapMsg("load user", "user", userID, "cause", err)
	}
	return &u, nil
}
