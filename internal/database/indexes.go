package database

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func checkoutIndexes() []collectionIndexes {
	return []collectionIndexes{
		{"carts", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("userId_status_index"),
			},
			{
				Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("sessionId_status_index"),
			},
		}},
		{"checkouts", []mongo.IndexModel{{
			Keys:    bson.D{{Key: "cartId", Value: 1}},
			Options: options.Index().SetName("cartId_unique").SetUnique(true),
		}}},
		{"discounts", []mongo.IndexModel{{
			Keys: bson.D{{Key: "code", Value: 1}},
			Options: options.Index().
				SetName("code_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"code": bson.M{"$exists": true},
				}),
		}}},
		{"orders", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "userId", Value: 1}},
				Options: options.Index().SetName("userId_index"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("status_createdAt_index"),
			},
		}},
		{"payments", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "conversationId", Value: 1}},
				Options: options.Index().SetName("conversationId_unique").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "orderId", Value: 1}},
				Options: options.Index().SetName("orderId_index"),
			},
		}},
	}
}

// EnsureIndexes creates the indexes the checkout collections rely on.
// Unique indexes back the one-checkout-per-cart and one-payment-per-conversation rules.
func EnsureIndexes(db *mongo.Database, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, ci := range checkoutIndexes() {
		names, err := db.Collection(ci.collection).Indexes().CreateMany(ctx, ci.models)
		if err != nil {
			log.Error("[DATABASE] index error", "collection", ci.collection, "err", err)
			return err
		}
		log.Info("[DATABASE] indexes ready", "collection", ci.collection, "indexes", names)
	}
	return nil
}
