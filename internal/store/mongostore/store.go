// Package mongostore persists carts, checkouts, orders, payments and the
// catalog read model in MongoDB. Conditional writes carry their guard in the
// filter so a lost race shows up as zero matched documents.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	colProducts  = "products"
	colCarts     = "carts"
	colCheckouts = "checkouts"
	colDiscounts = "discounts"
	colOrders    = "orders"
	colPayments  = "payments"
)

// notDeleted matches documents without a deletedAt value.
var notDeleted = bson.M{"$eq": nil}

type Store struct {
	db  *mongo.Database
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// WithTransaction runs fn inside a multi-document transaction. ctx passed to
// fn carries the session, so every repository call made with it joins the
// transaction. Calls nested in an open transaction reuse it.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	opts := options.Transaction().SetWriteConcern(writeconcern.Majority())
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, opts)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter bson.M, opts ...*options.FindOneOptions) (*T, error) {
	var out T
	err := c.FindOne(ctx, filter, opts...).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
