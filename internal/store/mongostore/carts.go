package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

func (s *Store) FindActiveCartByUser(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	return findOne[models.Cart](ctx, s.col(colCarts), bson.M{
		"userId":    userID,
		"status":    models.CartActive,
		"deletedAt": notDeleted,
	})
}

func (s *Store) FindActiveCartBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	return findOne[models.Cart](ctx, s.col(colCarts), bson.M{
		"sessionId": sessionID,
		"userId":    nil,
		"status":    models.CartActive,
		"deletedAt": notDeleted,
	})
}

func (s *Store) GetCart(ctx context.Context, id primitive.ObjectID) (*models.Cart, error) {
	c, err := findOne[models.Cart](ctx, s.col(colCarts), bson.M{"_id": id, "deletedAt": notDeleted})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.ErrCartNotFound, "cart %s not found", id.Hex())
	}
	return c, nil
}

func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) error {
	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
	}
	_, err := s.col(colCarts).InsertOne(ctx, cart)
	return err
}

// SaveCartItems replaces the items of an active cart.
func (s *Store) SaveCartItems(ctx context.Context, cart *models.Cart) error {
	res, err := s.col(colCarts).UpdateOne(ctx,
		bson.M{"_id": cart.ID, "status": models.CartActive, "deletedAt": notDeleted},
		bson.M{"$set": bson.M{"items": cart.Items, "updatedAt": cart.UpdatedAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.ErrAlreadyConfirmed, "cart %s is no longer active", cart.ID.Hex())
	}
	return nil
}

// ClaimCart moves an active guest cart to a user.
func (s *Store) ClaimCart(ctx context.Context, cartID, userID primitive.ObjectID) (bool, error) {
	res, err := s.col(colCarts).UpdateOne(ctx,
		bson.M{"_id": cartID, "status": models.CartActive, "userId": nil},
		bson.M{
			"$set":   bson.M{"userId": userID, "updatedAt": s.now()},
			"$unset": bson.M{"sessionId": ""},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) TransitionCart(ctx context.Context, id primitive.ObjectID, from, to models.CartStatus, orderID *primitive.ObjectID) (bool, error) {
	set := bson.M{"status": to, "updatedAt": s.now()}
	if orderID != nil {
		set["orderId"] = *orderID
	}
	res, err := s.col(colCarts).UpdateOne(ctx,
		bson.M{"_id": id, "status": from, "deletedAt": notDeleted},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// FindConvertedCart returns the most recently converted cart of the owner.
func (s *Store) FindConvertedCart(ctx context.Context, userID *primitive.ObjectID, sessionID string) (*models.Cart, error) {
	filter := bson.M{"status": models.CartConverted, "deletedAt": notDeleted}
	switch {
	case userID != nil:
		filter["userId"] = *userID
	case sessionID != "":
		filter["sessionId"] = sessionID
		filter["userId"] = nil
	default:
		return nil, nil
	}
	return findOne[models.Cart](ctx, s.col(colCarts), filter,
		options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
}

func (s *Store) GetCheckout(ctx context.Context, cartID primitive.ObjectID) (*models.Checkout, error) {
	return findOne[models.Checkout](ctx, s.col(colCheckouts), bson.M{"cartId": cartID})
}

// SaveCheckout upserts the checkout keyed by its cart.
func (s *Store) SaveCheckout(ctx context.Context, co *models.Checkout) error {
	res, err := s.col(colCheckouts).ReplaceOne(ctx,
		bson.M{"cartId": co.CartID},
		co,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	if id, ok := res.UpsertedID.(primitive.ObjectID); ok {
		co.ID = id
	}
	return nil
}
