package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

func (s *Store) Product(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	p, err := findOne[models.Product](ctx, s.col(colProducts), bson.M{"_id": id, "deletedAt": notDeleted})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.ErrProductNotFound, "product %s not found", id.Hex())
	}
	return p, nil
}

// Products returns the live products among ids. Missing ids are left out.
func (s *Store) Products(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	cursor, err := s.col(colProducts).Find(ctx, bson.M{"_id": bson.M{"$in": ids}, "deletedAt": notDeleted})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]models.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// DecrementStock takes qty units only while stock covers them.
func (s *Store) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	res, err := s.col(colProducts).UpdateOne(ctx,
		bson.M{"_id": id, "deletedAt": notDeleted, "stock": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"stock": -qty}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	d, err := findOne[models.Discount](ctx, s.col(colDiscounts), bson.M{"code": code, "deletedAt": notDeleted})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.New(apperr.ErrDiscountNotFound, "discount %s not found", code)
	}
	return d, nil
}

// RedeemDiscount increments usageCount while it is below usageLimit.
func (s *Store) RedeemDiscount(ctx context.Context, id primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"_id":       id,
		"deletedAt": notDeleted,
		"$or": bson.A{
			bson.M{"usageLimit": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usageCount", "$usageLimit"}}},
		},
	}
	res, err := s.col(colDiscounts).UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"usageCount": 1}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
