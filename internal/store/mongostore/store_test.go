package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/discount"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/payment"
)

var (
	_ cart.Repository      = (*Store)(nil)
	_ cart.Catalog         = (*Store)(nil)
	_ checkout.Repository  = (*Store)(nil)
	_ checkout.CartStore   = (*Store)(nil)
	_ checkout.Inventory   = (*Store)(nil)
	_ checkout.OrderWriter = (*Store)(nil)
	_ checkout.Transactor  = (*Store)(nil)
	_ discount.Repository  = (*Store)(nil)
	_ orders.Repository    = (*Store)(nil)
	_ payment.Repository   = (*Store)(nil)
)

// testDB connects to MONGO_TEST_URI. Transactions need a replica set.
func testDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("storefront_test_" + primitive.NewObjectID().Hex())
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestGuardedWritesAgainstMongo(t *testing.T) {
	db := testDB(t)
	s := New(db)
	ctx := context.Background()

	p := models.Product{ID: primitive.NewObjectID(), Title: "Lokum", Price: 1500, Stock: 2, IsActive: true}
	_, err := db.Collection(colProducts).InsertOne(ctx, p)
	require.NoError(t, err)

	ok, err := s.DecrementStock(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.DecrementStock(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	limit := 1
	d := models.Discount{ID: primitive.NewObjectID(), Code: "ONCE", Type: models.DiscountFixedAmount, Value: 100, UsageLimit: &limit}
	_, err = db.Collection(colDiscounts).InsertOne(ctx, d)
	require.NoError(t, err)
	ok, err = s.RedeemDiscount(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RedeemDiscount(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	c := &models.Cart{SessionID: "s1", Status: models.CartActive, Currency: "TRY"}
	require.NoError(t, s.CreateCart(ctx, c))
	found, err := s.FindActiveCartBySession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, c.ID, found.ID)

	ok, err = s.TransitionCart(ctx, c.ID, models.CartActive, models.CartConverted, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.TransitionCart(ctx, c.ID, models.CartActive, models.CartConverted, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.UpdateOrderStatus(ctx, primitive.NewObjectID(), []models.OrderStatus{models.OrderPaid}, models.StatusChange{To: models.OrderShipped})
	assert.Error(t, err)
}
