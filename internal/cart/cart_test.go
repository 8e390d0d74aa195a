package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/store/memstore"
)

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return NewService(st, st, "TRY", clock, logging.Discard()), st
}

func TestAddItemSnapshotsProduct(t *testing.T) {
	svc, st := newService(t)
	sale := int64(7500)
	p := st.PutProduct(models.Product{Title: "Kahve", SKU: "K-1", Price: 10000, SalePrice: &sale, Stock: 5, IsActive: true, CategoryID: "food"})

	c, err := svc.AddItem(context.Background(), Identity{SessionID: "s1"}, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	item := c.Items[0]
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, int64(10000), item.UnitPrice)
	assert.Equal(t, int64(7500), *item.SalePrice)
	assert.Equal(t, "Kahve", item.Title)
	assert.Equal(t, 5, item.Stock)
	assert.Equal(t, "TRY", c.Currency)

	c, err = svc.AddItem(context.Background(), Identity{SessionID: "s1"}, p.ID, 1)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestAddItemRejectsMoreThanStock(t *testing.T) {
	svc, st := newService(t)
	p := st.PutProduct(models.Product{Title: "Çay", Price: 500, Stock: 2, IsActive: true})

	_, err := svc.AddItem(context.Background(), Identity{SessionID: "s1"}, p.ID, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrOutOfStock))
}

func TestAddItemUnknownOrInactiveProduct(t *testing.T) {
	svc, st := newService(t)
	inactive := st.PutProduct(models.Product{Title: "Eski", Price: 500, Stock: 2})

	_, err := svc.AddItem(context.Background(), Identity{SessionID: "s1"}, primitive.NewObjectID(), 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)

	_, err = svc.AddItem(context.Background(), Identity{SessionID: "s1"}, inactive.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
}

func TestFindDoesNotCreate(t *testing.T) {
	svc, _ := newService(t)
	c, err := svc.Find(context.Background(), Identity{SessionID: "nobody"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestUpdateQtyZeroRemovesAndMutationsRefreshSnapshots(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	id := Identity{SessionID: "s1"}
	a := st.PutProduct(models.Product{Title: "A", Price: 1000, Stock: 10, IsActive: true})
	b := st.PutProduct(models.Product{Title: "B", Price: 2000, Stock: 10, IsActive: true})

	_, err := svc.AddItem(ctx, id, a.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, id, b.ID, 1)
	require.NoError(t, err)

	a.Price = 1200
	st.PutProduct(a)

	c, err := svc.UpdateQty(ctx, id, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, a.ID, c.Items[0].ProductID)
	assert.Equal(t, int64(1200), c.Items[0].UnitPrice)

	c, err = svc.Clear(ctx, id)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestResolveUserCartWinsOverGuestCart(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	user := primitive.NewObjectID()
	p := st.PutProduct(models.Product{Title: "A", Price: 1000, Stock: 10, IsActive: true})

	userCart, err := svc.AddItem(ctx, Identity{UserID: &user}, p.ID, 1)
	require.NoError(t, err)
	guestCart, err := svc.AddItem(ctx, Identity{SessionID: "s1"}, p.ID, 4)
	require.NoError(t, err)

	c, err := svc.Resolve(ctx, Identity{UserID: &user, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, userCart.ID, c.ID)
	assert.Equal(t, 1, c.Items[0].Quantity)

	abandoned, err := st.GetCart(ctx, guestCart.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CartAbandoned, abandoned.Status)
}

func TestResolveAdoptsGuestCartWhenUserHasNone(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	user := primitive.NewObjectID()
	p := st.PutProduct(models.Product{Title: "A", Price: 1000, Stock: 10, IsActive: true})

	guestCart, err := svc.AddItem(ctx, Identity{SessionID: "s1"}, p.ID, 2)
	require.NoError(t, err)

	c, err := svc.Resolve(ctx, Identity{UserID: &user, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, guestCart.ID, c.ID)
	require.NotNil(t, c.UserID)
	assert.Equal(t, user, *c.UserID)
}

func TestConvertedCartIsNotResolved(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	p := st.PutProduct(models.Product{Title: "A", Price: 1000, Stock: 10, IsActive: true})

	c, err := svc.AddItem(ctx, Identity{SessionID: "s1"}, p.ID, 1)
	require.NoError(t, err)
	ok, err := st.TransitionCart(ctx, c.ID, models.CartActive, models.CartConverted, nil)
	require.NoError(t, err)
	require.True(t, ok)

	fresh, err := svc.Resolve(ctx, Identity{SessionID: "s1"})
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, fresh.ID)
	assert.True(t, fresh.IsEmpty())
}
