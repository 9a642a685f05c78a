package catalog

import (
	"context"
	"testing"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/inventory"
	"github.com/ariefcatur/khata-store/internal/lifecycle"
	"github.com/ariefcatur/khata-store/internal/memstore"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	shop     = auth.Identity{UserID: "s", Role: auth.RoleShopkeeper}
	customer = auth.Identity{UserID: "c", Role: auth.RoleCustomer}
)

func boolPtr(b bool) *bool { return &b }

func TestProductCRUD(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memstore.New(), zap.NewNop())

	_, err := svc.CreateProduct(ctx, customer, ProductInput{Name: "x"})
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = svc.CreateProduct(ctx, shop, ProductInput{Name: " "})
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = svc.CreateProduct(ctx, shop, ProductInput{Name: "x", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, orders.ErrValidation)

	dal, err := svc.CreateProduct(ctx, shop, ProductInput{Name: " Toor Dal ", Price: decimal.RequireFromString("120.50"), StockQuantity: 8})
	require.NoError(t, err)
	assert.Equal(t, "Toor Dal", dal.Name)
	assert.True(t, dal.IsActive)

	hidden, err := svc.CreateProduct(ctx, shop, ProductInput{Name: "Old Soap", Price: decimal.NewFromInt(20), IsActive: boolPtr(false)})
	require.NoError(t, err)

	visible, err := svc.ListProducts(ctx, customer)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, dal.ID, visible[0].ID)

	all, err := svc.ListProducts(ctx, shop)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.GetProduct(ctx, customer, hidden.ID)
	assert.ErrorIs(t, err, orders.ErrProductNotFound)
	_, err = svc.GetProduct(ctx, shop, hidden.ID)
	assert.NoError(t, err)

	upd, err := svc.UpdateProduct(ctx, shop, dal.ID, ProductInput{Name: "Toor Dal 1kg", Price: decimal.NewFromInt(125), StockQuantity: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, upd.StockQuantity)
	assert.True(t, upd.IsActive)

	_, err = svc.UpdateProduct(ctx, shop, "missing", ProductInput{Name: "n"})
	assert.ErrorIs(t, err, orders.ErrProductNotFound)

	require.NoError(t, svc.DeleteProduct(ctx, shop, hidden.ID))
	assert.ErrorIs(t, svc.DeleteProduct(ctx, shop, hidden.ID), orders.ErrProductNotFound)
}

func TestStockCannotDropBelowReserved(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewService(store, zap.NewNop())
	ctl := lifecycle.NewController(store, inventory.NewService(zap.NewNop()), zap.NewNop())

	p, err := svc.CreateProduct(ctx, shop, ProductInput{Name: "Atta", Price: decimal.NewFromInt(40), StockQuantity: 10})
	require.NoError(t, err)
	_, err = ctl.PlaceOrder(ctx, customer, []orders.ItemQty{{ProductID: p.ID, Qty: 6}})
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, shop, p.ID, ProductInput{Name: "Atta", Price: decimal.NewFromInt(40), StockQuantity: 5})
	assert.ErrorIs(t, err, orders.ErrValidation)

	_, err = svc.UpdateProduct(ctx, shop, p.ID, ProductInput{Name: "Atta", Price: decimal.NewFromInt(40), StockQuantity: 6})
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteProduct(ctx, shop, p.ID), orders.ErrProductInUse)
}

func TestUpsertProfile(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewService(store, zap.NewNop())

	_, err := svc.UpsertProfile(ctx, auth.Identity{}, ProfileInput{FullName: "A"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = svc.UpsertProfile(ctx, customer, ProfileInput{})
	assert.ErrorIs(t, err, orders.ErrValidation)

	p, err := svc.UpsertProfile(ctx, customer, ProfileInput{FullName: " Ravi ", Phone: "98450"})
	require.NoError(t, err)
	assert.Equal(t, orders.Profile{ID: "c", FullName: "Ravi", Phone: "98450", Role: "customer"}, p)

	_, err = svc.UpsertProfile(ctx, customer, ProfileInput{FullName: "Ravi K"})
	require.NoError(t, err)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		got, err := tx.ProfilesByIDs(ctx, []string{"c"})
		assert.Equal(t, "Ravi K", got["c"].FullName)
		return err
	}))
}
