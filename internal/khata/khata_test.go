package khata

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/catalog"
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
	shop  = auth.Identity{UserID: "shop", Role: auth.RoleShopkeeper}
	ravi  = auth.Identity{UserID: "ravi", Role: auth.RoleCustomer}
	meena = auth.Identity{UserID: "meena", Role: auth.RoleCustomer}
	sita  = auth.Identity{UserID: "sita", Role: auth.RoleCustomer}
)

type book struct {
	store   *memstore.Store
	now     time.Time
	ctl     *lifecycle.Controller
	reports *Reports
}

func newBook(t *testing.T, loc *time.Location) *book {
	t.Helper()
	b := &book{store: memstore.New(), now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return b.now }
	b.ctl = lifecycle.NewController(b.store, inventory.NewService(zap.NewNop()), zap.NewNop(),
		lifecycle.WithClock(clock))
	b.reports = NewReports(b.store, WithLocation(loc), WithClock(clock))
	b.store.Seed(
		orders.Product{ID: "rice", Name: "Rice 1kg", Price: decimal.NewFromInt(50), IsActive: true, StockQuantity: 100},
		orders.Product{ID: "oil", Name: "Mustard Oil", Price: decimal.NewFromInt(120), IsActive: true, StockQuantity: 100},
	)
	return b
}

func (b *book) place(t *testing.T, at time.Time, who auth.Identity, productID string, n int) orders.Order {
	t.Helper()
	b.now = at
	o, err := b.ctl.PlaceOrder(context.Background(), who, []orders.ItemQty{{ProductID: productID, Qty: n}})
	require.NoError(t, err)
	return o
}

func (b *book) pay(t *testing.T, orderID string, amount int64) {
	t.Helper()
	_, _, err := b.ctl.RecordPayment(context.Background(), shop, orderID, decimal.NewFromInt(amount), "cash")
	require.NoError(t, err)
}

// seedLedger builds two days of trade:
//
//	day 1: ravi 100 (paid 40), meena 120 (unpaid), ravi 50 (cancelled)
//	day 2: meena 200 (paid in full)
func seedLedger(t *testing.T, b *book) (raviOpen, meenaOil, meenaPaid orders.Order) {
	t.Helper()
	ctx := context.Background()
	_, err := catalog.NewService(b.store, zap.NewNop()).UpsertProfile(ctx, ravi, catalog.ProfileInput{FullName: "Ravi Kumar", Phone: "98100"})
	require.NoError(t, err)
	_, err = catalog.NewService(b.store, zap.NewNop()).UpsertProfile(ctx, sita, catalog.ProfileInput{FullName: "Sita Devi"})
	require.NoError(t, err)

	raviOpen = b.place(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ravi, "rice", 2)
	b.pay(t, raviOpen.ID, 40)
	meenaOil = b.place(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), meena, "oil", 1)
	cancelled := b.place(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), ravi, "rice", 1)
	_, err = b.ctl.CancelOrder(ctx, ravi, cancelled.ID)
	require.NoError(t, err)

	meenaPaid = b.place(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), meena, "rice", 4)
	b.pay(t, meenaPaid.ID, 200)
	return raviOpen, meenaOil, meenaPaid
}

func TestPaymentStatus(t *testing.T) {
	d := decimal.NewFromInt
	assert.Equal(t, StatusUnpaid, PaymentStatus(d(100), d(0)))
	assert.Equal(t, StatusPartial, PaymentStatus(d(100), d(40)))
	assert.Equal(t, StatusPaid, PaymentStatus(d(100), d(100)))
}

func TestReportsRequireShopkeeper(t *testing.T) {
	ctx := context.Background()
	r := newBook(t, time.UTC).reports

	_, err := r.OutstandingDues(ctx, ravi)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = r.DateWise(ctx, ravi, r.Today())
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = r.CustomerWise(ctx, ravi, "ravi")
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = r.Customers(ctx, auth.Identity{})
	assert.Error(t, err)
}

func TestOutstandingDues(t *testing.T) {
	b := newBook(t, time.UTC)
	raviOpen, meenaOil, _ := seedLedger(t, b)

	dues, err := b.reports.OutstandingDues(context.Background(), shop)
	require.NoError(t, err)
	require.Len(t, dues, 2)

	assert.Equal(t, "meena", dues[0].ID)
	assert.Equal(t, "Unknown", dues[0].Name)
	assert.True(t, decimal.NewFromInt(120).Equal(dues[0].TotalDue))
	require.Len(t, dues[0].Orders, 1)
	assert.Equal(t, meenaOil.ID, dues[0].Orders[0].OrderID)
	assert.Equal(t, StatusUnpaid, dues[0].Orders[0].Status)

	assert.Equal(t, "Ravi Kumar", dues[1].Name)
	assert.Equal(t, "98100", dues[1].Phone)
	assert.True(t, decimal.NewFromInt(60).Equal(dues[1].TotalDue))
	require.Len(t, dues[1].Orders, 1)
	assert.Equal(t, raviOpen.ID, dues[1].Orders[0].OrderID)
	assert.Equal(t, StatusPartial, dues[1].Orders[0].Status)
}

func TestDateWise(t *testing.T) {
	b := newBook(t, time.UTC)
	raviOpen, meenaOil, meenaPaid := seedLedger(t, b)
	ctx := context.Background()

	day, err := b.reports.ParseDay("2024-03-01")
	require.NoError(t, err)
	rep, err := b.reports.DateWise(ctx, shop, day)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01", rep.Date)
	assert.Equal(t, 2, rep.Summary.TotalOrders)
	assert.True(t, decimal.NewFromInt(220).Equal(rep.Summary.TotalAmount))
	assert.True(t, decimal.NewFromInt(40).Equal(rep.Summary.TotalCollected))
	assert.True(t, decimal.NewFromInt(180).Equal(rep.Summary.TotalPending))
	require.Len(t, rep.Orders, 2)
	assert.Equal(t, raviOpen.ID, rep.Orders[0].OrderID, "oldest first")
	assert.Equal(t, meenaOil.ID, rep.Orders[1].OrderID)
	require.Len(t, rep.Orders[0].Items, 1)
	assert.Equal(t, "Rice 1kg", rep.Orders[0].Items[0].ProductName)
	assert.Equal(t, "pc", rep.Orders[0].Items[0].Unit)

	next, err := b.reports.DateWise(ctx, shop, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	assert.Equal(t, meenaPaid.ID, next.Orders[0].OrderID)
	assert.Equal(t, StatusPaid, next.Orders[0].Status)
	assert.True(t, next.Summary.TotalPending.IsZero())

	empty, err := b.reports.DateWise(ctx, shop, day.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Zero(t, empty.Summary.TotalOrders)
	assert.NotNil(t, empty.Orders)

	_, err = b.reports.ParseDay("01/03/2024")
	assert.ErrorIs(t, err, orders.ErrValidation)
}

func TestDuesForDay(t *testing.T) {
	b := newBook(t, time.UTC)
	raviOpen, meenaOil, _ := seedLedger(t, b)
	ctx := context.Background()

	day, err := b.reports.ParseDay("2024-03-01")
	require.NoError(t, err)
	dues, err := b.reports.DuesForDay(ctx, shop, day)
	require.NoError(t, err)
	require.Len(t, dues, 2)
	assert.Equal(t, meenaOil.ID, dues[0].OrderID, "newest first")
	assert.Equal(t, raviOpen.ID, dues[1].OrderID)
	assert.True(t, decimal.NewFromInt(60).Equal(dues[1].DueAmount))

	paidDay, err := b.reports.DuesForDay(ctx, shop, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, paidDay)
}

func TestCustomerWise(t *testing.T) {
	b := newBook(t, time.UTC)
	raviOpen, _, _ := seedLedger(t, b)
	ctx := context.Background()

	rep, err := b.reports.CustomerWise(ctx, shop, "ravi")
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", rep.Customer.Name)
	assert.Equal(t, 1, rep.Summary.TotalOrders, "cancelled order left out")
	assert.True(t, decimal.NewFromInt(100).Equal(rep.Summary.TotalAmount))
	assert.True(t, decimal.NewFromInt(40).Equal(rep.Summary.TotalPaid))
	assert.True(t, decimal.NewFromInt(60).Equal(rep.Summary.OutstandingBalance))
	require.Len(t, rep.Orders, 1)
	assert.Equal(t, raviOpen.ID, rep.Orders[0].OrderID)
	require.Len(t, rep.Orders[0].Payments, 1)
	assert.Equal(t, "cash", rep.Orders[0].Payments[0].Method)

	quiet, err := b.reports.CustomerWise(ctx, shop, "sita")
	require.NoError(t, err)
	assert.Equal(t, "Sita Devi", quiet.Customer.Name)
	assert.Empty(t, quiet.Orders)
	assert.True(t, quiet.Summary.OutstandingBalance.IsZero())

	_, err = b.reports.CustomerWise(ctx, shop, "nobody")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	_, err = b.reports.CustomerWise(ctx, shop, "")
	assert.ErrorIs(t, err, orders.ErrValidation)
}

func TestCustomers(t *testing.T) {
	b := newBook(t, time.UTC)
	seedLedger(t, b)

	got, err := b.reports.Customers(context.Background(), shop)
	require.NoError(t, err)
	require.Len(t, got, 2, "profiles without orders are not listed")
	assert.Equal(t, "Ravi Kumar", got[0].Name)
	assert.Equal(t, "Unknown", got[1].Name)
	assert.Equal(t, "meena", got[1].ID)
}

func TestDaysFollowShopTimeZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	b := newBook(t, ist)
	// 20:00 UTC on the 1st is already the 2nd in the shop.
	late := b.place(t, time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), ravi, "rice", 1)
	ctx := context.Background()

	first, err := b.reports.ParseDay("2024-03-01")
	require.NoError(t, err)
	rep, err := b.reports.DateWise(ctx, shop, first)
	require.NoError(t, err)
	assert.Empty(t, rep.Orders)

	rep, err = b.reports.DateWise(ctx, shop, first.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rep.Orders, 1)
	assert.Equal(t, late.ID, rep.Orders[0].OrderID)

	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, ist), b.reports.Today())
}
