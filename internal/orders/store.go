package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger holds the per-product stock and reservation counters. Every method
// is a single conditional update, never read-then-write.
type Ledger interface {
	// TryReserve raises reserved_quantity by qty when at least qty units are
	// available, else returns *InsufficientStockError.
	TryReserve(ctx context.Context, productID string, qty int) error
	// Release lowers reserved_quantity by qty, clamped at zero, and returns
	// the quantity actually released.
	Release(ctx context.Context, productID string, qty int) (int, error)
	// Commit lowers both counters by qty or returns *InconsistentStateError.
	Commit(ctx context.Context, productID string, qty int) error
}

// ReservationBook records which order owns which hold.
type ReservationBook interface {
	// HeldReservations returns the order's RESERVED holds ordered by product
	// id, locking them for the rest of the transaction.
	HeldReservations(ctx context.Context, orderID string) ([]Reservation, error)
	// AddHold adjusts the order's hold on a product by delta.
	AddHold(ctx context.Context, orderID, productID string, delta int) error
	// SettleHolds moves every RESERVED hold of the order to status to.
	SettleHolds(ctx context.Context, orderID string, to ReservationStatus) (int, error)
	// HeldByProduct sums RESERVED holds per product.
	HeldByProduct(ctx context.Context) (map[string]int, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	ProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) error
	// UpdateProduct rejects a stock quantity below the reserved quantity.
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type OrderFilter struct {
	CustomerID      string
	Statuses        []Status
	ExcludeStatuses []Status
	CreatedFrom     time.Time // inclusive, zero = unbounded
	CreatedTo       time.Time // exclusive, zero = unbounded
	Limit           int
}

type OrderBook interface {
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	// LockOrder loads the order and holds its row lock until the
	// transaction ends.
	LockOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	// UpdateStatusIf moves the order to status to only if it is still in
	// status from.
	UpdateStatusIf(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
	ExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	UpdateItemQuantity(ctx context.Context, itemID string, qty int) error
	DeleteItem(ctx context.Context, itemID string) error
	SetTotal(ctx context.Context, orderID string, total decimal.Decimal, at time.Time) error
}

type PaymentFilter struct {
	OrderIDs []string
	From     time.Time
	To       time.Time
	Limit    int
}

type PaymentBook interface {
	InsertPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)
}

type ProfileBook interface {
	UpsertProfile(ctx context.Context, p Profile) error
	ProfilesByIDs(ctx context.Context, ids []string) (map[string]Profile, error)
}

type Tx interface {
	Ledger
	ReservationBook
	Catalog
	OrderBook
	PaymentBook
	ProfileBook
}

// Store runs fn inside one atomic unit. Nothing fn did is visible to other
// callers unless fn returns nil.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
