// Package memstore is an in-process orders.Store. Each WithTx works on a
// private copy of the state and swaps it in only when fn succeeds, so a
// failed unit leaves nothing behind.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/shopspring/decimal"
)

type holdKey struct{ orderID, productID string }

type state struct {
	products  map[string]orders.Product
	orders    map[string]orders.Order // Items kept, PaidAmount derived
	itemOrder map[string]string       // item id -> order id
	holds     map[holdKey]orders.Reservation
	payments  []orders.Payment
	profiles  map[string]orders.Profile
}

func newState() *state {
	return &state{
		products:  map[string]orders.Product{},
		orders:    map[string]orders.Order{},
		itemOrder: map[string]string{},
		holds:     map[holdKey]orders.Reservation{},
		profiles:  map[string]orders.Profile{},
	}
}

func (s *state) clone() *state {
	c := &state{
		products:  make(map[string]orders.Product, len(s.products)),
		orders:    make(map[string]orders.Order, len(s.orders)),
		itemOrder: make(map[string]string, len(s.itemOrder)),
		holds:     make(map[holdKey]orders.Reservation, len(s.holds)),
		payments:  append([]orders.Payment(nil), s.payments...),
		profiles:  make(map[string]orders.Profile, len(s.profiles)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]orders.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.itemOrder {
		c.itemOrder[k] = v
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	cur *state
}

func New() *Store {
	return &Store{cur: newState()}
}

// WithTx serializes units of work. The lock is held for the whole of fn.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.cur.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.cur = work
	return nil
}

// Seed inserts products directly, for tests and the memory driver.
func (s *Store) Seed(products ...orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.cur.products[p.ID] = p
	}
}

type tx struct{ st *state }

var _ orders.Store = (*Store)(nil)
var _ orders.Tx = (*tx)(nil)

// Ledger

func (t *tx) TryReserve(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return &orders.ValidationError{Field: "qty", Msg: "must be positive"}
	}
	p, ok := t.st.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	if p.Available() < qty {
		return &orders.InsufficientStockError{ProductID: productID, ProductName: p.Name, Requested: qty, Available: p.Available()}
	}
	p.ReservedQuantity += qty
	t.st.products[productID] = p
	return nil
}

func (t *tx) Release(_ context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, nil
	}
	p, ok := t.st.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	n := min(p.ReservedQuantity, qty)
	p.ReservedQuantity -= n
	t.st.products[productID] = p
	return n, nil
}

func (t *tx) Commit(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	p, ok := t.st.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	if p.ReservedQuantity < qty || p.StockQuantity < qty {
		return &orders.InconsistentStateError{ProductID: productID, Op: "commit", Qty: qty, Stock: p.StockQuantity, Reserved: p.ReservedQuantity}
	}
	p.StockQuantity -= qty
	p.ReservedQuantity -= qty
	t.st.products[productID] = p
	return nil
}

// Reservation book

func (t *tx) HeldReservations(_ context.Context, orderID string) ([]orders.Reservation, error) {
	var out []orders.Reservation
	for k, r := range t.st.holds {
		if k.orderID == orderID && r.Status == orders.ReservationHeld {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (t *tx) AddHold(_ context.Context, orderID, productID string, delta int) error {
	k := holdKey{orderID, productID}
	r, ok := t.st.holds[k]
	if !ok {
		r = orders.Reservation{OrderID: orderID, ProductID: productID}
	}
	r.Qty = max(r.Qty+delta, 0)
	r.Status = orders.ReservationHeld
	if r.Qty == 0 {
		r.Status = orders.ReservationReleased
	}
	r.UpdatedAt = time.Now().UTC()
	t.st.holds[k] = r
	return nil
}

func (t *tx) SettleHolds(_ context.Context, orderID string, to orders.ReservationStatus) (int, error) {
	n := 0
	for k, r := range t.st.holds {
		if k.orderID == orderID && r.Status == orders.ReservationHeld {
			r.Status = to
			r.UpdatedAt = time.Now().UTC()
			t.st.holds[k] = r
			n++
		}
	}
	return n, nil
}

func (t *tx) HeldByProduct(_ context.Context) (map[string]int, error) {
	out := map[string]int{}
	for _, r := range t.st.holds {
		if r.Status == orders.ReservationHeld {
			out[r.ProductID] += r.Qty
		}
	}
	return out, nil
}

// Catalog

func (t *tx) GetProduct(_ context.Context, id string) (orders.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return orders.Product{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	return p, nil
}

func (t *tx) ProductsByIDs(_ context.Context, ids []string) (map[string]orders.Product, error) {
	out := make(map[string]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *tx) ListProducts(_ context.Context, activeOnly bool) ([]orders.Product, error) {
	var out []orders.Product
	for _, p := range t.st.products {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) CreateProduct(_ context.Context, p orders.Product) error {
	if _, ok := t.st.products[p.ID]; ok {
		return &orders.ValidationError{Field: "id", Msg: "product already exists"}
	}
	p.ReservedQuantity = 0
	p.UpdatedAt = p.CreatedAt
	t.st.products[p.ID] = p
	return nil
}

func (t *tx) UpdateProduct(_ context.Context, p orders.Product) error {
	cur, ok := t.st.products[p.ID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, p.ID)
	}
	if p.StockQuantity < cur.ReservedQuantity {
		return &orders.ValidationError{
			Field: "stock_quantity",
			Msg:   fmt.Sprintf("cannot be below reserved quantity %d", cur.ReservedQuantity),
		}
	}
	cur.Name = p.Name
	cur.Price = p.Price
	cur.IsActive = p.IsActive
	cur.StockQuantity = p.StockQuantity
	cur.UpdatedAt = p.UpdatedAt
	t.st.products[p.ID] = cur
	return nil
}

func (t *tx) DeleteProduct(_ context.Context, id string) error {
	if _, ok := t.st.products[id]; !ok {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	for _, o := range t.st.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return fmt.Errorf("%w: %s", orders.ErrProductInUse, id)
			}
		}
	}
	for k := range t.st.holds {
		if k.productID == id {
			return fmt.Errorf("%w: %s", orders.ErrProductInUse, id)
		}
	}
	delete(t.st.products, id)
	return nil
}

// Order book

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return &orders.ValidationError{Field: "id", Msg: "order already exists"}
	}
	o.UpdatedAt = o.CreatedAt
	o.PaidAmount = decimal.Zero
	items := make([]orders.OrderItem, len(o.Items))
	for i, it := range o.Items {
		if _, ok := t.st.products[it.ProductID]; !ok {
			return fmt.Errorf("%w: %s", orders.ErrProductNotFound, it.ProductID)
		}
		it.OrderID = o.ID
		items[i] = it
		t.st.itemOrder[it.ID] = o.ID
	}
	o.Items = items
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) GetOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	return t.view(o), nil
}

// LockOrder needs no row lock here; the whole unit is already exclusive.
func (t *tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.GetOrder(ctx, id)
}

// view returns a detached copy with product names and paid amount filled.
func (t *tx) view(o orders.Order) orders.Order {
	items := make([]orders.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.ProductName = t.st.products[it.ProductID].Name
		items[i] = it
	}
	o.Items = items
	paid := decimal.Zero
	for _, p := range t.st.payments {
		if p.OrderID == o.ID && p.Status == orders.PaymentCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	o.PaidAmount = paid
	return o
}

func (t *tx) ListOrders(_ context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range t.st.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, o.Status) {
			continue
		}
		if containsStatus(f.ExcludeStatuses, o.Status) {
			continue
		}
		if !f.CreatedFrom.IsZero() && o.CreatedAt.Before(f.CreatedFrom) {
			continue
		}
		if !f.CreatedTo.IsZero() && !o.CreatedAt.Before(f.CreatedTo) {
			continue
		}
		out = append(out, t.view(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsStatus(ss []orders.Status, s orders.Status) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func (t *tx) UpdateStatusIf(_ context.Context, id string, from, to orders.Status, at time.Time) (bool, error) {
	o, ok := t.st.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	t.st.orders[id] = o
	return true, nil
}

func (t *tx) ExpiredPendingIDs(_ context.Context, now time.Time, limit int) ([]string, error) {
	var due []orders.Order
	for _, o := range t.st.orders {
		if o.Status == orders.StatusPending && o.ExpiresAt.Before(now) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ExpiresAt.Equal(due[j].ExpiresAt) {
			return due[i].ExpiresAt.Before(due[j].ExpiresAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i, o := range due {
		ids[i] = o.ID
	}
	return ids, nil
}

func (t *tx) UpdateItemQuantity(_ context.Context, itemID string, qty int) error {
	orderID, ok := t.st.itemOrder[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrItemNotFound, itemID)
	}
	o := t.st.orders[orderID]
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			o.Items[i].Quantity = qty
		}
	}
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) DeleteItem(_ context.Context, itemID string) error {
	orderID, ok := t.st.itemOrder[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrItemNotFound, itemID)
	}
	o := t.st.orders[orderID]
	kept := o.Items[:0]
	for _, it := range o.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	o.Items = kept
	t.st.orders[orderID] = o
	delete(t.st.itemOrder, itemID)
	return nil
}

func (t *tx) SetTotal(_ context.Context, orderID string, total decimal.Decimal, at time.Time) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
	}
	o.TotalAmount = total
	o.UpdatedAt = at
	t.st.orders[orderID] = o
	return nil
}

// Payments and profiles

func (t *tx) InsertPayment(_ context.Context, p orders.Payment) error {
	if _, ok := t.st.orders[p.OrderID]; !ok {
		return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, p.OrderID)
	}
	t.st.payments = append(t.st.payments, p)
	return nil
}

func (t *tx) ListPayments(_ context.Context, f orders.PaymentFilter) ([]orders.Payment, error) {
	var out []orders.Payment
	for _, p := range t.st.payments {
		if len(f.OrderIDs) > 0 && !containsString(f.OrderIDs, p.OrderID) {
			continue
		}
		if !f.From.IsZero() && p.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !p.CreatedAt.Before(f.To) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func (t *tx) UpsertProfile(_ context.Context, p orders.Profile) error {
	t.st.profiles[p.ID] = p
	return nil
}

func (t *tx) ProfilesByIDs(_ context.Context, ids []string) (map[string]orders.Profile, error) {
	out := make(map[string]orders.Profile, len(ids))
	for _, id := range ids {
		if p, ok := t.st.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
