// Package khata builds the shop's credit ledger reports: who owes what, per
// customer and per day. Cancelled and expired orders never count.
package khata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/shopspring/decimal"
)

var ErrCustomerNotFound = errors.New("customer not found")

const (
	StatusUnpaid  = "unpaid"
	StatusPartial = "partial"
	StatusPaid    = "paid"

	unknownName = "Unknown"
	defaultUnit = "pc"
)

var closed = []orders.Status{orders.StatusCancelled, orders.StatusExpired}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Line struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

type PaymentLine struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

type OrderLine struct {
	OrderID       string          `json:"order_id"`
	OrderDate     time.Time       `json:"order_date"`
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Items         []Line          `json:"items,omitempty"`
	Payments      []PaymentLine   `json:"payments,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	DueAmount     decimal.Decimal `json:"due_amount"`
	Status        string          `json:"status"`
}

type CustomerDues struct {
	Customer
	TotalDue decimal.Decimal `json:"total_due"`
	Orders   []OrderLine     `json:"orders"`
}

type DaySummary struct {
	TotalOrders    int             `json:"total_orders"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalCollected decimal.Decimal `json:"total_collected"`
	TotalPending   decimal.Decimal `json:"total_pending"`
}

type DateWiseReport struct {
	Date    string      `json:"date"`
	Summary DaySummary  `json:"summary"`
	Orders  []OrderLine `json:"orders"`
}

type CustomerSummary struct {
	TotalOrders        int             `json:"total_orders"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
}

type CustomerReport struct {
	Customer Customer        `json:"customer"`
	Summary  CustomerSummary `json:"summary"`
	Orders   []OrderLine     `json:"orders"`
}

// PaymentStatus labels an order by how much of it has been paid.
func PaymentStatus(total, paid decimal.Decimal) string {
	switch {
	case paid.IsZero():
		return StatusUnpaid
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	default:
		return StatusPartial
	}
}

type Reports struct {
	store orders.Store
	loc   *time.Location
	now   func() time.Time
}

type Option func(*Reports)

func WithLocation(loc *time.Location) Option {
	return func(r *Reports) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option { return func(r *Reports) { r.now = now } }

func NewReports(store orders.Store, opts ...Option) *Reports {
	r := &Reports{store: store, loc: time.UTC, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ParseDay reads a YYYY-MM-DD date in the shop's time zone.
func (r *Reports) ParseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, r.loc)
	if err != nil {
		return time.Time{}, &orders.ValidationError{Field: "date", Msg: "expected YYYY-MM-DD"}
	}
	return d, nil
}

// Today is the start of the current shop-local day.
func (r *Reports) Today() time.Time {
	y, m, d := r.now().In(r.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

type snapshot struct {
	orders   []orders.Order
	profiles map[string]orders.Profile
	payments map[string][]orders.Payment // completed only
}

func (r *Reports) load(ctx context.Context, f orders.OrderFilter, withPayments bool) (snapshot, error) {
	var snap snapshot
	f.ExcludeStatuses = closed
	err := r.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		list, err := tx.ListOrders(ctx, f)
		if err != nil {
			return err
		}
		snap.orders = list

		ids := make([]string, 0, len(list))
		customerIDs := make([]string, 0, len(list))
		seen := map[string]bool{}
		for _, o := range list {
			ids = append(ids, o.ID)
			if !seen[o.CustomerID] {
				seen[o.CustomerID] = true
				customerIDs = append(customerIDs, o.CustomerID)
			}
		}
		if snap.profiles, err = tx.ProfilesByIDs(ctx, customerIDs); err != nil {
			return err
		}
		snap.payments = map[string][]orders.Payment{}
		if !withPayments || len(ids) == 0 {
			return nil
		}
		pays, err := tx.ListPayments(ctx, orders.PaymentFilter{OrderIDs: ids})
		if err != nil {
			return err
		}
		for _, p := range pays {
			if p.Status == orders.PaymentCompleted {
				snap.payments[p.OrderID] = append(snap.payments[p.OrderID], p)
			}
		}
		return nil
	})
	return snap, err
}

func (s snapshot) customer(id string) Customer {
	c := Customer{ID: id, Name: unknownName}
	if p, ok := s.profiles[id]; ok {
		if p.FullName != "" {
			c.Name = p.FullName
		}
		c.Phone = p.Phone
	}
	return c
}

func (s snapshot) line(o orders.Order, withItems bool) OrderLine {
	c := s.customer(o.CustomerID)
	l := OrderLine{
		OrderID:       o.ID,
		OrderDate:     o.CreatedAt,
		CustomerID:    o.CustomerID,
		CustomerName:  c.Name,
		CustomerPhone: c.Phone,
		TotalAmount:   o.TotalAmount,
		PaidAmount:    o.PaidAmount,
		DueAmount:     o.DueAmount(),
		Status:        PaymentStatus(o.TotalAmount, o.PaidAmount),
	}
	if withItems {
		for _, it := range o.Items {
			name := it.ProductName
			if name == "" {
				name = unknownName
			}
			l.Items = append(l.Items, Line{
				ProductName: name,
				Quantity:    it.Quantity,
				Unit:        defaultUnit,
				Price:       it.PriceAtTime,
				Total:       it.LineTotal(),
			})
		}
	}
	for _, p := range s.payments[o.ID] {
		l.Payments = append(l.Payments, PaymentLine{Date: p.CreatedAt, Amount: p.Amount, Method: p.Method})
	}
	return l
}

// OutstandingDues groups every open due by customer, largest total first.
func (r *Reports) OutstandingDues(ctx context.Context, who auth.Identity) ([]CustomerDues, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return nil, err
	}
	snap, err := r.load(ctx, orders.OrderFilter{}, false)
	if err != nil {
		return nil, err
	}
	byCustomer := map[string]*CustomerDues{}
	var out []*CustomerDues
	for _, o := range snap.orders {
		if !o.DueAmount().IsPositive() {
			continue
		}
		cd, ok := byCustomer[o.CustomerID]
		if !ok {
			cd = &CustomerDues{Customer: snap.customer(o.CustomerID), TotalDue: decimal.Zero}
			byCustomer[o.CustomerID] = cd
			out = append(out, cd)
		}
		cd.TotalDue = cd.TotalDue.Add(o.DueAmount())
		cd.Orders = append(cd.Orders, snap.line(o, true))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalDue.GreaterThan(out[j].TotalDue) })

	res := make([]CustomerDues, len(out))
	for i, cd := range out {
		res[i] = *cd
	}
	return res, nil
}

// DuesForDay lists orders created on the given shop-local day that still
// have something due, newest first.
func (r *Reports) DuesForDay(ctx context.Context, who auth.Identity, day time.Time) ([]OrderLine, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return nil, err
	}
	from := day.In(r.loc)
	snap, err := r.load(ctx, orders.OrderFilter{CreatedFrom: from, CreatedTo: from.AddDate(0, 0, 1)}, false)
	if err != nil {
		return nil, err
	}
	out := []OrderLine{}
	for _, o := range snap.orders {
		if o.DueAmount().IsPositive() {
			out = append(out, snap.line(o, false))
		}
	}
	return out, nil
}

// DateWise is the day book: every order of the day, oldest first, with
// what was billed, collected and is still pending.
func (r *Reports) DateWise(ctx context.Context, who auth.Identity, day time.Time) (DateWiseReport, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return DateWiseReport{}, err
	}
	from := day.In(r.loc)
	snap, err := r.load(ctx, orders.OrderFilter{CreatedFrom: from, CreatedTo: from.AddDate(0, 0, 1)}, false)
	if err != nil {
		return DateWiseReport{}, err
	}
	rep := DateWiseReport{
		Date: from.Format(time.DateOnly),
		Summary: DaySummary{
			TotalAmount:    decimal.Zero,
			TotalCollected: decimal.Zero,
			TotalPending:   decimal.Zero,
		},
		Orders: []OrderLine{},
	}
	for i := len(snap.orders) - 1; i >= 0; i-- {
		o := snap.orders[i]
		rep.Summary.TotalOrders++
		rep.Summary.TotalAmount = rep.Summary.TotalAmount.Add(o.TotalAmount)
		rep.Summary.TotalCollected = rep.Summary.TotalCollected.Add(o.PaidAmount)
		rep.Summary.TotalPending = rep.Summary.TotalPending.Add(o.DueAmount())
		rep.Orders = append(rep.Orders, snap.line(o, true))
	}
	return rep, nil
}

// CustomerWise is one customer's khata: every open order with its items and
// completed payments.
func (r *Reports) CustomerWise(ctx context.Context, who auth.Identity, customerID string) (CustomerReport, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return CustomerReport{}, err
	}
	if customerID == "" {
		return CustomerReport{}, &orders.ValidationError{Field: "customerId", Msg: "required"}
	}
	snap, err := r.load(ctx, orders.OrderFilter{CustomerID: customerID}, true)
	if err != nil {
		return CustomerReport{}, err
	}
	if len(snap.orders) == 0 {
		if snap.profiles, err = r.profile(ctx, customerID); err != nil {
			return CustomerReport{}, err
		}
	}

	rep := CustomerReport{
		Customer: snap.customer(customerID),
		Summary: CustomerSummary{
			TotalAmount:        decimal.Zero,
			TotalPaid:          decimal.Zero,
			OutstandingBalance: decimal.Zero,
		},
		Orders: []OrderLine{},
	}
	for _, o := range snap.orders {
		rep.Summary.TotalOrders++
		rep.Summary.TotalAmount = rep.Summary.TotalAmount.Add(o.TotalAmount)
		rep.Summary.TotalPaid = rep.Summary.TotalPaid.Add(o.PaidAmount)
		rep.Orders = append(rep.Orders, snap.line(o, true))
	}
	rep.Summary.OutstandingBalance = rep.Summary.TotalAmount.Sub(rep.Summary.TotalPaid)
	return rep, nil
}

// profile looks up a customer who has no open orders.
func (r *Reports) profile(ctx context.Context, customerID string) (map[string]orders.Profile, error) {
	var got map[string]orders.Profile
	err := r.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		got, err = tx.ProfilesByIDs(ctx, []string{customerID})
		return err
	})
	if err != nil {
		return nil, err
	}
	if _, ok := got[customerID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
	}
	return got, nil
}

// Customers lists everyone with at least one open order, by name.
func (r *Reports) Customers(ctx context.Context, who auth.Identity) ([]Customer, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return nil, err
	}
	snap, err := r.load(ctx, orders.OrderFilter{}, false)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []Customer{}
	for _, o := range snap.orders {
		if seen[o.CustomerID] {
			continue
		}
		seen[o.CustomerID] = true
		out = append(out, snap.customer(o.CustomerID))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
