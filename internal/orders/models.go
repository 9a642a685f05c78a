package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	IsActive         bool            `json:"is_active"`
	StockQuantity    int             `json:"stock_quantity"`
	ReservedQuantity int             `json:"reserved_quantity"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Available is the number of units that can still be reserved.
func (p Product) Available() int { return p.StockQuantity - p.ReservedQuantity }

type Order struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"` // sum of completed payments
	ExpiresAt   time.Time       `json:"expires_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []OrderItem     `json:"items,omitempty"`
}

func (o Order) DueAmount() decimal.Decimal { return o.TotalAmount.Sub(o.PaidAmount) }

func (o Order) Item(itemID string) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return OrderItem{}, false
}

// ItemsTotal sums the line totals of the order's current items.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
)

const DefaultPaymentMethod = "cash_on_delivery"

type Payment struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCommitted ReservationStatus = "COMMITTED"
)

// Reservation is the hold an order owns on one product.
type Reservation struct {
	OrderID   string            `json:"order_id"`
	ProductID string            `json:"product_id"`
	Qty       int               `json:"qty"`
	Status    ReservationStatus `json:"status"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Profile is the customer-facing data shown on khata reports.
type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}
