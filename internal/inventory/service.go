package inventory

import (
	"context"
	"errors"

	"github.com/ariefcatur/khata-store/internal/metrics"
	"github.com/ariefcatur/khata-store/internal/orders"
	"go.uber.org/zap"
)

// Holds is the slice of a store transaction the reservation service needs.
type Holds interface {
	orders.Ledger
	orders.ReservationBook
}

// Service coordinates multi-item holds for an order on top of the single
// product ledger operations. It never touches order or item rows.
type Service struct {
	log *zap.Logger
}

func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log.Named("inventory")}
}

// ReserveForOrder holds every line or none. Lines are merged per product and
// taken in product id order. On failure the holds taken by this call are
// released again before the error is returned, so the result is the same
// whether or not the surrounding transaction rolls back.
func (s *Service) ReserveForOrder(ctx context.Context, h Holds, orderID string, items []orders.ItemQty) error {
	items, err := orders.NormalizeItems(items)
	if err != nil {
		return err
	}

	taken := make([]orders.ItemQty, 0, len(items))
	for _, it := range items {
		if err := h.TryReserve(ctx, it.ProductID, it.Qty); err != nil {
			s.compensate(ctx, h, orderID, taken)
			metrics.RecordReservation("reserve", false)
			s.logRejected(orderID, it, err)
			return err
		}
		taken = append(taken, it)
		if err := h.AddHold(ctx, orderID, it.ProductID, it.Qty); err != nil {
			s.compensate(ctx, h, orderID, taken)
			metrics.RecordReservation("reserve", false)
			s.log.Error("record hold failed", zap.String("order_id", orderID), zap.String("product_id", it.ProductID), zap.Error(err))
			return err
		}
	}
	metrics.RecordReservation("reserve", true)
	return nil
}

func (s *Service) logRejected(orderID string, it orders.ItemQty, err error) {
	var ise *orders.InsufficientStockError
	if errors.As(err, &ise) {
		s.log.Info("reservation rejected",
			zap.String("order_id", orderID),
			zap.String("product_id", it.ProductID),
			zap.Int("requested", ise.Requested),
			zap.Int("available", ise.Available))
		return
	}
	s.log.Warn("reservation failed", zap.String("order_id", orderID), zap.String("product_id", it.ProductID), zap.Error(err))
}

func (s *Service) compensate(ctx context.Context, h Holds, orderID string, taken []orders.ItemQty) {
	for i := len(taken) - 1; i >= 0; i-- {
		it := taken[i]
		if _, err := s.release(ctx, h, orderID, it.ProductID, it.Qty); err != nil {
			s.log.Error("compensating release failed",
				zap.String("order_id", orderID), zap.String("product_id", it.ProductID), zap.Int("qty", it.Qty), zap.Error(err))
			continue
		}
		if err := h.AddHold(ctx, orderID, it.ProductID, -it.Qty); err != nil {
			s.log.Error("compensating hold update failed",
				zap.String("order_id", orderID), zap.String("product_id", it.ProductID), zap.Error(err))
		}
	}
}

// release lowers the ledger and reports a short release. A short release
// means the counters drifted from the holds, which Audit will show.
func (s *Service) release(ctx context.Context, h Holds, orderID, productID string, qty int) (int, error) {
	n, err := h.Release(ctx, productID, qty)
	if err != nil {
		return 0, err
	}
	if n < qty {
		metrics.LedgerClamped()
		s.log.Warn("release clamped at zero",
			zap.String("order_id", orderID),
			zap.String("product_id", productID),
			zap.Int("requested", qty),
			zap.Int("released", n))
	}
	return n, nil
}

// ReleaseForOrder gives back every unit the order still holds and returns
// the released lines. Holds are marked RELEASED, so a second call finds
// nothing and changes nothing.
func (s *Service) ReleaseForOrder(ctx context.Context, h Holds, orderID string) ([]orders.ItemQty, error) {
	held, err := h.HeldReservations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]orders.ItemQty, 0, len(held))
	for _, r := range held {
		if _, err := s.release(ctx, h, orderID, r.ProductID, r.Qty); err != nil {
			metrics.RecordReservation("release", false)
			return nil, err
		}
		out = append(out, orders.ItemQty{ProductID: r.ProductID, Qty: r.Qty})
	}
	if _, err := h.SettleHolds(ctx, orderID, orders.ReservationReleased); err != nil {
		metrics.RecordReservation("release", false)
		return nil, err
	}
	metrics.RecordReservation("release", true)
	if len(out) > 0 {
		s.log.Debug("released order holds", zap.String("order_id", orderID), zap.Int("lines", len(out)))
	}
	return out, nil
}

// AdjustItemQuantity moves the order's hold on productID from oldQty to
// newQty. Growing may fail with *orders.InsufficientStockError and then
// changes nothing. Shrinking cannot fail on stock.
func (s *Service) AdjustItemQuantity(ctx context.Context, h Holds, orderID, productID string, oldQty, newQty int) error {
	if newQty < 0 || oldQty < 0 {
		return &orders.ValidationError{Field: "qty", Msg: "must not be negative"}
	}
	delta := newQty - oldQty
	switch {
	case delta > 0:
		if err := h.TryReserve(ctx, productID, delta); err != nil {
			metrics.RecordReservation("adjust", false)
			s.logRejected(orderID, orders.ItemQty{ProductID: productID, Qty: delta}, err)
			return err
		}
	case delta < 0:
		if _, err := s.release(ctx, h, orderID, productID, -delta); err != nil {
			metrics.RecordReservation("adjust", false)
			return err
		}
	default:
		return nil
	}
	if err := h.AddHold(ctx, orderID, productID, delta); err != nil {
		metrics.RecordReservation("adjust", false)
		return err
	}
	metrics.RecordReservation("adjust", true)
	return nil
}

// ReleaseItem drops the hold for a removed order line.
func (s *Service) ReleaseItem(ctx context.Context, h Holds, orderID, productID string, qty int) error {
	return s.AdjustItemQuantity(ctx, h, orderID, productID, qty, 0)
}

// FinalizeForOrder turns every hold of the order into a permanent stock
// deduction. Any commit failure aborts the whole call; the caller's
// transaction must then roll back.
func (s *Service) FinalizeForOrder(ctx context.Context, h Holds, orderID string) ([]orders.ItemQty, error) {
	held, err := h.HeldReservations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]orders.ItemQty, 0, len(held))
	for _, r := range held {
		if err := h.Commit(ctx, r.ProductID, r.Qty); err != nil {
			metrics.RecordReservation("commit", false)
			s.log.Error("stock commit failed",
				zap.String("order_id", orderID), zap.String("product_id", r.ProductID), zap.Int("qty", r.Qty), zap.Error(err))
			return nil, err
		}
		out = append(out, orders.ItemQty{ProductID: r.ProductID, Qty: r.Qty})
	}
	if _, err := h.SettleHolds(ctx, orderID, orders.ReservationCommitted); err != nil {
		metrics.RecordReservation("commit", false)
		return nil, err
	}
	metrics.RecordReservation("commit", true)
	return out, nil
}
