package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/inventory"
	"github.com/ariefcatur/khata-store/internal/lifecycle"
	"github.com/ariefcatur/khata-store/internal/memstore"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/ariefcatur/khata-store/internal/sweeper"
	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	customer = auth.Identity{UserID: "customer-1", Role: auth.RoleCustomer}
	shop     = auth.Identity{UserID: "shop-1", Role: auth.RoleShopkeeper}
)

type shopWorld struct {
	store   *memstore.Store
	ctl     *lifecycle.Controller
	sweep   *sweeper.Sweeper
	now     time.Time
	orderID map[string]string
	lastErr error
}

func (w *shopWorld) reset() {
	w.store = memstore.New()
	w.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return w.now }
	w.ctl = lifecycle.NewController(w.store, inventory.NewService(zap.NewNop()), zap.NewNop(),
		lifecycle.WithClock(clock), lifecycle.WithPendingTTL(15*time.Minute))
	w.sweep = sweeper.New(w.store, w.ctl, zap.NewNop(), sweeper.WithClock(clock))
	w.orderID = map[string]string{}
	w.lastErr = nil
}

func (w *shopWorld) aProductWithStock(id string, stock int) error {
	w.store.Seed(orders.Product{
		ID: id, Name: id, Price: decimal.NewFromInt(10), IsActive: true, StockQuantity: stock,
	})
	return nil
}

func (w *shopWorld) aCustomerPlacesAnOrder(name string, n int, productID string) error {
	o, err := w.ctl.PlaceOrder(context.Background(), customer, []orders.ItemQty{{ProductID: productID, Qty: n}})
	w.lastErr = err
	if err == nil {
		w.orderID[name] = o.ID
	}
	return nil
}

func (w *shopWorld) theShopkeeperActsOn(action, name string) error {
	id, ok := w.orderID[name]
	if !ok {
		return fmt.Errorf("unknown order %q", name)
	}
	ctx := context.Background()
	switch action {
	case "confirms":
		_, w.lastErr = w.ctl.ConfirmOrder(ctx, shop, id)
	case "packs":
		_, w.lastErr = w.ctl.PackOrder(ctx, shop, id)
	case "delivers":
		_, w.lastErr = w.ctl.DeliverOrder(ctx, shop, id)
	case "cancels":
		_, w.lastErr = w.ctl.CancelOrder(ctx, shop, id)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

func (w *shopWorld) theShopkeeperChangesQuantity(productID, name string, n int) error {
	o, err := w.ctl.GetOrder(context.Background(), shop, w.orderID[name])
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		if it.ProductID == productID {
			_, w.lastErr = w.ctl.EditItemQuantity(context.Background(), shop, o.ID, it.ID, n)
			return nil
		}
	}
	return fmt.Errorf("order %q has no line for %q", name, productID)
}

func (w *shopWorld) minutesPass(n int) error {
	w.now = w.now.Add(time.Duration(n) * time.Minute)
	return nil
}

func (w *shopWorld) theExpirySweepRuns() error {
	_, err := w.sweep.RunOnce(context.Background())
	return err
}

func (w *shopWorld) theOrderIs(name, status string) error {
	o, err := w.ctl.GetOrder(context.Background(), shop, w.orderID[name])
	if err != nil {
		return err
	}
	if string(o.Status) != status {
		return fmt.Errorf("order %s is %s, want %s", name, o.Status, status)
	}
	return nil
}

func (w *shopWorld) orderHasUnits(name string, n int, productID string) error {
	o, err := w.ctl.GetOrder(context.Background(), shop, w.orderID[name])
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		if it.ProductID == productID {
			if it.Quantity != n {
				return fmt.Errorf("order %s has %d units of %s, want %d", name, it.Quantity, productID, n)
			}
			return nil
		}
	}
	return fmt.Errorf("order %s has no line for %s", name, productID)
}

func (w *shopWorld) productHasCounters(id string, stock, reserved int) error {
	var p orders.Product
	err := w.store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	if p.StockQuantity != stock || p.ReservedQuantity != reserved {
		return fmt.Errorf("product %s has stock=%d reserved=%d, want stock=%d reserved=%d",
			id, p.StockQuantity, p.ReservedQuantity, stock, reserved)
	}
	return nil
}

func (w *shopWorld) theLastActionSucceeds() error {
	if w.lastErr != nil {
		return fmt.Errorf("expected success, got %v", w.lastErr)
	}
	return nil
}

func (w *shopWorld) failsWithInsufficientStock(productID string, requested, available int) error {
	var ise *orders.InsufficientStockError
	if !errors.As(w.lastErr, &ise) {
		return fmt.Errorf("expected insufficient stock, got %v", w.lastErr)
	}
	if ise.ProductID != productID || ise.Requested != requested || ise.Available != available {
		return fmt.Errorf("got %+v", *ise)
	}
	return nil
}

func (w *shopWorld) failsWithInvalidTransition() error {
	if !errors.Is(w.lastErr, orders.ErrInvalidTransition) {
		return fmt.Errorf("expected invalid transition, got %v", w.lastErr)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	w := &shopWorld{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		w.reset()
		return ctx, nil
	})

	ctx.Step(`^a product "([^"]*)" with stock (\d+)$`, w.aProductWithStock)
	ctx.Step(`^a customer places an order "([^"]*)" for (\d+) units of "([^"]*)"$`, w.aCustomerPlacesAnOrder)
	ctx.Step(`^the shopkeeper (confirms|packs|delivers|cancels) order "([^"]*)"$`, w.theShopkeeperActsOn)
	ctx.Step(`^the shopkeeper changes the quantity of "([^"]*)" in order "([^"]*)" to (\d+)$`, w.theShopkeeperChangesQuantity)
	ctx.Step(`^(\d+) minutes pass$`, w.minutesPass)
	ctx.Step(`^the expiry sweep runs$`, w.theExpirySweepRuns)

	ctx.Step(`^the order "([^"]*)" is "([^"]*)"$`, w.theOrderIs)
	ctx.Step(`^order "([^"]*)" has (\d+) units of "([^"]*)"$`, w.orderHasUnits)
	ctx.Step(`^product "([^"]*)" has stock (\d+) and reserved (\d+)$`, w.productHasCounters)
	ctx.Step(`^the last action succeeds$`, w.theLastActionSucceeds)
	ctx.Step(`^the last action fails with insufficient stock for "([^"]*)" requested (\d+) available (\d+)$`, w.failsWithInsufficientStock)
	ctx.Step(`^the last action fails with an invalid transition$`, w.failsWithInvalidTransition)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
