package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductInput struct {
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      *bool           `json:"is_active,omitempty"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &orders.ValidationError{Field: "name", Msg: "required"}
	}
	if in.Price.IsNegative() {
		return &orders.ValidationError{Field: "price", Msg: "must not be negative"}
	}
	if in.StockQuantity < 0 {
		return &orders.ValidationError{Field: "stock_quantity", Msg: "must not be negative"}
	}
	return nil
}

type Service struct {
	store orders.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store orders.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log.Named("catalog"), now: func() time.Time { return time.Now().UTC() }}
}

// ListProducts shows inactive products to shop staff only.
func (s *Service) ListProducts(ctx context.Context, who auth.Identity) ([]orders.Product, error) {
	var out []orders.Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		out, err = tx.ListProducts(ctx, !who.IsShopkeeper())
		return err
	})
	return out, err
}

func (s *Service) GetProduct(ctx context.Context, who auth.Identity, id string) (orders.Product, error) {
	var p orders.Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return orders.Product{}, err
	}
	if !p.IsActive && !who.IsShopkeeper() {
		return orders.Product{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	return p, nil
}

func (s *Service) CreateProduct(ctx context.Context, who auth.Identity, in ProductInput) (orders.Product, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Product{}, err
	}
	if err := in.validate(); err != nil {
		return orders.Product{}, err
	}
	now := s.now()
	p := orders.Product{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		Price:         in.Price,
		IsActive:      in.IsActive == nil || *in.IsActive,
		StockQuantity: in.StockQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.CreateProduct(ctx, p)
	})
	if err != nil {
		return orders.Product{}, err
	}
	s.log.Info("product created", zap.String("product_id", p.ID), zap.Int("stock", p.StockQuantity))
	return p, nil
}

// UpdateProduct replaces the editable fields. Stock may not drop below what
// is currently reserved. A nil IsActive keeps the current flag.
func (s *Service) UpdateProduct(ctx context.Context, who auth.Identity, id string, in ProductInput) (orders.Product, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Product{}, err
	}
	if err := in.validate(); err != nil {
		return orders.Product{}, err
	}
	var out orders.Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		cur, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		cur.Name = strings.TrimSpace(in.Name)
		cur.Price = in.Price
		cur.StockQuantity = in.StockQuantity
		if in.IsActive != nil {
			cur.IsActive = *in.IsActive
		}
		cur.UpdatedAt = s.now()
		if err := tx.UpdateProduct(ctx, cur); err != nil {
			return err
		}
		out, err = tx.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return orders.Product{}, err
	}
	s.log.Info("product updated", zap.String("product_id", id), zap.Int("stock", out.StockQuantity))
	return out, nil
}

// DeleteProduct fails with orders.ErrProductInUse while any order or hold
// still refers to the product; deactivate it instead.
func (s *Service) DeleteProduct(ctx context.Context, who auth.Identity, id string) error {
	if err := who.RequireShopkeeper(); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("product deleted", zap.String("product_id", id))
	return nil
}

type ProfileInput struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// UpsertProfile stores the caller's display name and phone. The role always
// comes from the caller's identity.
func (s *Service) UpsertProfile(ctx context.Context, who auth.Identity, in ProfileInput) (orders.Profile, error) {
	if err := who.RequireUser(); err != nil {
		return orders.Profile{}, err
	}
	p := orders.Profile{
		ID:       who.UserID,
		FullName: strings.TrimSpace(in.FullName),
		Phone:    strings.TrimSpace(in.Phone),
		Role:     string(who.Role),
	}
	if p.FullName == "" {
		return orders.Profile{}, &orders.ValidationError{Field: "full_name", Msg: "required"}
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.UpsertProfile(ctx, p)
	})
	if err != nil {
		return orders.Profile{}, err
	}
	return p, nil
}
