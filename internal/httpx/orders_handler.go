package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/khata-store/internal/khata"
	"github.com/ariefcatur/khata-store/internal/lifecycle"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/ariefcatur/khata-store/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	ctl     *lifecycle.Controller
	reports *khata.Reports
	idem    Idempotency
	status  StatusCache
	log     *zap.Logger
}

type PlaceOrderReq struct {
	Items []orders.ItemQty `json:"items"`
}

type StatusResp struct {
	OrderID string `json:"order_id"`
	redisx.CachedStatus
	Cached bool `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	who := identity(r)
	ctx := r.Context()

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key != "" && h.idem != nil {
		if orderID, ok, err := h.idem.Recall(ctx, who.UserID, key); err != nil {
			h.log.Warn("idempotency recall", zap.Error(err))
		} else if ok {
			o, err := h.ctl.GetOrder(ctx, who, orderID)
			if err != nil {
				writeError(w, h.log, err)
				return
			}
			w.Header().Set("Idempotent-Replay", "true")
			writeJSON(w, http.StatusOK, o)
			return
		}

		locked, err := h.idem.TryLock(ctx, who.UserID, key)
		switch {
		case err != nil:
			// Redis trouble should not stop the shop from taking orders.
			h.log.Warn("idempotency lock", zap.Error(err))
			key = ""
		case !locked:
			writeJSON(w, http.StatusConflict, errorBody{Error: "a request with this idempotency key is in progress", Code: "idempotency_in_progress"})
			return
		}
	}

	o, err := h.ctl.PlaceOrder(ctx, who, req.Items)
	if err != nil {
		if key != "" && h.idem != nil {
			if uerr := h.idem.Unlock(ctx, who.UserID, key); uerr != nil {
				h.log.Warn("idempotency unlock", zap.Error(uerr))
			}
		}
		writeError(w, h.log, err)
		return
	}
	if key != "" && h.idem != nil {
		if err := h.idem.Remember(ctx, who.UserID, key, o.ID); err != nil {
			h.log.Warn("idempotency remember", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := h.orderFilter(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	list, err := h.ctl.ListOrders(r.Context(), identity(r), f)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

// orderFilter reads status (comma separated), customer_id, from and to
// (YYYY-MM-DD, shop time, to inclusive) and limit.
func (h *OrdersHandler) orderFilter(r *http.Request) (orders.OrderFilter, error) {
	q := r.URL.Query()
	var f orders.OrderFilter
	for _, s := range strings.Split(q.Get("status"), ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		st, err := orders.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	f.CustomerID = q.Get("customer_id")
	if v := q.Get("from"); v != "" {
		d, err := h.reports.ParseDay(v)
		if err != nil {
			return f, err
		}
		f.CreatedFrom = d
	}
	if v := q.Get("to"); v != "" {
		d, err := h.reports.ParseDay(v)
		if err != nil {
			return f, err
		}
		f.CreatedTo = d.AddDate(0, 0, 1)
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return f, err
	}
	f.Limit = limit
	return f, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &orders.ValidationError{Field: "limit", Msg: "must be a non-negative integer"}
	}
	return n, nil
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ctl.GetOrder(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus serves shop staff from the cache. Customers always go to the
// store, which is where ownership is checked.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who := identity(r)
	orderID := chi.URLParam(r, "id")

	if h.status != nil && who.IsShopkeeper() {
		st, ok, err := h.status.Get(ctx, orderID)
		if err != nil {
			h.log.Warn("status cache read", zap.String("order_id", orderID), zap.Error(err))
		} else if ok {
			writeJSON(w, http.StatusOK, StatusResp{OrderID: orderID, CachedStatus: st, Cached: true})
			return
		}
	}

	o, err := h.ctl.GetOrder(ctx, who, orderID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	st := redisx.CachedStatus{Status: o.Status, UpdatedAt: o.UpdatedAt}
	if h.status != nil {
		if err := h.status.Set(ctx, orderID, st); err != nil {
			h.log.Warn("status cache write", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, StatusResp{OrderID: orderID, CachedStatus: st})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ctl.CancelOrder(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
