package httpx

import (
	"net/http"

	"github.com/ariefcatur/khata-store/internal/inventory"
	"github.com/ariefcatur/khata-store/internal/khata"
	"github.com/ariefcatur/khata-store/internal/lifecycle"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AdminHandler struct {
	ctl     *lifecycle.Controller
	reports *khata.Reports
	log     *zap.Logger
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status"`
}

type UpdateItemReq struct {
	Quantity int `json:"quantity"`
}

type RecordPaymentReq struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

type RecordPaymentResp struct {
	Payment orders.Payment `json:"payment"`
	Order   orders.Order   `json:"order"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Put("/orders/{id}/status", h.updateStatus)
	r.Put("/orders/{id}/items/{itemId}", h.updateItem)
	r.Delete("/orders/{id}/items/{itemId}", h.removeItem)
	r.Post("/orders/{id}/payments", h.recordPayment)
	r.Get("/payments", h.listPayments)
	r.Get("/inventory/audit", h.audit)
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	to, err := orders.ParseStatus(string(req.Status))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	o, err := h.ctl.UpdateStatus(r.Context(), identity(r), chi.URLParam(r, "id"), to)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	o, err := h.ctl.EditItemQuantity(r.Context(), identity(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), req.Quantity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	o, err := h.ctl.RemoveItem(r.Context(), identity(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, o, err := h.ctl.RecordPayment(r.Context(), identity(r), chi.URLParam(r, "id"), req.Amount, req.Method)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordPaymentResp{Payment: p, Order: o})
}

// listPayments filters by order_id, from and to (YYYY-MM-DD, to inclusive)
// and limit.
func (h *AdminHandler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f orders.PaymentFilter
	if id := q.Get("order_id"); id != "" {
		f.OrderIDs = []string{id}
	}
	if v := q.Get("from"); v != "" {
		d, err := h.reports.ParseDay(v)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		f.From = d
	}
	if v := q.Get("to"); v != "" {
		d, err := h.reports.ParseDay(v)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		f.To = d.AddDate(0, 0, 1)
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	f.Limit = limit

	list, err := h.ctl.ListPayments(r.Context(), identity(r), f)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if list == nil {
		list = []orders.Payment{}
	}
	writeJSON(w, http.StatusOK, list)
}

type auditResp struct {
	Consistent bool              `json:"consistent"`
	Drift      []inventory.Drift `json:"drift"`
}

func (h *AdminHandler) audit(w http.ResponseWriter, r *http.Request) {
	drift, err := h.ctl.AuditInventory(r.Context(), identity(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if drift == nil {
		drift = []inventory.Drift{}
	}
	writeJSON(w, http.StatusOK, auditResp{Consistent: len(drift) == 0, Drift: drift})
}
