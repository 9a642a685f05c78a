package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/khata-store/internal/khata"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type KhataHandler struct {
	reports *khata.Reports
	log     *zap.Logger
}

func (h *KhataHandler) Register(r chi.Router) {
	r.Get("/dues/outstanding", h.outstanding)
	r.Get("/dues/today", h.today)
	r.Get("/khata/customers", h.customers)
	r.Get("/khata/customer-wise", h.customerWise)
	r.Get("/khata/date-wise", h.dateWise)
}

// day reads ?date=YYYY-MM-DD, defaulting to today in shop time.
func (h *KhataHandler) day(r *http.Request) (time.Time, error) {
	if v := r.URL.Query().Get("date"); v != "" {
		return h.reports.ParseDay(v)
	}
	return h.reports.Today(), nil
}

func (h *KhataHandler) outstanding(w http.ResponseWriter, r *http.Request) {
	dues, err := h.reports.OutstandingDues(r.Context(), identity(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if dues == nil {
		dues = []khata.CustomerDues{}
	}
	writeJSON(w, http.StatusOK, dues)
}

func (h *KhataHandler) today(w http.ResponseWriter, r *http.Request) {
	day, err := h.day(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	dues, err := h.reports.DuesForDay(r.Context(), identity(r), day)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, dues)
}

func (h *KhataHandler) customers(w http.ResponseWriter, r *http.Request) {
	list, err := h.reports.Customers(r.Context(), identity(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *KhataHandler) customerWise(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.CustomerWise(r.Context(), identity(r), r.URL.Query().Get("customerId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *KhataHandler) dateWise(w http.ResponseWriter, r *http.Request) {
	day, err := h.day(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	rep, err := h.reports.DateWise(r.Context(), identity(r), day)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
