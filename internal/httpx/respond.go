package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/khata"
	"github.com/ariefcatur/khata-store/internal/orders"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "bad_request"})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, orders.ErrInsufficientStock):
		return http.StatusBadRequest, "insufficient_stock"
	case errors.Is(err, orders.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, orders.ErrOverpayment):
		return http.StatusBadRequest, "overpayment"
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrItemNotFound),
		errors.Is(err, khata.ErrCustomerNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrAlreadyCancelled):
		return http.StatusConflict, "already_cancelled"
	case errors.Is(err, orders.ErrNotEditable):
		return http.StatusConflict, "not_editable"
	case errors.Is(err, orders.ErrProductInUse):
		return http.StatusConflict, "product_in_use"
	case errors.Is(err, orders.ErrInconsistentState):
		return http.StatusInternalServerError, "inconsistent_state"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError maps domain errors to a status and a stable code. Internal
// errors are logged and never echoed to the client.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, code := classify(err)
	body := errorBody{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.String("code", code), zap.Error(err))
		}
		body.Error = "internal error"
	}
	var ise *orders.InsufficientStockError
	if errors.As(err, &ise) {
		body.ProductID = ise.ProductID
		body.Requested = ise.Requested
		body.Available = &ise.Available
	}
	writeJSON(w, status, body)
}
