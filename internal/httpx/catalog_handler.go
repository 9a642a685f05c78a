package httpx

import (
	"net/http"

	"github.com/ariefcatur/khata-store/internal/catalog"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CatalogHandler struct {
	svc *catalog.Service
	log *zap.Logger
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Put("/me/profile", h.upsertProfile)
}

func (h *CatalogHandler) RegisterAdmin(r chi.Router) {
	r.Post("/products", h.createProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.ListProducts(r.Context(), identity(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProduct(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decode(r, &in); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), identity(r), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decode(r, &in); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, err := h.svc.UpdateProduct(r.Context(), identity(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProduct(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) upsertProfile(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProfileInput
	if err := decode(r, &in); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, err := h.svc.UpsertProfile(r.Context(), identity(r), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
