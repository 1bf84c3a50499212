package handler

import (
	"net/http"

	"github.com/montebay/storefront/internal/domain/product"
)

type productResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	CategoryID     string   `json:"categoryId"`
	CollectionIDs  []string `json:"collectionIds,omitempty"`
	Price          float64  `json:"price"`
	CompareAtPrice *float64 `json:"compareAtPrice,omitempty"`
}

func toProductResponse(p product.Product) productResponse {
	resp := productResponse{
		ID:            p.ID,
		Name:          p.Name,
		CategoryID:    p.CategoryID,
		CollectionIDs: p.CollectionIDs,
		Price:         money(p.Price),
	}
	if p.CompareAtPrice != nil {
		v := money(*p.CompareAtPrice)
		resp.CompareAtPrice = &v
	}
	return resp
}

// ListProducts returns the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}
