package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nikhilbhutani/vaultmind/internal/models"
)

type ChargeLister interface {
	ListByPatient(ctx context.Context, patientID string) ([]models.Charge, error)
}

// AdminHandler exposes the billing ledger.
type AdminHandler struct {
	charges ChargeLister
}

func NewAdminHandler(charges ChargeLister) *AdminHandler {
	return &AdminHandler{charges: charges}
}

func (h *AdminHandler) Charges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	charges, err := h.charges.ListByPatient(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var total float64
	for _, c := range charges {
		total += c.CostUSD
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id":     id,
		"charges":        charges,
		"count":          len(charges),
		"total_cost_usd": total,
	})
}
