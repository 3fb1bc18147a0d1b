package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nikhilbhutani/vaultmind/internal/models"
)

type TemplateReader interface {
	Get(ctx context.Context, version string) (*models.PromptTemplate, error)
	ListAll(ctx context.Context) ([]models.PromptTemplate, error)
}

type TemplateSelector interface {
	Select(ctx context.Context, strategy string, overrides models.Overrides) (models.Selection, error)
}

type PromptHandler struct {
	registry TemplateReader
	selector TemplateSelector
}

func NewPromptHandler(registry TemplateReader, selector TemplateSelector) *PromptHandler {
	return &PromptHandler{registry: registry, selector: selector}
}

func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.registry.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": templates, "count": len(templates)})
}

func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.registry.Get(r.Context(), chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// Select previews which template a run would use. Query parameters
// temperature, max_tokens and model act as overrides.
func (h *PromptHandler) Select(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var o models.Overrides
	if v := q.Get("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, r, models.NewValidationError("temperature must be a number"))
			return
		}
		o.Temperature = &t
	}
	if v := q.Get("max_tokens"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, models.NewValidationError("max_tokens must be an integer"))
			return
		}
		o.MaxTokens = &n
	}
	o.Model = q.Get("model")

	sel, err := h.selector.Select(r.Context(), q.Get("strategy"), o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}
