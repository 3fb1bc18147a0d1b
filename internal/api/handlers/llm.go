package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/vaultmind/internal/llm"
)

type LLMHandler struct {
	gateway llm.Gateway
}

func NewLLMHandler(gw llm.Gateway) *LLMHandler {
	return &LLMHandler{gateway: gw}
}

// Models lists the models the direct-LLM tier can reach with the
// configured keys.
func (h *LLMHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.gateway.ListModels()
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models, "count": len(models)})
}
