package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nikhilbhutani/vaultmind/internal/intake"
	"github.com/nikhilbhutani/vaultmind/internal/notify"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
)

const signatureHeader = "X-Webhook-Signature"

// WebhookHandler receives content-store notifications. When a secret is set
// every body must carry a matching HMAC signature.
type WebhookHandler struct {
	svc    *intake.Service
	secret string
}

func NewWebhookHandler(svc *intake.Service, secret string) *WebhookHandler {
	return &WebhookHandler{svc: svc, secret: secret}
}

func (h *WebhookHandler) ProcessPatient(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if h.secret != "" && !notify.Verify(body, h.secret, r.Header.Get(signatureHeader)) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var payload struct {
		ID        string `json:"_id"`
		PatientID string `json:"patient_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id := payload.ID
	if id == "" {
		id = payload.PatientID
	}

	res, err := h.svc.ProcessFromWebhook(r.Context(), id, queue.TriggerWebhook)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
