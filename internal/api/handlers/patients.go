package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nikhilbhutani/vaultmind/internal/intake"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
)

const maxUploadBytes = 10 << 20

type PatientHandler struct {
	svc *intake.Service
}

func NewPatientHandler(svc *intake.Service) *PatientHandler {
	return &PatientHandler{svc: svc}
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req intake.CreateInput
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	res, err := h.svc.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PatientHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reprocess(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("strategy"), queue.TriggerReprocess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Status == "queued" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (h *PatientHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Decrypt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PatientHandler) Reset(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Reset(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "All patient data deleted",
		"deleted": n,
	})
}

func (h *PatientHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Patients []intake.CreateInput `json:"patients"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Patients) == 0 {
		writeError(w, r, models.NewValidationError("patients must not be empty"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.BatchCreate(r.Context(), req.Patients))
}

func (h *PatientHandler) BatchUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	res, err := h.svc.UploadCSV(r.Context(), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PatientHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	res, err := h.svc.CreateFromDocument(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Status == intake.DocumentStatusInsufficientData {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}
