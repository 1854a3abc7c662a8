package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"exam-attempt-service/internal/app"
	"exam-attempt-service/internal/domain"
)

// Handler exposes the four attempt operations over JSON. Session
// verification happens upstream; the gateway forwards the authenticated
// identity in X-User-ID and the role in X-User-Role.
type Handler struct {
	service *app.AttemptService
}

func NewHandler(service *app.AttemptService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /attempts/start", h.start)
	mux.HandleFunc("POST /attempts/{id}/answers", h.answer)
	mux.HandleFunc("POST /attempts/{id}/submit", h.submit)
	mux.HandleFunc("GET /attempts/{id}", h.get)
	mux.HandleFunc("GET /attempts", h.list)
}

type startRequest struct {
	PaperID         string   `json:"paperId"`
	MarksPerCorrect *float64 `json:"marksPerCorrect"`
	NegativeMark    *float64 `json:"negativeMark"`
}

type answerRequest struct {
	QuestionID    string `json:"questionId"`
	SelectedIndex *int   `json:"selectedIndex"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	var req startRequest
	if !decodeStrict(w, r.Body, &req) {
		return
	}

	var override *domain.ScoringConfig
	if req.MarksPerCorrect != nil || req.NegativeMark != nil {
		override = &domain.ScoringConfig{}
		if req.MarksPerCorrect != nil {
			override.MarksPerCorrect = *req.MarksPerCorrect
		}
		if req.NegativeMark != nil {
			override.NegativeMark = *req.NegativeMark
		}
	}

	result, err := h.service.Start(r.Context(), userID, req.PaperID, override)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	var req answerRequest
	if !decodeStrict(w, r.Body, &req) {
		return
	}

	ack, err := h.service.Answer(r.Context(), userID, r.PathValue("id"), req.QuestionID, req.SelectedIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	breakdown, err := h.service.Submit(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	elevated := r.Header.Get("X-User-Role") == "admin"
	view, err := h.service.Get(r.Context(), userID, r.PathValue("id"), elevated)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	summaries, err := h.service.List(r.Context(), userID, r.URL.Query().Get("paper"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing identity"})
		return "", false
	}
	return userID, true
}

// decodeStrict rejects unknown fields and trailing garbage so malformed
// payloads never reach domain logic.
func decodeStrict(w http.ResponseWriter, body io.Reader, dst interface{}) bool {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	if dec.More() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrEmptyPaper):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrPaperNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAttemptConflict), errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnknownQuestion),
		errors.Is(err, domain.ErrOptionOutOfRange),
		errors.Is(err, domain.ErrTimeLimitExceeded):
		status = http.StatusUnprocessableEntity
	default:
		log.Printf("attempt handler error: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
