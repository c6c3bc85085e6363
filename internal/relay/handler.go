package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/yegors/voicenote/internal/apperrors"
	"github.com/yegors/voicenote/internal/storage/sqlite"
	"github.com/yegors/voicenote/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// TranscribeRequest is the relay request body
type TranscribeRequest struct {
	Audio string `json:"audio"`
}

// TranscribeResponse is the relay success body
type TranscribeResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is the relay failure body
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports relay readiness
type HealthResponse struct {
	Status             string    `json:"status"`
	UpstreamConfigured bool      `json:"upstream_configured"`
	Time               time.Time `json:"time"`
}

// HistoryResponse lists recent relay invocations
type HistoryResponse struct {
	Transcriptions []*sqlite.TranscriptionRecord `json:"transcriptions"`
	Count          int                           `json:"count"`
}

// Handler serves the relay HTTP endpoints
type Handler struct {
	service      *Service
	maxBodyBytes int64
	logger       *logger.Logger
}

// NewHandler creates a new relay handler. maxBodyBytes <= 0 disables the limit.
func NewHandler(service *Service, maxBodyBytes int64, logger *logger.Logger) *Handler {
	return &Handler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.Named("relay-http"),
	}
}

// Transcribe handles POST /functions/v1/transcribe-audio. Every failure is
// answered with 500 and {"error": message}.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req TranscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithRequestID(requestID).Warn("Invalid relay request body", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, requestBodyMessage(err))
		return
	}

	text, err := h.service.Transcribe(r.Context(), requestID, req.Audio)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, apperrors.UserMessage(err))
		return
	}

	h.writeJSON(w, http.StatusOK, TranscribeResponse{Text: text})
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:             "ok",
		UpstreamConfigured: h.service.Configured(),
		Time:               time.Now().UTC(),
	})
}

// RecentTranscriptions handles GET /api/v1/transcriptions?limit=N
func (h *Handler) RecentTranscriptions(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.service.RecentTranscriptions(limit)
	if err != nil {
		status := http.StatusInternalServerError
		if h.service.audit == nil {
			status = http.StatusServiceUnavailable
		}
		h.writeError(w, status, apperrors.UserMessage(err))
		return
	}
	if records == nil {
		records = []*sqlite.TranscriptionRecord{}
	}

	h.writeJSON(w, http.StatusOK, HistoryResponse{Transcriptions: records, Count: len(records)})
}

func requestBodyMessage(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return "audio data too large"
	}
	return "invalid request body"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write JSON response", logger.Int("status", status), logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}
