package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/voicenote/internal/config"
	"github.com/yegors/voicenote/internal/relay"
	"github.com/yegors/voicenote/pkg/logger"
)

// TranscribePath is where the capture controller posts audio
const TranscribePath = "/functions/v1/transcribe-audio"

// Router is the API router
type Router struct {
	handler    *relay.Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(relayService *relay.Service, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    relay.NewHandler(relayService, config.Relay.MaxBodyBytes, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins, r.config.Server.CORSAllowedHeaders))

	// Relay endpoint
	router.Post(TranscribePath, r.handler.Transcribe)

	router.Route("/api/v1", func(router chi.Router) {
		// Health check
		router.Get("/health", r.handler.Health)

		// Transcription history
		router.Get("/transcriptions", r.handler.RecentTranscriptions)
	})

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		r.writeJSONError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		r.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

func (r *Router) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		r.logger.Debug("Failed to write JSON response", logger.Int("status", status), logger.Error(err))
	}
}
