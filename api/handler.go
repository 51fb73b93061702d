package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nidscan/nid-ocr-service/internal/auth"
	"github.com/nidscan/nid-ocr-service/internal/db"
	apperrors "github.com/nidscan/nid-ocr-service/internal/errors"
	"github.com/nidscan/nid-ocr-service/internal/logging"
	"github.com/nidscan/nid-ocr-service/internal/models"
	"github.com/nidscan/nid-ocr-service/internal/pipeline"
	"github.com/nidscan/nid-ocr-service/internal/ratelimit"
)

const (
	Version = "1.0.0"

	// multipartOverhead is allowed on top of the image limit for boundaries
	// and reference fields
	multipartOverhead = 64 << 10

	healthTimeout = 2 * time.Second
)

// Handler handles HTTP requests for card processing
type Handler struct {
	config *models.Config
	orch   *pipeline.Orchestrator
	auth   *auth.Authenticator
	ledger ratelimit.Ledger
	logger *logging.Logger
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, orch *pipeline.Orchestrator, a *auth.Authenticator, ledger ratelimit.Ledger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		config: config,
		orch:   orch,
		auth:   a,
		ledger: ledger,
		logger: logger,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(SecurityHeaders, Recoverer(h.logger))

	// Main endpoints
	router.HandleFunc("/process_image", h.ProcessImage).Methods("POST")
	router.HandleFunc("/api/process-image", h.ProcessImage).Methods("POST")

	// Token exchange
	router.HandleFunc("/api/token", auth.TokenHandler(h.auth, h.ledger, h.logger)).Methods("POST")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/", h.Index).Methods("GET")

	// Router-level handlers bypass middleware
	router.NotFoundHandler = SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, "Endpoint not found", "", "")
	}))
	router.MethodNotAllowedHandler = SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed", "", "")
	}))

	return router
}

// Index is the liveness message
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "NID Extractor API is running."})
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Engine    ServiceStatus `json:"engine"`
	RateLimit ServiceStatus `json:"rateLimit"`
	Database  ServiceStatus `json:"database"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	rateLimitStatus := h.checkLedger(ctx)
	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Engine:    h.checkEngine(),
		RateLimit: rateLimitStatus,
		Database:  h.checkDatabase(ctx),
	}

	// Without a ledger no request can be admitted
	if !rateLimitStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkEngine reports the engine name and, for local engines, its library version
func (h *Handler) checkEngine() ServiceStatus {
	status := ServiceStatus{Available: true, Version: h.orch.EngineName()}
	if v, ok := h.orch.Engine.(interface{ Version() string }); ok {
		status.Version += " " + v.Version()
	}
	return status
}

// checkLedger pings ledgers backed by a remote store
func (h *Handler) checkLedger(ctx context.Context) ServiceStatus {
	status := ServiceStatus{Available: true, Version: h.ledger.Backend()}
	if p, ok := h.ledger.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			status.Available = false
			status.Error = err.Error()
		}
	}
	return status
}

// checkDatabase verifies the audit database. It is optional, so a missing pool
// does not degrade the service.
func (h *Handler) checkDatabase(ctx context.Context) ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "audit log disabled",
		}
	}
	if err := db.Pool.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}
	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL",
	}
}

// ProcessImage extracts the card fields from an uploaded image and compares
// them with any reference values sent alongside it.
func (h *Handler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	r.Body = http.MaxBytesReader(w, r.Body, h.config.Upload.MaxBytes+multipartOverhead)
	upload, refs := parseUpload(r)

	resp, err := h.orch.Process(r.Context(), pipeline.Request{
		RequestID:  requestID,
		Token:      auth.PresentedToken(r),
		ClientAddr: clientAddr(r),
		Upload:     upload,
		References: refs,
	})
	if err != nil {
		h.sendProcessError(w, requestID, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) sendProcessError(w http.ResponseWriter, requestID string, err error) {
	e, ok := apperrors.As(err)
	if !ok {
		h.logger.Error("Unclassified processing error", "request_id", requestID, "error", err)
		sendError(w, http.StatusInternalServerError, "Internal server error", "", requestID)
		return
	}

	status := statusFor(e.Code)
	if e.Code == apperrors.ErrorRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.config.RateLimit.Window.Seconds())))
	}

	details := make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		if k != "client" {
			details[k] = v
		}
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Success:   false,
		Error:     e.Message,
		Code:      string(e.Code),
		RequestID: requestID,
		Details:   details,
	})
}

// statusFor maps error codes to HTTP status
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrorUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrorPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.ErrorUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case apperrors.ErrorRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrorMissingUpload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clientAddr is the remote IP without the port
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sendError sends an error response
func sendError(w http.ResponseWriter, statusCode int, message, code, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Success:   false,
		Error:     message,
		Code:      code,
		RequestID: requestID,
	})
}
