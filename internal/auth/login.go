package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nidscan/nid-ocr-service/internal/logging"
	"github.com/nidscan/nid-ocr-service/internal/models"
	"github.com/nidscan/nid-ocr-service/internal/ratelimit"
)

// maxTokenRequestBytes bounds the exchange request body
const maxTokenRequestBytes = 4 << 10

// TokenHandler exchanges the static token for a JWT naming the client.
// Each exchange takes a slot from the credential's budget in ledger, the same
// budget the minted tokens draw from.
// POST /api/token {"client_id": "..."}
func TokenHandler(a *Authenticator, ledger ratelimit.Ledger, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if !a.ExchangeEnabled() {
			writeError(w, http.StatusNotFound, "token exchange is disabled")
			return
		}

		id, err := a.Authenticate(PresentedToken(r))
		if err != nil || id.Method != MethodStatic {
			// Exchanged tokens cannot mint further tokens
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ok, err := ledger.Allow(r.Context(), id.Credential, time.Now())
		if err != nil || !ok {
			if err != nil {
				logger.Warn("Rate limit check failed", "error", err)
			}
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		var req models.TokenRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTokenRequestBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ClientID == "" {
			writeError(w, http.StatusBadRequest, "client_id is required")
			return
		}

		token, expires, err := a.IssueToken(req.ClientID)
		if err != nil {
			logger.Error("Failed to issue token", "client", req.ClientID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to generate token")
			return
		}

		logger.Info("Issued access token", "client", req.ClientID, "expires_at", expires.Format(time.RFC3339))
		json.NewEncoder(w).Encode(models.TokenResponse{
			Token:     token,
			ExpiresAt: expires.Format(time.RFC3339),
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Success: false, Error: msg})
}
