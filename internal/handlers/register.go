package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/accessi-au/subscription-backend/internal/models"
)

// abnWeights are the ABN checksum weights. The first digit is reduced by
// one before weighting and the weighted sum must divide by 89.
var abnWeights = [11]int{10, 1, 3, 5, 7, 9, 11, 13, 15, 17, 19}

// RegisterStore defines the behaviour required from the storage client
// backing the registration handler.
type RegisterStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, email, businessName, abn string, acceptedTerms bool) (*models.User, error)
	GrantRole(ctx context.Context, userID int64, role string) error
	CreateSession(ctx context.Context, userID int64) (string, error)
	GetBillingSettings(ctx context.Context) (*models.BillingSettings, error)
}

// Register creates an HTTP handler that registers a provider account,
// grants the configured payment-form role, and opens a session.
func Register(store RegisterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("Register: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		email := strings.TrimSpace(strings.ToLower(payload.Email))
		if email == "" || !strings.Contains(email, "@") {
			http.Error(w, "a valid email address is required", http.StatusBadRequest)
			return
		}
		if !payload.AcceptTerms {
			http.Error(w, "terms and conditions must be accepted", http.StatusBadRequest)
			return
		}

		abn := normalizeABN(payload.ABN)
		if payload.ABN != "" && !ValidABN(abn) {
			http.Error(w, "invalid ABN", http.StatusBadRequest)
			return
		}

		if existing, err := store.GetUserByEmail(r.Context(), email); err == nil && existing != nil {
			http.Error(w, "an account with this email already exists", http.StatusConflict)
			return
		}

		user, err := store.CreateUser(r.Context(), email, strings.TrimSpace(payload.BusinessName), abn, payload.AcceptTerms)
		if err != nil {
			log.Printf("Register: failed to create user %s: %v", email, err)
			http.Error(w, "failed to create account", http.StatusBadGateway)
			return
		}

		if cfg, err := store.GetBillingSettings(r.Context()); err == nil && cfg.PaymentFormRole != "" {
			if err := store.GrantRole(r.Context(), user.ID, cfg.PaymentFormRole); err != nil {
				log.Printf("Register: failed to grant role to user %d: %v", user.ID, err)
			} else {
				user.Roles = append(user.Roles, cfg.PaymentFormRole)
			}
		}

		token, err := store.CreateSession(r.Context(), user.ID)
		if err != nil {
			log.Printf("Register: failed to open session for user %d: %v", user.ID, err)
			http.Error(w, "failed to open session", http.StatusBadGateway)
			return
		}

		log.Printf("Register: created user %d (%s)", user.ID, email)

		http.SetCookie(w, &http.Cookie{
			Name:     "session_token",
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusCreated, &models.RegisterResponse{User: user, SessionToken: token})
	}
}

func normalizeABN(abn string) string {
	return strings.ReplaceAll(strings.TrimSpace(abn), " ", "")
}

// ValidABN reports whether the string is a checksum-valid Australian
// Business Number: eleven digits whose weighted sum, after subtracting one
// from the leading digit, is divisible by 89.
func ValidABN(abn string) bool {
	if len(abn) != 11 {
		return false
	}

	sum := 0
	for i, c := range abn {
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if i == 0 {
			digit--
		}
		sum += digit * abnWeights[i]
	}
	return sum%89 == 0
}
