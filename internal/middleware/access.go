package middleware

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/accessi-au/subscription-backend/internal/models"
)

// adminRole may always pass the access gates and manage billing settings.
const adminRole = "administrator"

// SettingsStore loads the admin-configured billing settings, which name
// the roles the gates check for.
type SettingsStore interface {
	GetBillingSettings(ctx context.Context) (*models.BillingSettings, error)
}

// RequirePaymentAccess admits users holding the configured payment-form
// role (or administrators) to the payment page and its API routes.
func RequirePaymentAccess(settings SettingsStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFrom(r.Context())
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			cfg, err := settings.GetBillingSettings(r.Context())
			if err != nil {
				log.Printf("RequirePaymentAccess: load settings: %v", err)
				http.Error(w, "failed to load settings", http.StatusInternalServerError)
				return
			}

			if !user.HasRole(adminRole) && (cfg.PaymentFormRole == "" || !user.HasRole(cfg.PaymentFormRole)) {
				http.Error(w, "access denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSubscriptionAccess admits users to their own subscription routes:
// the path's userID must match the session user, and the user must hold
// the payment-form or paid role. Administrators may view any user.
func RequireSubscriptionAccess(settings SettingsStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFrom(r.Context())
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			requested, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
			if err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}

			if user.HasRole(adminRole) {
				next.ServeHTTP(w, r)
				return
			}

			if requested != user.ID {
				http.Error(w, "access denied", http.StatusForbidden)
				return
			}

			cfg, err := settings.GetBillingSettings(r.Context())
			if err != nil {
				log.Printf("RequireSubscriptionAccess: load settings: %v", err)
				http.Error(w, "failed to load settings", http.StatusInternalServerError)
				return
			}

			allowed := (cfg.PaymentFormRole != "" && user.HasRole(cfg.PaymentFormRole)) ||
				(cfg.PaidRole != "" && user.HasRole(cfg.PaidRole))
			if !allowed {
				http.Error(w, "access denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits administrators only. It guards the billing settings
// endpoints.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFrom(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if !user.HasRole(adminRole) {
			http.Error(w, "access denied", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
