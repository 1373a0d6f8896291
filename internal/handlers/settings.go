package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/accessi-au/subscription-backend/internal/models"
)

// AdminSettingsStore defines the behaviour required from the storage
// client backing the admin settings handlers.
type AdminSettingsStore interface {
	GetBillingSettings(ctx context.Context) (*models.BillingSettings, error)
	SaveBillingSettings(ctx context.Context, cfg *models.BillingSettings) error
}

// GetSettings creates an HTTP handler that returns the billing settings.
// The secret key is write-only: the response reports whether one is set
// without revealing it.
func GetSettings(store AdminSettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := store.GetBillingSettings(r.Context())
		if err != nil {
			log.Printf("GetSettings: failed to load settings: %v", err)
			http.Error(w, "failed to load settings", http.StatusBadGateway)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"stripe_secret_key_set":  cfg.StripeSecretKey != "",
			"stripe_publishable_key": cfg.StripePublishableKey,
			"stripe_price_id":        cfg.StripePriceID,
			"payment_form_role":      cfg.PaymentFormRole,
			"paid_role":              cfg.PaidRole,
			"updated_at":             cfg.UpdatedAt,
		})
	}
}

// UpdateSettings creates an HTTP handler that replaces the billing
// settings. An empty secret key in the payload keeps the stored one, so
// admins can update other fields without re-entering it.
func UpdateSettings(store AdminSettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.BillingSettings
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("UpdateSettings: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		current, err := store.GetBillingSettings(r.Context())
		if err != nil {
			log.Printf("UpdateSettings: failed to load settings: %v", err)
			http.Error(w, "failed to load settings", http.StatusBadGateway)
			return
		}

		payload.StripeSecretKey = strings.TrimSpace(payload.StripeSecretKey)
		if payload.StripeSecretKey == "" {
			payload.StripeSecretKey = current.StripeSecretKey
		}

		if err := store.SaveBillingSettings(r.Context(), &payload); err != nil {
			log.Printf("UpdateSettings: failed to persist settings: %v", err)
			http.Error(w, "failed to persist settings", http.StatusBadGateway)
			return
		}

		log.Printf("UpdateSettings: billing settings updated")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
