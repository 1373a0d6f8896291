package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/accessi-au/subscription-backend/internal/middleware"
	"github.com/accessi-au/subscription-backend/internal/models"
	"github.com/accessi-au/subscription-backend/internal/subscription"
)

// msgCouponError is returned whenever the billing provider cannot be
// consulted during coupon validation. The real cause stays in the logs.
const msgCouponError = "Error validating promotion code"

// SubscriptionManager defines the behaviour required from the subscription
// layer backing the payment handlers.
type SubscriptionManager interface {
	ValidateCoupon(ctx context.Context, code string) (*models.CouponResult, error)
	CreateSubscription(ctx context.Context, sessionToken string, userID int64, paymentMethodID, promotionCodeID string) (*models.ProcessPaymentResponse, error)
	CompletePendingSubscription(ctx context.Context, sessionToken string, userID int64) (*models.ProcessPaymentResponse, error)
}

// ValidateCoupon creates an HTTP handler that checks a promotion code and
// returns the discounted price. An unknown code is a normal 200 response;
// only a provider failure produces an error status.
func ValidateCoupon(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.ValidateCouponRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("ValidateCoupon: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
		if payload.Coupon == "" {
			http.Error(w, "missing coupon code", http.StatusBadRequest)
			return
		}

		result, err := manager.ValidateCoupon(r.Context(), payload.Coupon)
		if err != nil {
			log.Printf("ValidateCoupon: validation failed for code %q: %v", payload.Coupon, err)
			writeJSON(w, http.StatusBadRequest, &models.CouponResult{Valid: false, Message: msgCouponError})
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ProcessPayment creates an HTTP handler that runs the subscription
// creation flow for the authenticated user.
func ProcessPayment(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFrom(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		var payload models.ProcessPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("ProcessPayment: invalid JSON payload: %v", err)
			writePaymentError(w, "Invalid payment request.")
			return
		}
		if payload.PaymentMethodID == "" {
			writePaymentError(w, "Missing payment method.")
			return
		}

		resp, err := manager.CreateSubscription(r.Context(), middleware.SessionToken(r.Context()), user.ID, payload.PaymentMethodID, payload.PromotionCode)
		if err != nil {
			log.Printf("ProcessPayment: subscription creation failed for user %d: %v", user.ID, err)
			writePaymentError(w, paymentErrorMessage(err))
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// CompletePayment creates an HTTP handler that finishes a payment after
// the client's extra-authentication step.
func CompletePayment(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFrom(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		resp, err := manager.CompletePendingSubscription(r.Context(), middleware.SessionToken(r.Context()), user.ID)
		if err != nil {
			log.Printf("CompletePayment: completion failed for user %d: %v", user.ID, err)
			writePaymentError(w, paymentErrorMessage(err))
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// paymentErrorMessage maps subscription-layer errors to user-facing text.
func paymentErrorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrNotConfigured):
		return "Payments are not configured. Please contact support."
	case errors.Is(err, subscription.ErrCreationFailed):
		return "Subscription could not be created. Please try again."
	case errors.Is(err, subscription.ErrNothingPending):
		return "No pending payment found."
	case errors.Is(err, subscription.ErrPaymentIncomplete):
		return "Payment has not completed. Please try again."
	default:
		return "Payment processing failed. Please try again."
	}
}

func writePaymentError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, &models.ProcessPaymentResponse{
		Status:  models.PaymentStatusError,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("writeJSON: failed to encode response: %v", err)
	}
}
