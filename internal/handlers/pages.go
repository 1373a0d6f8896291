package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/accessi-au/subscription-backend/internal/middleware"
	"github.com/accessi-au/subscription-backend/internal/models"
	"github.com/accessi-au/subscription-backend/internal/subscription"
)

//go:embed templates/*.html
var pageTemplates embed.FS

var pages = template.Must(template.ParseFS(pageTemplates, "templates/*.html"))

// PaymentPageProvider supplies the payment form view model.
type PaymentPageProvider interface {
	PaymentPageData(ctx context.Context) (*subscription.PaymentPage, error)
}

// paymentPageView is passed to the payment template. WidgetConfig is the
// JSON settings payload injected for the client-side widget.
type paymentPageView struct {
	Configured   bool
	Page         *subscription.PaymentPage
	WidgetConfig template.JS
}

// PaymentPage creates an HTTP handler that renders the payment form. When
// billing is not configured the page renders with a notice instead of the
// form.
func PaymentPage(provider PaymentPageProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := paymentPageView{}

		page, err := provider.PaymentPageData(r.Context())
		switch {
		case err == nil:
			view.Configured = true
			view.Page = page

			cfg, err := json.Marshal(map[string]any{
				"publishableKey": page.PublishableKey,
				"amount":         page.AmountMinor,
				"currency":       page.CurrencyCode,
				"processUrl":     page.ProcessURL,
			})
			if err != nil {
				http.Error(w, "failed to render page", http.StatusInternalServerError)
				return
			}
			view.WidgetConfig = template.JS(cfg)

		case errors.Is(err, models.ErrNotConfigured):
			// Render the notice.

		default:
			log.Printf("PaymentPage: failed to load page data: %v", err)
			http.Error(w, "failed to load payment page", http.StatusBadGateway)
			return
		}

		renderPage(w, "payment.html", view)
	}
}

// DetailsProvider supplies the subscription details view model and the
// one-shot post-payment success flag.
type DetailsProvider interface {
	SubscriptionDetails(ctx context.Context, userID int64) (*subscription.Details, error)
	ConsumePaymentSuccess(ctx context.Context, sessionToken string) bool
}

type detailsPageView struct {
	PaymentSucceeded bool
	ReceiptFailed    bool
	Details          *subscription.Details
	ReceiptBasePath  string
}

// SubscriptionDetailsPage creates an HTTP handler that renders the user's
// subscription details and paid-invoice history.
func SubscriptionDetailsPage(provider DetailsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}

		details, err := provider.SubscriptionDetails(r.Context(), userID)
		if err != nil {
			log.Printf("SubscriptionDetailsPage: failed to load details for user %d: %v", userID, err)
			http.Error(w, "failed to load subscription details", http.StatusBadGateway)
			return
		}

		view := detailsPageView{
			ReceiptFailed:   r.URL.Query().Get("receipt_error") != "",
			Details:         details,
			ReceiptBasePath: "/user/" + strconv.FormatInt(userID, 10) + "/subscription/tax-receipt/",
		}
		if token := middleware.SessionToken(r.Context()); token != "" {
			view.PaymentSucceeded = provider.ConsumePaymentSuccess(r.Context(), token)
		}

		renderPage(w, "subscription_details.html", view)
	}
}

func renderPage(w http.ResponseWriter, name string, view any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, view); err != nil {
		log.Printf("renderPage: failed to execute %s: %v", name, err)
	}
}
