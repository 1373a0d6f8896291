package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/accessi-au/subscription-backend/internal/models"
	"github.com/accessi-au/subscription-backend/internal/receipt"
)

// ReceiptRenderer defines the behaviour required from the receipt layer.
type ReceiptRenderer interface {
	TaxReceipt(ctx context.Context, user *models.User, invoiceID string, opts receipt.Options) ([]byte, string, error)
}

// ReceiptUserStore loads the user the receipt is rendered for.
type ReceiptUserStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// TaxReceipt creates an HTTP handler that streams a PDF tax receipt for
// one of the user's paid invoices. Optional size and orientation query
// parameters select the page geometry.
func TaxReceipt(renderer ReceiptRenderer, users ReceiptUserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		invoiceID := chi.URLParam(r, "invoiceID")
		if invoiceID == "" {
			http.Error(w, "missing invoice id", http.StatusBadRequest)
			return
		}

		opts, err := receiptOptions(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := users.GetUserByID(r.Context(), userID)
		if err != nil {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}

		pdf, filename, err := renderer.TaxReceipt(r.Context(), user, invoiceID, opts)
		if err != nil {
			if errors.Is(err, receipt.ErrInvoiceNotFound) {
				http.Error(w, "invoice not found", http.StatusNotFound)
				return
			}
			log.Printf("TaxReceipt: failed to render invoice %s for user %d: %v", invoiceID, userID, err)
			// The listing page shows receipts, so send the user back
			// there with the error flagged.
			http.Redirect(w, r, "/user/"+strconv.FormatInt(userID, 10)+"/subscription?receipt_error=1", http.StatusSeeOther)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
		if _, err := w.Write(pdf); err != nil {
			log.Printf("TaxReceipt: failed to write response: %v", err)
		}
	}
}

func receiptOptions(r *http.Request) (receipt.Options, error) {
	opts := receipt.Options{}

	switch size := strings.ToLower(r.URL.Query().Get("size")); size {
	case "":
	case "a4":
		opts.PageSize = receipt.PageSizeA4
	case "letter":
		opts.PageSize = receipt.PageSizeLetter
	default:
		return opts, errors.New("invalid page size")
	}

	switch orientation := strings.ToLower(r.URL.Query().Get("orientation")); orientation {
	case "":
	case "portrait":
		opts.Orientation = receipt.OrientationPortrait
	case "landscape":
		opts.Orientation = receipt.OrientationLandscape
	default:
		return opts, errors.New("invalid orientation")
	}

	return opts, nil
}
