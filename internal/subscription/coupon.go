package subscription

import (
	"context"
	"strings"

	"github.com/accessi-au/subscription-backend/internal/billing"
	"github.com/accessi-au/subscription-backend/internal/models"
)

// User-facing coupon messages. Validation messages are not security
// sensitive and pass through to the client verbatim.
const (
	msgInvalidCoupon = "Invalid or expired promotion code"
)

// ValidateCoupon checks a promotion code against the provider and computes
// the discounted price. Validation is purely advisory: nothing is persisted
// and the code is only applied at subscription-creation time. An unknown
// code is a valid (non-error) outcome; an error return means the provider
// could not be consulted.
func (m *Manager) ValidateCoupon(ctx context.Context, code string) (*models.CouponResult, error) {
	code = strings.TrimSpace(code)

	cfg, err := m.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	provider := m.provider(cfg.StripeSecretKey)

	promo, err := provider.FindPromotionCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return &models.CouponResult{Valid: false, Message: msgInvalidCoupon}, nil
	}

	price, err := provider.GetPrice(ctx, cfg.StripePriceID)
	if err != nil {
		return nil, err
	}

	final := billing.MajorUnits(promo.Coupon.Apply(price.UnitAmount))
	original := billing.MajorUnits(price.UnitAmount)

	return &models.CouponResult{
		Valid:           true,
		PromotionCodeID: promo.ID,
		Description:     promo.Coupon.Description(),
		FinalAmount:     &final,
		OriginalAmount:  &original,
	}, nil
}
