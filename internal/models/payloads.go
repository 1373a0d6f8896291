package models

// ValidateCouponRequest is the body of POST /subscription/validate-coupon.
type ValidateCouponRequest struct {
	Coupon string `json:"coupon"`
}

// CouponResult is the response to a coupon validation request. Amount fields
// are major currency units and only present when the code is valid.
type CouponResult struct {
	Valid           bool     `json:"valid"`
	PromotionCodeID string   `json:"promotion_code_id,omitempty"`
	Description     string   `json:"description,omitempty"`
	FinalAmount     *float64 `json:"final_amount,omitempty"`
	OriginalAmount  *float64 `json:"original_amount,omitempty"`
	Message         string   `json:"message,omitempty"`
}

// ProcessPaymentRequest is the body of POST /subscription/payment/process.
// PaymentMethodID is the opaque token the widget obtained client-side; raw
// card data never reaches this service.
type ProcessPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	PromotionCode   string `json:"promotion_code,omitempty"`
}

// Process payment outcome statuses.
const (
	PaymentStatusSuccess        = "success"
	PaymentStatusRequiresAction = "requires_action"
	PaymentStatusError          = "error"
)

// ProcessPaymentResponse is returned by the payment processing and
// completion endpoints.
type ProcessPaymentResponse struct {
	Status         string `json:"status"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Email        string `json:"email"`
	BusinessName string `json:"business_name"`
	ABN          string `json:"abn"`
	AcceptTerms  bool   `json:"accept_terms"`
}

// RegisterResponse returns the created user together with a session token
// the client presents on subsequent requests.
type RegisterResponse struct {
	User         *User  `json:"user"`
	SessionToken string `json:"session_token"`
}
