// Package paymentflow drives the payment form's client-side lifecycle:
// coupon entry, card tokenization, server processing, and the optional
// extra-authentication round trip. The flow is a strict state machine so
// double submits and late coupon edits cannot happen.
package paymentflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/accessi-au/subscription-backend/internal/models"
)

// State is the flow's current lifecycle position.
type State string

const (
	StateIdle              State = "idle"
	StateCouponValidating  State = "coupon_validating"
	StateCouponApplied     State = "coupon_applied"
	StateCouponError       State = "coupon_error"
	StateSubmitting        State = "submitting"
	StateElementValidating State = "element_validating"
	StateTokenizing        State = "tokenizing"
	StateServerProcessing  State = "server_processing"
	StateRequiresAction    State = "requires_action"
	StateConfirming        State = "confirming"
	StateSuccess           State = "success"
	StateError             State = "error"
)

// Progressive status messages shown while a submit is in flight.
const (
	msgValidating     = "Validating payment details..."
	msgTokenizing     = "Creating payment method..."
	msgProcessing     = "Processing payment..."
	msgRequiresAction = "Additional verification required..."
	msgSuccess        = "Payment successful! Redirecting..."
)

var (
	// ErrSubmitInFlight rejects a submit while another is still running.
	ErrSubmitInFlight = errors.New("paymentflow: payment already in progress")
	// ErrCouponLocked rejects coupon changes once a code has been applied.
	ErrCouponLocked = errors.New("paymentflow: coupon already applied")
	// ErrEmptyCoupon rejects a blank coupon entry.
	ErrEmptyCoupon = errors.New("paymentflow: empty coupon code")
)

// CardElement abstracts the hosted card input: local validation, payment
// method tokenization, and the extra-authentication confirmation step.
type CardElement interface {
	Validate(ctx context.Context) error
	Tokenize(ctx context.Context) (paymentMethodID string, err error)
	ConfirmPayment(ctx context.Context, clientSecret string) error
}

// API is the server surface the flow talks to.
type API interface {
	ValidateCoupon(ctx context.Context, code string) (*models.CouponResult, error)
	ProcessPayment(ctx context.Context, req models.ProcessPaymentRequest) (*models.ProcessPaymentResponse, error)
	CompletePayment(ctx context.Context) (*models.ProcessPaymentResponse, error)
}

// Flow is the payment form state machine. All methods are safe for
// concurrent use; Submit is serialized and a second call while one is in
// flight fails fast with ErrSubmitInFlight.
type Flow struct {
	card CardElement
	api  API

	// OnStateChange, when set, observes every transition. It is invoked
	// with the flow lock held and must not call back into the flow.
	OnStateChange func(state State, status string)

	mu          sync.Mutex
	state       State
	status      string
	coupon      *models.CouponResult
	redirectURL string
	lastErr     error
}

// New creates an idle Flow.
func New(card CardElement, api API) *Flow {
	return &Flow{card: card, api: api, state: StateIdle}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Status returns the current progress message.
func (f *Flow) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// AppliedCoupon returns the locked-in coupon result, or nil.
func (f *Flow) AppliedCoupon() *models.CouponResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coupon
}

// RedirectURL returns the post-success destination, set once the flow
// reaches StateSuccess.
func (f *Flow) RedirectURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redirectURL
}

// Err returns the error recorded by the last failed submit, or nil.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Flow) transition(state State, status string) {
	f.state = state
	f.status = status
	if f.OnStateChange != nil {
		f.OnStateChange(state, status)
	}
}

// ApplyCoupon validates a promotion code and, on success, locks it in for
// the eventual submit. A code can be applied at most once: after a
// successful application further calls fail with ErrCouponLocked, while a
// failed attempt leaves the flow open for another try.
func (f *Flow) ApplyCoupon(ctx context.Context, code string) (*models.CouponResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCoupon
	}

	f.mu.Lock()
	if f.coupon != nil {
		f.mu.Unlock()
		return nil, ErrCouponLocked
	}
	if f.state != StateIdle && f.state != StateCouponError {
		state := f.state
		f.mu.Unlock()
		return nil, errors.New("paymentflow: cannot apply coupon in state " + string(state))
	}
	f.transition(StateCouponValidating, "")
	f.mu.Unlock()

	res, err := f.api.ValidateCoupon(ctx, code)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.transition(StateCouponError, "")
		return nil, err
	}
	if !res.Valid {
		f.transition(StateCouponError, "")
		return res, nil
	}

	f.coupon = res
	f.transition(StateCouponApplied, "")
	return res, nil
}

// Submit runs the full payment sequence: local card validation,
// tokenization, server processing, and the confirmation round trip when the
// server asks for extra authentication. On failure the flow lands in
// StateError and a new Submit may be attempted.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	switch f.state {
	case StateIdle, StateCouponApplied, StateCouponError, StateError:
	default:
		f.mu.Unlock()
		return ErrSubmitInFlight
	}
	f.lastErr = nil
	f.transition(StateSubmitting, "")

	var promoID string
	if f.coupon != nil {
		promoID = f.coupon.PromotionCodeID
	}
	f.transition(StateElementValidating, msgValidating)
	f.mu.Unlock()

	if err := f.card.Validate(ctx); err != nil {
		return f.fail(err)
	}

	f.setState(StateTokenizing, msgTokenizing)
	paymentMethodID, err := f.card.Tokenize(ctx)
	if err != nil {
		return f.fail(err)
	}

	f.setState(StateServerProcessing, msgProcessing)
	resp, err := f.api.ProcessPayment(ctx, models.ProcessPaymentRequest{
		PaymentMethodID: paymentMethodID,
		PromotionCode:   promoID,
	})
	if err != nil {
		return f.fail(err)
	}

	switch resp.Status {
	case models.PaymentStatusSuccess:
		return f.succeed(resp.RedirectURL)

	case models.PaymentStatusRequiresAction:
		f.setState(StateRequiresAction, msgRequiresAction)
		if err := f.card.ConfirmPayment(ctx, resp.ClientSecret); err != nil {
			return f.fail(err)
		}

		f.setState(StateConfirming, msgProcessing)
		done, err := f.api.CompletePayment(ctx)
		if err != nil {
			return f.fail(err)
		}
		return f.succeed(done.RedirectURL)

	default:
		if resp.Message != "" {
			return f.fail(errors.New(resp.Message))
		}
		return f.fail(errors.New("paymentflow: payment failed"))
	}
}

func (f *Flow) setState(state State, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transition(state, status)
}

func (f *Flow) fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = err
	f.transition(StateError, err.Error())
	return err
}

func (f *Flow) succeed(redirectURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirectURL = redirectURL
	f.transition(StateSuccess, msgSuccess)
	return nil
}
