package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupported        = errors.New("operation not supported")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrMinimumSpend       = errors.New("minimum spend not met")
	ErrSlotUnavailable    = errors.New("delivery slot unavailable")
	ErrAutomation         = errors.New("browser automation failed")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrItemNotFound       = errors.New("basket item not found")
	ErrLoginFailed        = errors.New("login failed")
	ErrInvalidMFACode     = errors.New("verification code must be 6 digits")
	ErrNoSession          = errors.New("no session found, login first")
	ErrOrderAlreadyPlaced = errors.New("an order was already placed")
)

// TransportError is a non-2xx response from a retailer API
type TransportError struct {
	Provider   string
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s: %s %s: status %d: %s", e.Provider, e.Method, e.URL, e.StatusCode, body)
}

// Is makes 401 and 403 responses match ErrNotAuthenticated
func (e *TransportError) Is(target error) bool {
	return target == ErrNotAuthenticated && e.IsAuth()
}

// IsAuth reports whether the response indicates a missing or expired session
func (e *TransportError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound reports a 404 response
func (e *TransportError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// UnsupportedError is a capability a provider does not implement over its JSON API
type UnsupportedError struct {
	Provider  string
	Operation string
	Hint      string
}

func (e *UnsupportedError) Error() string {
	msg := fmt.Sprintf("%s: %s is not supported", e.Provider, e.Operation)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(provider, operation, hint string) *UnsupportedError {
	return &UnsupportedError{Provider: provider, Operation: operation, Hint: hint}
}

// Precondition reasons
const (
	ReasonMinimumSpend    = "minimum_spend"
	ReasonSlotUnavailable = "slot_unavailable"
)

// PreconditionError is a business-rule rejection
type PreconditionError struct {
	Provider string
	Reason   string
	Minimum  decimal.Decimal
	Observed decimal.Decimal
	Detail   string
}

func (e *PreconditionError) Error() string {
	switch e.Reason {
	case ReasonMinimumSpend:
		var msg string
		switch {
		case e.Minimum.IsZero():
			msg = fmt.Sprintf("%s: minimum spend not met", e.Provider)
		case e.Observed.IsZero() && e.Detail != "":
			msg = fmt.Sprintf("%s: basket is below the £%s minimum spend", e.Provider, e.Minimum.StringFixed(2))
		default:
			msg = fmt.Sprintf("%s: basket total £%s is below the £%s minimum spend",
				e.Provider, e.Observed.StringFixed(2), e.Minimum.StringFixed(2))
		}
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		return msg
	case ReasonSlotUnavailable:
		return fmt.Sprintf("%s: delivery slot %s is not available", e.Provider, e.Detail)
	}
	return fmt.Sprintf("%s: precondition failed: %s", e.Provider, e.Detail)
}

func (e *PreconditionError) Unwrap() error {
	switch e.Reason {
	case ReasonMinimumSpend:
		return ErrMinimumSpend
	case ReasonSlotUnavailable:
		return ErrSlotUnavailable
	}
	return nil
}

// AutomationError is a browser step that could not find what it expected
type AutomationError struct {
	Provider   string
	Flow       string
	State      string
	Screenshot string
	HTML       string
	Err        error
}

func (e *AutomationError) Error() string {
	msg := fmt.Sprintf("%s: %s flow failed in state %s: %v", e.Provider, e.Flow, e.State, e.Err)
	if e.Screenshot != "" || e.HTML != "" {
		msg += fmt.Sprintf(" (diagnostics: %s %s)", e.Screenshot, e.HTML)
	}
	return msg
}

func (e *AutomationError) Unwrap() []error {
	return []error{ErrAutomation, e.Err}
}

// UnknownProviderError lists every valid name so the caller can self-correct
type UnknownProviderError struct {
	Name      string
	Available []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %s. Available: %s", e.Name, strings.Join(e.Available, ", "))
}

// IsAuthError returns true if the error means the session is missing or expired
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrNoSession)
}

// IsNotFound returns true if a transport error carries a 404
func IsNotFound(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr) && transportErr.IsNotFound()
}
