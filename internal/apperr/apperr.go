// Package apperr defines the typed failures that every checkout component
// returns and the HTTP layer maps to status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindUpstream   Kind = "upstream"
	KindInvariant  Kind = "invariant"
)

type Code string

const (
	CodeValidation           Code = "validation_failed"
	CodeProductNotFound      Code = "product_not_found"
	CodeOutOfStock           Code = "out_of_stock"
	CodeCartEmpty            Code = "cart_empty"
	CodeCartNotFound         Code = "cart_not_found"
	CodeStockChanged         Code = "stock_changed"
	CodeAlreadyConfirmed     Code = "already_confirmed"
	CodeInvalidCheckoutState Code = "invalid_checkout_state"
	CodeAddressRequired      Code = "address_required"
	CodeDiscountNotFound     Code = "discount_not_found"
	CodeDiscountExpired      Code = "discount_expired"
	CodeDiscountExhausted    Code = "discount_exhausted"
	CodeRateNotOffered       Code = "rate_not_offered"
	CodeNoShippingRates      Code = "no_shipping_rates"
	CodeShippingQuoteStale   Code = "shipping_quote_stale"
	CodeInvalidTransition    Code = "invalid_transition"
	CodeOrderNotFound        Code = "order_not_found"
	CodePaymentNotFound      Code = "payment_not_found"
	CodeInvalidSignature     Code = "invalid_signature"
	CodeForbidden            Code = "forbidden"
	CodeUpstream             Code = "upstream_unavailable"
	CodeTotalsMismatch       Code = "totals_mismatch"
)

// Error is the single error type surfaced by the domain packages.
type Error struct {
	Kind     Kind
	Code     Code
	Message  string
	Resource string
	Fields   map[string]string
	Details  map[string]any
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may safely resubmit the request.
func (e *Error) Retryable() bool { return e.Kind == KindUpstream }

func newSentinel(kind Kind, code Code) *Error { return &Error{Kind: kind, Code: code} }

var (
	ErrProductNotFound      = newSentinel(KindNotFound, CodeProductNotFound)
	ErrOutOfStock           = newSentinel(KindConflict, CodeOutOfStock)
	ErrCartEmpty            = newSentinel(KindConflict, CodeCartEmpty)
	ErrCartNotFound         = newSentinel(KindNotFound, CodeCartNotFound)
	ErrStockChanged         = newSentinel(KindConflict, CodeStockChanged)
	ErrAlreadyConfirmed     = newSentinel(KindConflict, CodeAlreadyConfirmed)
	ErrInvalidCheckoutState = newSentinel(KindConflict, CodeInvalidCheckoutState)
	ErrAddressRequired      = newSentinel(KindValidation, CodeAddressRequired)
	ErrDiscountNotFound     = newSentinel(KindNotFound, CodeDiscountNotFound)
	ErrDiscountExpired      = newSentinel(KindValidation, CodeDiscountExpired)
	ErrDiscountExhausted    = newSentinel(KindConflict, CodeDiscountExhausted)
	ErrRateNotOffered       = newSentinel(KindValidation, CodeRateNotOffered)
	ErrNoShippingRates      = newSentinel(KindConflict, CodeNoShippingRates)
	ErrShippingQuoteStale   = newSentinel(KindConflict, CodeShippingQuoteStale)
	ErrInvalidTransition    = newSentinel(KindConflict, CodeInvalidTransition)
	ErrOrderNotFound        = newSentinel(KindNotFound, CodeOrderNotFound)
	ErrPaymentNotFound      = newSentinel(KindNotFound, CodePaymentNotFound)
	ErrInvalidSignature     = newSentinel(KindForbidden, CodeInvalidSignature)
	ErrForbidden            = newSentinel(KindForbidden, CodeForbidden)
	ErrUpstream             = newSentinel(KindUpstream, CodeUpstream)
	ErrTotalsMismatch       = newSentinel(KindInvariant, CodeTotalsMismatch)
)

// New builds an error of the sentinel's kind and code with a message.
func New(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause to a sentinel.
func Wrap(sentinel *Error, err error, format string, args ...any) *Error {
	e := New(sentinel, format, args...)
	e.Err = err
	return e
}

// Validation returns a field-level validation error.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: "validation failed", Fields: fields}
}

// StockChanged names every product whose live stock no longer covers the cart.
func StockChanged(shortages []Shortage) *Error {
	ids := make([]string, 0, len(shortages))
	details := make([]any, 0, len(shortages))
	for _, s := range shortages {
		ids = append(ids, s.ProductID)
		details = append(details, map[string]any{
			"productId": s.ProductID,
			"title":     s.Title,
			"available": s.Available,
			"requested": s.Requested,
		})
	}
	return &Error{
		Kind:     KindConflict,
		Code:     CodeStockChanged,
		Message:  "stock changed for " + strings.Join(ids, ", "),
		Resource: strings.Join(ids, ","),
		Details:  map[string]any{"items": details},
	}
}

type Shortage struct {
	ProductID string
	Title     string
	Available int
	Requested int
}

// InvalidTransition names the current and requested status.
func InvalidTransition(resource, from, to string) *Error {
	return &Error{
		Kind:     KindConflict,
		Code:     CodeInvalidTransition,
		Message:  fmt.Sprintf("cannot move %s from %s to %s", resource, from, to),
		Resource: resource,
		Details:  map[string]any{"from": from, "to": to},
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
