package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSentinelMatchesByCode(t *testing.T) {
	err := fmt.Errorf("confirm: %w", New(ErrAlreadyConfirmed, "cart %s", "abc"))
	if !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatal("expected wrapped error to match ErrAlreadyConfirmed")
	}
	if errors.Is(err, ErrCartEmpty) {
		t.Fatal("did not expect match with ErrCartEmpty")
	}
}

func TestStatusByKind(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ErrAddressRequired, http.StatusUnprocessableEntity},
		{ErrStockChanged, http.StatusConflict},
		{ErrOrderNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrUpstream, http.StatusBadGateway},
		{ErrNoShippingRates, http.StatusConflict},
		{ErrShippingQuoteStale, http.StatusConflict},
		{ErrTotalsMismatch, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.Status(); got != tt.want {
			t.Errorf("%s: status %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestStockChangedNamesItems(t *testing.T) {
	err := StockChanged([]Shortage{
		{ProductID: "p1", Available: 0, Requested: 2},
		{ProductID: "p2", Available: 1, Requested: 3},
	})
	if err.Resource != "p1,p2" {
		t.Fatalf("expected resource p1,p2, got %q", err.Resource)
	}
	if !errors.Is(err, ErrStockChanged) {
		t.Fatal("expected StockChanged to match sentinel")
	}
}

func TestInvalidTransitionDetails(t *testing.T) {
	err := InvalidTransition("order", "paid", "cancelled")
	if err.Details["from"] != "paid" || err.Details["to"] != "cancelled" {
		t.Fatalf("unexpected details: %+v", err.Details)
	}
	if err.Status() != http.StatusConflict {
		t.Fatalf("expected 409, got %d", err.Status())
	}
}
