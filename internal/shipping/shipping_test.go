package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/models"
)

var istanbul = models.Address{FullName: "Ayşe Yılmaz", Country: "TR", City: "İstanbul", Line1: "Bağdat Cd. 1"}

func TestCarrierClientQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rates" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer api key, got %q", got)
		}
		var req rateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Parcel.Items != 3 || req.Destination.City != "İstanbul" {
			t.Errorf("unexpected request body %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rates":[
			{"serviceCode":"express","serviceName":"Express","amount":4500,"estimatedDays":1},
			{"serviceCode":"eco","serviceName":"Economy","amount":2500,"currency":"TRY","estimatedDays":4},
			{"serviceCode":"intl","serviceName":"International","amount":900,"currency":"USD","estimatedDays":6},
			{"serviceName":"broken","amount":10}
		]}`))
	}))
	defer srv.Close()

	client := NewCarrierClient("acme", srv.URL, "secret", models.Address{Country: "TR", City: "Ankara"}, "TRY", 0)
	parcel := NewParcel([]models.CartItem{{Quantity: 2}, {Quantity: 1}}, 500, 20000)
	rates, err := client.Quote(context.Background(), istanbul, parcel)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "acme", rates[0].Provider)
	assert.Equal(t, int64(4500), rates[0].Amount)
	assert.Equal(t, "TRY", rates[0].Currency)
	assert.Contains(t, rates[1].Payload, `"eco"`)
	for _, r := range rates {
		assert.NotEqual(t, "intl", r.ServiceCode, "rates in another currency are skipped")
	}
	assert.Equal(t, 1500, parcel.WeightGrams)
}

func TestCarrierClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewCarrierClient("acme", srv.URL, "", models.Address{}, "TRY", 0)
	_, err := client.Quote(context.Background(), istanbul, Parcel{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

type failingGateway struct{}

func (failingGateway) Quote(context.Context, models.Address, Parcel) ([]models.ShippingRate, error) {
	return nil, errors.New("timeout")
}

func TestRateServiceFallsBackToFlatRate(t *testing.T) {
	svc := NewRateService(failingGateway{}, FlatRate{Enabled: true, Amount: 3000, FreeOver: 50000}, "TRY", logging.Discard())

	rates, err := svc.Quote(context.Background(), istanbul, Parcel{Value: 20000})
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, ProviderFlat, rates[0].ServiceCode)
	assert.Equal(t, int64(3000), rates[0].Amount)

	rates, err = svc.Quote(context.Background(), istanbul, Parcel{Value: 50000})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rates[0].Amount)
}

func TestRateServiceWithoutFallback(t *testing.T) {
	svc := NewRateService(failingGateway{}, FlatRate{}, "TRY", logging.Discard())
	_, err := svc.Quote(context.Background(), istanbul, Parcel{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.True(t, e.Retryable())

	svc = NewRateService(nil, FlatRate{}, "TRY", logging.Discard())
	_, err = svc.Quote(context.Background(), istanbul, Parcel{})
	assert.ErrorIs(t, err, apperr.ErrNoShippingRates)

	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.False(t, e.Retryable())
	assert.Equal(t, http.StatusConflict, e.Status())
}

func TestSelect(t *testing.T) {
	quoted := []models.ShippingRate{{ServiceCode: "eco", Amount: 2500}, {ServiceCode: "express", Amount: 4500}}

	r, err := Select(quoted, "express")
	require.NoError(t, err)
	assert.Equal(t, int64(4500), r.Amount)

	_, err = Select(quoted, "drone")
	assert.ErrorIs(t, err, apperr.ErrRateNotOffered)
}
