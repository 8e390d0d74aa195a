// Package shipping quotes delivery rates from the carrier and falls back to a
// merchant flat rate when the carrier cannot answer.
package shipping

import (
	"context"
	"log/slog"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

const ProviderFlat = "flat"

// Parcel describes what is being shipped.
type Parcel struct {
	Items       int   `json:"items"`
	WeightGrams int   `json:"weightGrams"`
	Value       int64 `json:"value"`
}

// NewParcel sizes a parcel from cart items with a fixed per-unit weight.
func NewParcel(items []models.CartItem, gramsPerUnit int, value int64) Parcel {
	p := Parcel{Value: value}
	for _, item := range items {
		p.Items += item.Quantity
		p.WeightGrams += item.Quantity * gramsPerUnit
	}
	return p
}

type Gateway interface {
	Quote(ctx context.Context, to models.Address, parcel Parcel) ([]models.ShippingRate, error)
}

type FlatRate struct {
	Enabled bool
	Amount  int64
	// FreeOver makes the flat rate free when the parcel value reaches it. Zero disables it.
	FreeOver    int64
	ServiceName string
}

// RateService asks the carrier first and uses the flat rate when the carrier
// fails or has nothing to offer.
type RateService struct {
	carrier  Gateway
	flat     FlatRate
	currency string
	log      *slog.Logger
}

// NewRateService builds the gateway used by checkout. carrier may be nil when
// no carrier is configured.
func NewRateService(carrier Gateway, flat FlatRate, currency string, log *slog.Logger) *RateService {
	return &RateService{carrier: carrier, flat: flat, currency: currency, log: log}
}

func (s *RateService) Quote(ctx context.Context, to models.Address, parcel Parcel) ([]models.ShippingRate, error) {
	var carrierErr error
	if s.carrier != nil {
		rates, err := s.carrier.Quote(ctx, to, parcel)
		if err == nil && len(rates) > 0 {
			return rates, nil
		}
		carrierErr = err
		s.log.Warn("[SHIPPING] carrier quote unavailable", "err", err, "rates", len(rates))
	}

	if !s.flat.Enabled {
		if carrierErr != nil {
			return nil, apperr.Wrap(apperr.ErrUpstream, carrierErr, "carrier has no rates for %s", to.Country)
		}
		return nil, apperr.New(apperr.ErrNoShippingRates, "no shipping rates for %s", to.Country)
	}

	amount := s.flat.Amount
	if s.flat.FreeOver > 0 && parcel.Value >= s.flat.FreeOver {
		amount = 0
	}
	name := s.flat.ServiceName
	if name == "" {
		name = "Standard"
	}
	return []models.ShippingRate{{
		Provider:    ProviderFlat,
		ServiceCode: ProviderFlat,
		ServiceName: name,
		Amount:      amount,
		Currency:    s.currency,
	}}, nil
}

// Select picks the quoted rate with the given service code.
func Select(quoted []models.ShippingRate, serviceCode string) (models.ShippingRate, error) {
	for _, r := range quoted {
		if r.ServiceCode == serviceCode {
			return r, nil
		}
	}
	return models.ShippingRate{}, apperr.New(apperr.ErrRateNotOffered, "rate %q was not quoted for this address", serviceCode)
}
