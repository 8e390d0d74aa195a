package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront/internal/models"
)

// CarrierClient talks to the carrier's rate API over JSON.
type CarrierClient struct {
	name     string
	baseURL  string
	apiKey   string
	origin   models.Address
	currency string
	http     *http.Client
}

func NewCarrierClient(name, baseURL, apiKey string, origin models.Address, currency string, timeout time.Duration) *CarrierClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CarrierClient{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		origin:   origin,
		currency: currency,
		http:     &http.Client{Timeout: timeout},
	}
}

type rateRequest struct {
	Origin      models.Address `json:"origin"`
	Destination models.Address `json:"destination"`
	Parcel      Parcel         `json:"parcel"`
	Currency    string         `json:"currency"`
}

type carrierRate struct {
	ServiceCode   string `json:"serviceCode"`
	ServiceName   string `json:"serviceName"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	EstimatedDays int    `json:"estimatedDays"`
}

type rateResponse struct {
	Rates []json.RawMessage `json:"rates"`
}

func (c *CarrierClient) Quote(ctx context.Context, to models.Address, parcel Parcel) ([]models.ShippingRate, error) {
	body, err := json.Marshal(rateRequest{Origin: c.origin, Destination: to, Parcel: parcel, Currency: c.currency})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rates", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read carrier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("carrier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed rateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode carrier response: %w", err)
	}

	rates := make([]models.ShippingRate, 0, len(parsed.Rates))
	for _, item := range parsed.Rates {
		var r carrierRate
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, fmt.Errorf("failed to decode carrier rate: %w", err)
		}
		if r.ServiceCode == "" || r.Amount < 0 {
			continue
		}
		currency := c.currency
		if r.Currency != "" && !strings.EqualFold(r.Currency, c.currency) {
			continue
		}
		rates = append(rates, models.ShippingRate{
			Provider:      c.name,
			ServiceCode:   r.ServiceCode,
			ServiceName:   r.ServiceName,
			Amount:        r.Amount,
			Currency:      currency,
			EstimatedDays: r.EstimatedDays,
			Payload:       string(item),
		})
	}
	return rates, nil
}
