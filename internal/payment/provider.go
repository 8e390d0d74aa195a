// Package payment initializes hosted payment sessions and reconciles the
// provider's asynchronous callback with the order.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

type Buyer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	IP    string `json:"ip,omitempty"`
}

type BasketItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

type InitRequest struct {
	ConversationID  string         `json:"conversationId"`
	OrderID         string         `json:"basketId"`
	Amount          int64          `json:"paidPrice"`
	Currency        string         `json:"currency"`
	CallbackURL     string         `json:"callbackUrl"`
	Buyer           Buyer          `json:"buyer"`
	ShippingAddress models.Address `json:"shippingAddress"`
	BillingAddress  models.Address `json:"billingAddress"`
	Items           []BasketItem   `json:"basketItems"`
}

type InitResult struct {
	Token       string
	RedirectURL string
	InlineForm  string
	RawRequest  string
	RawResponse string
}

// Result is the verified outcome of a hosted payment session.
type Result struct {
	ConversationID string
	Token          string
	Status         models.PaymentStatus
	TransactionID  string
	PaidAmount     int64
	Raw            string
}

type Provider interface {
	Name() string
	Initialize(ctx context.Context, req InitRequest) (InitResult, error)
	// Retrieve asks the provider for the outcome behind a callback token and
	// verifies the response signature.
	Retrieve(ctx context.Context, token string) (Result, error)
}

// HostedProvider is the HTTP client for a hosted checkout-form provider.
// Requests carry an HMAC-SHA256 authorization header and every response is
// signature-checked.
type HostedProvider struct {
	baseURL string
	apiKey  string
	secret  []byte
	http    *http.Client
}

func NewHostedProvider(baseURL, apiKey, secret string, timeout time.Duration) *HostedProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HostedProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		secret:  []byte(secret),
		http:    &http.Client{Timeout: timeout},
	}
}

func (p *HostedProvider) Name() string { return "hosted" }

// Sign is the provider's HMAC over the joined parts.
func Sign(secret []byte, parts ...string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(mac.Sum(nil))
}

type initResponse struct {
	Status         string `json:"status"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
	PaymentPageURL string `json:"paymentPageUrl"`
	FormContent    string `json:"checkoutFormContent"`
	Signature      string `json:"signature"`
}

func (p *HostedProvider) Initialize(ctx context.Context, req InitRequest) (InitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return InitResult{}, fmt.Errorf("failed to marshal initialize request: %w", err)
	}
	raw, err := p.post(ctx, "/v1/checkout/initialize", body)
	if err != nil {
		return InitResult{}, err
	}

	var resp initResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return InitResult{}, fmt.Errorf("failed to decode initialize response: %w", err)
	}
	if resp.Status != "success" {
		return InitResult{}, fmt.Errorf("provider rejected initialize: %s", resp.ErrorMessage)
	}
	if !hmac.Equal([]byte(resp.Signature), []byte(Sign(p.secret, resp.ConversationID, resp.Token))) {
		return InitResult{}, apperr.New(apperr.ErrInvalidSignature, "initialize response signature mismatch")
	}
	if resp.ConversationID != req.ConversationID {
		return InitResult{}, apperr.New(apperr.ErrInvalidSignature, "initialize response for another conversation")
	}

	return InitResult{
		Token:       resp.Token,
		RedirectURL: resp.PaymentPageURL,
		InlineForm:  resp.FormContent,
		RawRequest:  string(body),
		RawResponse: string(raw),
	}, nil
}

type retrieveResponse struct {
	Status         string `json:"status"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	PaymentStatus  string `json:"paymentStatus"`
	ConversationID string `json:"conversationId"`
	PaymentID      string `json:"paymentId"`
	PaidPrice      int64  `json:"paidPrice"`
	Token          string `json:"token"`
	Signature      string `json:"signature"`
}

func (p *HostedProvider) Retrieve(ctx context.Context, token string) (Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{}, apperr.New(apperr.ErrInvalidSignature, "missing token")
	}
	body, _ := json.Marshal(map[string]string{"token": token})
	raw, err := p.post(ctx, "/v1/checkout/retrieve", body)
	if err != nil {
		return Result{}, err
	}

	var resp retrieveResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, fmt.Errorf("failed to decode retrieve response: %w", err)
	}
	if resp.Status != "success" {
		return Result{}, apperr.New(apperr.ErrInvalidSignature, "provider does not recognise token: %s", resp.ErrorMessage)
	}
	expected := Sign(p.secret, resp.PaymentStatus, resp.ConversationID, resp.Token, resp.PaymentID, fmt.Sprint(resp.PaidPrice))
	if !hmac.Equal([]byte(resp.Signature), []byte(expected)) || resp.Token != token {
		return Result{}, apperr.New(apperr.ErrInvalidSignature, "retrieve response signature mismatch")
	}

	status := models.PaymentFailure
	if strings.EqualFold(resp.PaymentStatus, "SUCCESS") {
		status = models.PaymentSuccess
	}
	return Result{
		ConversationID: resp.ConversationID,
		Token:          resp.Token,
		Status:         status,
		TransactionID:  resp.PaymentID,
		PaidAmount:     resp.PaidPrice,
		Raw:            string(raw),
	}, nil
}

func (p *HostedProvider) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	rnd := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-rnd", rnd)
	req.Header.Set("Authorization", fmt.Sprintf("HMAC %s:%s", p.apiKey, Sign(p.secret, rnd, path, string(body))))

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	return raw, nil
}
