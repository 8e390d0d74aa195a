// Package signer issues and verifies time-boxed capability links for the
// payment result page.
package signer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/apperr"
)

type claims struct {
	OrderID string `json:"orderId"`
	jwt.RegisteredClaims
}

type URLSigner struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func New(secret, baseURL string, ttl time.Duration, now func() time.Time) *URLSigner {
	if now == nil {
		now = time.Now
	}
	return &URLSigner{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/"), ttl: ttl, now: now}
}

// Sign returns a signature bound to orderID that expires after the TTL.
func (s *URLSigner) Sign(orderID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		OrderID: orderID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	return token.SignedString(s.secret)
}

// ResultURL is the capability link for the payment result of an order.
func (s *URLSigner) ResultURL(orderID string) (string, error) {
	sig, err := s.Sign(orderID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/payment/result/%s?signature=%s", s.baseURL, url.PathEscape(orderID), url.QueryEscape(sig)), nil
}

// Verify checks that signature was issued for orderID and has not expired.
func (s *URLSigner) Verify(orderID, signature string) error {
	if signature == "" {
		return apperr.New(apperr.ErrInvalidSignature, "missing signature")
	}
	var c claims
	_, err := jwt.ParseWithClaims(signature, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperr.Wrap(apperr.ErrInvalidSignature, err, "link expired")
		}
		return apperr.Wrap(apperr.ErrInvalidSignature, err, "bad signature")
	}
	if c.OrderID != orderID {
		return apperr.New(apperr.ErrInvalidSignature, "signature does not match order")
	}
	return nil
}
