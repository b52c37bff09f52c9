// Package entitlement issues and verifies the client-held proof of
// purchase. Tokens are HMAC-authenticated so a client cannot mint or extend
// one; the gateway's own order status remains the source of truth, the
// cookie is only a cache.
package entitlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math"
	"strings"
	"time"

	"payment-service/internal/catalog"
)

// CookieName is the cookie the storefront keeps the token in.
const CookieName = "payment_token"

// lifetimeExpiry is the sentinel expiry for the lifetime package. The
// package key, not this value, is what makes a token unbounded.
var lifetimeExpiry = time.Date(9999, 12, 31, 23, 59, 59, 999_000_000, time.UTC)

type Claims struct {
	PackageKey string    `json:"packageType"`
	ExpireTime time.Time `json:"expireTime"`
	OrderID    string    `json:"orderId"`
	PaidAt     time.Time `json:"paidAt"`
}

// Status is the result of verifying a token. RemainingDays is nil for the
// lifetime package (unbounded).
type Status struct {
	Valid         bool
	PackageKey    string
	ExpireTime    time.Time
	RemainingDays *int
}

var invalid = Status{}

type Issuer struct {
	secret  []byte
	catalog *catalog.Catalog
}

func NewIssuer(secret string, cat *catalog.Catalog) *Issuer {
	return &Issuer{secret: []byte(secret), catalog: cat}
}

// Issue creates a token for a paid order. Expiry is now plus the package
// duration in calendar days; the lifetime package gets the sentinel date.
func (i *Issuer) Issue(packageKey, orderID string, now time.Time) (string, error) {
	pkg, err := i.catalog.Get(packageKey)
	if err != nil {
		return "", err
	}

	expire := lifetimeExpiry
	if !pkg.Unlimited() {
		expire = now.AddDate(0, 0, pkg.DurationDays)
	}

	claims := Claims{
		PackageKey: pkg.Key,
		ExpireTime: expire,
		OrderID:    orderID,
		PaidAt:     now,
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(payload) + "." + i.mac(payload), nil
}

// Verify decodes and authenticates a token. Any decode or MAC failure means
// invalid; callers are expected to purge the stored token on invalid.
func (i *Issuer) Verify(token string, now time.Time) Status {
	payloadPart, macPart, ok := strings.Cut(token, ".")
	if !ok {
		return invalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return invalid
	}

	if !hmac.Equal([]byte(i.mac(payload)), []byte(macPart)) {
		return invalid
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return invalid
	}

	if claims.PackageKey == catalog.KeyLifetime {
		return Status{Valid: true, PackageKey: claims.PackageKey, ExpireTime: claims.ExpireTime}
	}

	if !claims.ExpireTime.After(now) {
		return invalid
	}

	remaining := int(math.Ceil(claims.ExpireTime.Sub(now).Hours() / 24))
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Valid:         true,
		PackageKey:    claims.PackageKey,
		ExpireTime:    claims.ExpireTime,
		RemainingDays: &remaining,
	}
}

func (i *Issuer) mac(payload []byte) string {
	h := hmac.New(sha256.New, i.secret)
	h.Write(payload)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
