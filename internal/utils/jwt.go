package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AdminToken represents a signed HS256 JWT granting the elevated
// override role, along with its expiry. Admin tokens are deliberately
// short-lived: the override path exists for staff untangling a stuck
// asset, not for day-to-day kiosk use.
type AdminToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAdminToken builds and signs an HS256 JWT carrying the ADMIN role.
// The JWT includes standard claims: subject (sub), role, expiration
// (exp) and issued at (iat). Kiosk user sessions never use JWTs — they
// are opaque server-side tokens — so this helper is only reached from
// the admin login path.
func NewAdminToken(secret string, subjectID uint64, ttl time.Duration) (AdminToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  subjectID,
		"role": "ADMIN",
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AdminToken{}, err
	}
	return AdminToken{Token: signed, Exp: exp}, nil
}
