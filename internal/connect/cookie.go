package connect

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PendingLinkCookie is the name of the client-side recovery cookie.
// Its value is a short-lived signed token naming the candidate payout
// account directly, so the client itself can carry the pending
// linkage across a lost session.
const PendingLinkCookie = "pending_payout_link"

// CookieCodec signs and parses the pending-link recovery cookie. The
// value is an HS256 JWT carrying the candidate account reference and
// the attempt's correlation token; the signature stops a client from
// minting a cookie that links an arbitrary account.
type CookieCodec struct {
	secret string
	ttl    time.Duration
}

// NewCookieCodec builds a codec signing with secret; ttl bounds how
// long an issued cookie stays acceptable.
func NewCookieCodec(secret string, ttl time.Duration) *CookieCodec {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CookieCodec{secret: secret, ttl: ttl}
}

// TTL returns the cookie lifetime, for setting Max-Age on the HTTP
// cookie alongside the embedded expiry.
func (cc *CookieCodec) TTL() time.Duration { return cc.ttl }

// Issue signs a cookie value naming the candidate account and its
// correlation token.
func (cc *CookieCodec) Issue(accountRef, correlationToken string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"ref": accountRef,
		"ct":  correlationToken,
		"exp": now.Add(cc.ttl).Unix(),
		"iat": now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(cc.secret))
}

// Parse validates a cookie value and returns the candidate account
// reference and correlation token it names. Expired or tampered
// values are rejected.
func (cc *CookieCodec) Parse(raw string) (accountRef, correlationToken string, err error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cc.secret), nil
	})
	if err != nil || !tok.Valid {
		return "", "", errors.New("invalid pending-link cookie")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid pending-link claims")
	}
	ref, _ := claims["ref"].(string)
	ct, _ := claims["ct"].(string)
	if ref == "" {
		return "", "", errors.New("pending-link cookie names no account")
	}
	return ref, ct, nil
}
