package middleware

// recovery.go runs the pending payout-link sweep on identity-bearing
// requests. The OAuth redirect that discovers an organizer's payout
// account can come back after the originating session died; the
// coordinator parks the candidate and this middleware gives every
// subsequent authenticated request a chance to reclaim it through the
// recovery channels. The sweep is best effort and never fails the
// request it rides on.

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/gatherly/internal/connect"
)

// PendingLinkRecovery returns an Echo middleware that attempts to
// reconcile a parked payout-account candidate with the authenticated
// identity. It should be registered after JWTAuth so the identity is
// available in the context. When a candidate is applied, the
// recovery cookie and session value are cleared so later requests do
// not re-run dead channels.
func PendingLinkRecovery(co *connect.Coordinator, sessions *connect.SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identityID := numericUserID(c)
			if identityID == 0 {
				return next(c)
			}
			carrier := connect.RecoveryCarrier{}
			if ck, err := c.Cookie(connect.PendingLinkCookie); err == nil {
				carrier.CookieToken = ck.Value
			}
			if ck, err := c.Cookie(connect.SessionCookie); err == nil {
				carrier.SessionID = ck.Value
			}
			outcome, err := co.Recover(c.Request().Context(), identityID, carrier)
			if err != nil {
				log.Printf("[connect] recovery sweep for identity %d failed: %v", identityID, err)
				return next(c)
			}
			if outcome.Applied {
				clearPendingLinkCookie(c)
				sessions.ClearPendingLink(c.Request().Context(), carrier.SessionID)
			}
			return next(c)
		}
	}
}

// clearPendingLinkCookie tells the client to drop the recovery cookie.
func clearPendingLinkCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     connect.PendingLinkCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// numericUserID coerces the JWT subject stored by JWTAuth into a
// uint64 identity id. Claims decoded from JSON arrive as float64.
func numericUserID(c echo.Context) uint64 {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t
	case int:
		return uint64(t)
	case int64:
		return uint64(t)
	case float64:
		return uint64(t)
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
