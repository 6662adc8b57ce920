package middleware

// identity.go holds the shared user-identifier extraction used by the
// rate limiter's keying. JWTAuth stores the token subject under
// "user_id"; after JSON decoding the claim arrives as a float64, but
// other producers may set an integer or a string, so all three are
// handled. Unauthenticated requests key as "guest" (the login endpoint
// is rate limited before any identity exists).

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// userID renders the authenticated identity id as a string, or "guest"
// when the request carries no identity.
func userID(c echo.Context) string {
    switch v := c.Get("user_id").(type) {
    case float64:
        return strconv.FormatUint(uint64(v), 10)
    case uint64:
        return strconv.FormatUint(v, 10)
    case int:
        return strconv.Itoa(v)
    case string:
        if v != "" {
            return v
        }
    }
    return "guest"
}
