package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// RequireRole restricts a route group to identities whose role claim is
// in the allowed set. Roles here are ORGANIZER, BUYER and ADMIN; the
// organizer surface admits ADMIN too so operators can act on any event.
// Must run after JWTAuth, which stores the role under "role".
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get("role").(string)
            if !ok || !allowed[role] {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
