package handler // handler defines http handlers

import (
    "errors"
    "strconv"

    "github.com/labstack/echo/v4"
)

// getIdentityID extracts the authenticated identity id from
// echo.Context and converts it to uint64. JWT claims decoded from
// JSON arrive as float64; older callers may have stored ints or
// strings.
func getIdentityID(c echo.Context) (uint64, error) {
    v := c.Get("user_id")
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// errKind writes an error response whose "error" field is a stable
// machine-readable kind token; the human-readable prose rides in
// "message". Clients dispatch on the kind, never on the prose.
func errKind(c echo.Context, status int, kind, message string) error {
    return c.JSON(status, echo.Map{"error": kind, "message": message})
}
