package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/gatherly/internal/config"
	"github.com/gatherly/gatherly/internal/connect"
	"github.com/gatherly/gatherly/internal/repository"
)

// ConnectHandler exposes the payout-account OAuth endpoints.
type ConnectHandler struct {
	Cfg config.Config
	Co  *connect.Coordinator
}

func NewConnectHandler(cfg config.Config, co *connect.Coordinator) *ConnectHandler {
	return &ConnectHandler{Cfg: cfg, Co: co}
}

// Begin handles GET /v1/connect. The caller's identity is bound to
// the OAuth state server-side; the recovery machinery covers the case
// where the session dies between here and the callback.
func (h *ConnectHandler) Begin(c echo.Context) error {
	identityID, err := getIdentityID(c)
	if err != nil {
		return errKind(c, http.StatusUnauthorized, "Unauthorized", "authentication required")
	}

	authorizeURL, err := h.Co.BeginAuthorization(c.Request().Context(), identityID)
	if err != nil {
		return errKind(c, http.StatusInternalServerError, "AuthorizationFailed", "could not start payout account authorization")
	}
	return c.JSON(http.StatusOK, echo.Map{"url": authorizeURL})
}

// Callback handles GET /v1/connect/callback, the processor's redirect
// target. When the originating session is gone the candidate account
// is parked and a signed recovery cookie set, then the user is sent
// to the reconnect page to log back in.
func (h *ConnectHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return errKind(c, http.StatusBadRequest, "InvalidRequest", "code and state are required")
	}

	identityID, _ := getIdentityID(c)
	sessionID := ""
	if ck, err := c.Cookie(connect.SessionCookie); err == nil {
		sessionID = ck.Value
	}

	res, err := h.Co.HandleCallback(c.Request().Context(), code, state, identityID, sessionID)
	if err != nil {
		switch err {
		case repository.ErrPayoutAccountAlreadyLinked:
			return errKind(c, http.StatusConflict, "PayoutAccountAlreadyLinked", "a different payout account is already linked")
		case repository.ErrInvalidExternalAccountFormat:
			return errKind(c, http.StatusBadGateway, "InvalidExternalAccountFormat", "processor returned a malformed account reference")
		default:
			return errKind(c, http.StatusBadGateway, "ExchangeFailed", "authorization exchange failed")
		}
	}

	if res.Linked {
		return c.JSON(http.StatusOK, echo.Map{
			"linked":             true,
			"payout_account_ref": res.AccountRef,
		})
	}

	// Session did not survive the round trip. Park the signed cookie
	// so the next authenticated request can pick the linkage up.
	c.SetCookie(&http.Cookie{
		Name:     connect.PendingLinkCookie,
		Value:    res.CookieToken,
		Path:     "/",
		Expires:  time.Now().UTC().Add(h.Co.AttemptTTL()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if h.Cfg.ConnectReturnURL != "" {
		u := h.Cfg.ConnectReturnURL
		if parsed, err := url.Parse(u); err == nil {
			q := parsed.Query()
			q.Set("pending_link", "1")
			parsed.RawQuery = q.Encode()
			u = parsed.String()
		}
		return c.Redirect(http.StatusFound, u)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"linked":  false,
		"pending": true,
		"message": "log in to complete payout account linking",
	})
}

// Status handles GET /v1/connect/status for the authenticated
// identity.
func (h *ConnectHandler) Status(c echo.Context) error {
	identityID, err := getIdentityID(c)
	if err != nil {
		return errKind(c, http.StatusUnauthorized, "Unauthorized", "authentication required")
	}
	ref, err := h.Co.PayoutRef(c.Request().Context(), identityID)
	if err != nil {
		return errKind(c, http.StatusInternalServerError, "QueryFailed", "could not read payout link status")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"linked":             ref != "",
		"payout_account_ref": ref,
	})
}
