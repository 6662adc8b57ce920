package handler

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/gatherly/internal/checkout"
	"github.com/gatherly/gatherly/internal/repository"
)

// CheckoutHandler exposes checkout session creation to buyers.
type CheckoutHandler struct {
	Factory *checkout.Factory
}

func NewCheckoutHandler(f *checkout.Factory) *CheckoutHandler {
	return &CheckoutHandler{Factory: f}
}

// Create handles POST /v1/checkout. It validates the intent against
// the event catalog and inventory and returns the processor-hosted
// payment URL. Nothing is reserved here; the hard decrement happens
// at webhook fulfillment.
func (h *CheckoutHandler) Create(c echo.Context) error {
	buyerID, err := getIdentityID(c)
	if err != nil {
		return errKind(c, http.StatusUnauthorized, "Unauthorized", "authentication required")
	}
	var req checkout.Request
	if err := c.Bind(&req); err != nil {
		return errKind(c, http.StatusBadRequest, "InvalidRequest", "invalid request body")
	}
	if req.EventID == 0 {
		return errKind(c, http.StatusBadRequest, "InvalidRequest", "event_id is required")
	}
	if req.Quantity == 0 {
		return errKind(c, http.StatusBadRequest, "InvalidRequest", "quantity must be positive")
	}

	session, err := h.Factory.CreateSession(c.Request().Context(), buyerID, req)
	if err != nil {
		switch err {
		case repository.ErrEventNotFound, sql.ErrNoRows:
			return errKind(c, http.StatusNotFound, "EventNotFound", "event or item not found")
		case repository.ErrPayoutAccountNotLinked:
			// Scenario: the organizer abandoned their payout onboarding.
			// Surface a state the client can route to "ask the organizer
			// to finish connecting".
			return errKind(c, http.StatusConflict, "PayoutAccountNotLinked", "the organizer has not linked a payout account yet")
		case repository.ErrInsufficientInventory:
			return errKind(c, http.StatusConflict, "InsufficientInventory", "not enough inventory remaining")
		case repository.ErrOrderTotalTooLarge:
			return errKind(c, http.StatusBadRequest, "OrderTotalTooLarge", "order total exceeds the single-charge limit")
		default:
			return errKind(c, http.StatusBadGateway, "CheckoutSessionFailed", "could not create checkout session")
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	})
}
