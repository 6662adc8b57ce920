package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/gatherly/internal/repository"
)

// AdminHandler exposes the operator surface: the cross-resource
// transaction search.
type AdminHandler struct {
	Orders *repository.OrderRepo
}

func NewAdminHandler(orders *repository.OrderRepo) *AdminHandler {
	return &AdminHandler{Orders: orders}
}

// SearchTransactions handles GET /v1/admin/transactions. All filters
// are optional query params: event_id, buyer_id, status, from, to
// (RFC3339) and limit.
func (h *AdminHandler) SearchTransactions(c echo.Context) error {
	var f repository.TransactionFilter
	if raw := c.QueryParam("event_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event_id"})
		}
		f.EventID = v
	}
	if raw := c.QueryParam("buyer_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid buyer_id"})
		}
		f.BuyerID = v
	}
	f.Status = c.QueryParam("status")
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from timestamp"})
		}
		f.From = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to timestamp"})
		}
		f.To = t
	}
	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			f.Limit = v
		}
	}

	rows, err := h.Orders.SearchTransactions(c.Request().Context(), f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "search failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": rows, "count": len(rows)})
}
