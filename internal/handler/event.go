package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/gatherly/internal/model"
	"github.com/gatherly/gatherly/internal/repository"
)

// EventHandler bundles the organizer event surface and the public
// browse endpoints.
type EventHandler struct {
	Events    *repository.EventRepo
	Inventory *repository.InventoryRepo
}

func NewEventHandler(events *repository.EventRepo, inv *repository.InventoryRepo) *EventHandler {
	return &EventHandler{Events: events, Inventory: inv}
}

// Create handles POST /v1/events for organizers.
func (h *EventHandler) Create(c echo.Context) error {
	ownerID, err := getIdentityID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Title            string `json:"title"`
		StartsAt         string `json:"starts_at"`
		EndsAt           string `json:"ends_at"`
		TicketCapacity   uint32 `json:"ticket_capacity"`
		TicketPriceCents uint32 `json:"ticket_price_cents"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(body.StartsAt))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid starts_at format"})
	}
	endsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(body.EndsAt))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ends_at format"})
	}
	if !endsAt.After(startsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	}
	if body.TicketCapacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket_capacity must be positive"})
	}

	ev := &model.Event{
		OwnerID:          ownerID,
		Title:            title,
		StartsAt:         startsAt.UTC(),
		EndsAt:           endsAt.UTC(),
		TicketCapacity:   body.TicketCapacity,
		TicketPriceCents: body.TicketPriceCents,
	}
	if err := h.Events.Create(c.Request().Context(), ev); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create event"})
	}
	return c.JSON(http.StatusCreated, eventJSON(*ev))
}

// Get handles GET /v1/events/:id and includes the live remaining
// ticket count.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ev, err := h.Events.GetByID(c.Request().Context(), id)
	if err != nil {
		if err == repository.ErrEventNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := eventJSON(ev)
	if remaining, err := h.Inventory.Remaining(c.Request().Context(), model.KindTicket, ev.ID); err == nil {
		out["tickets_remaining"] = remaining
	}
	return c.JSON(http.StatusOK, out)
}

// ListUpcoming handles GET /v1/events, the public browse surface.
func (h *EventHandler) ListUpcoming(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	events, err := h.Events.ListUpcoming(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(events))
	for _, ev := range events {
		out = append(out, eventJSON(ev))
	}
	return c.JSON(http.StatusOK, echo.Map{"events": out})
}

// AddProduct handles POST /v1/events/:id/products for the owning
// organizer.
func (h *EventHandler) AddProduct(c echo.Context) error {
	ev, ok := h.ownedEvent(c)
	if !ok {
		return nil
	}
	var body struct {
		Name       string `json:"name"`
		PriceCents uint32 `json:"price_cents"`
		Quantity   uint32 `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Name) == "" || body.Quantity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and positive quantity are required"})
	}
	p := &model.Product{
		EventID:    ev.ID,
		Name:       strings.TrimSpace(body.Name),
		PriceCents: body.PriceCents,
		Quantity:   body.Quantity,
	}
	if err := h.Events.AddProduct(c.Request().Context(), p); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not add product"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id": p.ID, "event_id": p.EventID, "name": p.Name,
		"price_cents": p.PriceCents, "quantity": p.Quantity,
	})
}

// AddVendorSpot handles POST /v1/events/:id/vendor-spots.
func (h *EventHandler) AddVendorSpot(c echo.Context) error {
	ev, ok := h.ownedEvent(c)
	if !ok {
		return nil
	}
	var body struct {
		Name       string `json:"name"`
		PriceCents uint32 `json:"price_cents"`
		Capacity   uint32 `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Name) == "" || body.Capacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and positive capacity are required"})
	}
	v := &model.VendorSpot{
		EventID:    ev.ID,
		Name:       strings.TrimSpace(body.Name),
		PriceCents: body.PriceCents,
		Capacity:   body.Capacity,
	}
	if err := h.Events.AddVendorSpot(c.Request().Context(), v); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not add vendor spot"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id": v.ID, "event_id": v.EventID, "name": v.Name,
		"price_cents": v.PriceCents, "capacity": v.Capacity,
	})
}

// AddVolunteerShift handles POST /v1/events/:id/volunteer-shifts.
func (h *EventHandler) AddVolunteerShift(c echo.Context) error {
	ev, ok := h.ownedEvent(c)
	if !ok {
		return nil
	}
	var body struct {
		Name       string `json:"name"`
		StartsAt   string `json:"starts_at"`
		EndsAt     string `json:"ends_at"`
		PriceCents uint32 `json:"price_cents"`
		Capacity   uint32 `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Name) == "" || body.Capacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and positive capacity are required"})
	}
	startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(body.StartsAt))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid starts_at format"})
	}
	endsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(body.EndsAt))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ends_at format"})
	}
	if !endsAt.After(startsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	}
	s := &model.VolunteerShift{
		EventID:    ev.ID,
		Name:       strings.TrimSpace(body.Name),
		StartsAt:   startsAt.UTC(),
		EndsAt:     endsAt.UTC(),
		PriceCents: body.PriceCents,
		Capacity:   body.Capacity,
	}
	if err := h.Events.AddVolunteerShift(c.Request().Context(), s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not add volunteer shift"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id": s.ID, "event_id": s.EventID, "name": s.Name,
		"starts_at": s.StartsAt, "ends_at": s.EndsAt,
		"price_cents": s.PriceCents, "capacity": s.Capacity,
	})
}

// Availability handles GET /v1/events/:id/availability for one item.
func (h *EventHandler) Availability(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	kind := strings.ToUpper(strings.TrimSpace(c.QueryParam("kind")))
	if kind == "" {
		kind = model.KindTicket
	}
	if !model.ValidKind(kind) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown item kind"})
	}
	resourceID := id
	if kind != model.KindTicket {
		resourceID, err = strconv.ParseUint(c.QueryParam("item_id"), 10, 64)
		if err != nil || resourceID == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "item_id is required for this kind"})
		}
	}
	remaining, err := h.Inventory.Remaining(c.Request().Context(), kind, resourceID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no inventory for this item"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"kind": kind, "item_id": resourceID, "remaining": remaining,
	})
}

// ownedEvent resolves the :id event and enforces organizer ownership.
// On failure it writes the error response and returns ok=false.
func (h *EventHandler) ownedEvent(c echo.Context) (model.Event, bool) {
	ownerID, err := getIdentityID(c)
	if err != nil {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		return model.Event{}, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
		return model.Event{}, false
	}
	ev, err := h.Events.GetByIDAndOwner(c.Request().Context(), id, ownerID)
	switch err {
	case nil:
		return ev, true
	case repository.ErrEventNotFound:
		_ = c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case repository.ErrForbidden:
		_ = c.JSON(http.StatusForbidden, echo.Map{"error": "not your event"})
	default:
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return model.Event{}, false
}

func eventJSON(ev model.Event) echo.Map {
	return echo.Map{
		"id":                 ev.ID,
		"owner_id":           ev.OwnerID,
		"title":              ev.Title,
		"starts_at":          ev.StartsAt,
		"ends_at":            ev.EndsAt,
		"ticket_capacity":    ev.TicketCapacity,
		"ticket_price_cents": ev.TicketPriceCents,
	}
}
