package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/gatherly/gatherly/internal/checkout"
	"github.com/gatherly/gatherly/internal/model"
	"github.com/gatherly/gatherly/internal/payments"
	"github.com/gatherly/gatherly/internal/repository"
)

type checkoutCatalog struct {
	owner uint64
	price uint32
}

func (c checkoutCatalog) GetByID(_ context.Context, id uint64) (model.Event, error) {
	if id != 1 {
		return model.Event{}, repository.ErrEventNotFound
	}
	return model.Event{ID: 1, OwnerID: c.owner, Title: "Fall Market", TicketPriceCents: c.price}, nil
}
func (c checkoutCatalog) ItemPriceCents(context.Context, uint64, string, uint64) (uint32, error) {
	return c.price, nil
}

type payoutTable map[uint64]string

func (p payoutTable) PayoutAccountRef(_ context.Context, id uint64) (string, error) {
	return p[id], nil
}

type fixedLedger uint32

func (l fixedLedger) CheckAvailability(_ context.Context, _ string, _ uint64, qty uint32) (bool, error) {
	return uint32(l) >= qty, nil
}

type okProcessor struct{}

func (okProcessor) CreateCheckoutSession(context.Context, payments.SessionParams) (*payments.Session, error) {
	return &payments.Session{ID: "cs_1", URL: "https://pay.test/cs_1"}, nil
}

func newCheckoutHandler(payout payoutTable, remaining uint32) *CheckoutHandler {
	f := checkout.NewFactory(checkoutCatalog{owner: 9, price: 2500}, payout, fixedLedger(remaining),
		okProcessor{}, 10, "usd", "https://gatherly.test/success", "https://gatherly.test/cancel")
	return NewCheckoutHandler(f)
}

func postCheckout(h *CheckoutHandler, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", float64(42))
	_ = h.Create(c)
	return rec
}

func TestCheckoutCreateReportsPayoutNotLinkedKind(t *testing.T) {
	// Organizer 9 never finished payout onboarding; the body must name
	// the kind so a client can dispatch without matching prose.
	h := newCheckoutHandler(payoutTable{}, 10)

	rec := postCheckout(h, `{"event_id":1,"quantity":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"PayoutAccountNotLinked"`)
}

func TestCheckoutCreateReportsInsufficientInventoryKind(t *testing.T) {
	h := newCheckoutHandler(payoutTable{9: "acct_ORGANIZE"}, 2)

	rec := postCheckout(h, `{"event_id":1,"quantity":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"InsufficientInventory"`)
}

func TestCheckoutCreateReportsEventNotFoundKind(t *testing.T) {
	h := newCheckoutHandler(payoutTable{9: "acct_ORGANIZE"}, 10)

	rec := postCheckout(h, `{"event_id":404,"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"EventNotFound"`)
}

func TestCheckoutCreateSucceeds(t *testing.T) {
	h := newCheckoutHandler(payoutTable{9: "acct_ORGANIZE"}, 10)

	rec := postCheckout(h, `{"event_id":1,"quantity":2}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"cs_1"`)
}
