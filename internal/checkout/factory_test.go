package checkout

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/gatherly/internal/model"
	"github.com/gatherly/gatherly/internal/payments"
	"github.com/gatherly/gatherly/internal/repository"
)

type fakeCatalog struct {
	events map[uint64]model.Event
	prices map[string]uint32 // "kind/itemID"
}

func (f *fakeCatalog) GetByID(_ context.Context, id uint64) (model.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return model.Event{}, repository.ErrEventNotFound
	}
	return ev, nil
}
func (f *fakeCatalog) ItemPriceCents(_ context.Context, _ uint64, kind string, itemID uint64) (uint32, error) {
	key := priceKey(kind, itemID)
	price, ok := f.prices[key]
	if !ok {
		return 0, repository.ErrEventNotFound
	}
	return price, nil
}

func priceKey(kind string, itemID uint64) string {
	return kind + "/" + strconv.FormatUint(itemID, 10)
}

type fakePayout map[uint64]string

func (f fakePayout) PayoutAccountRef(_ context.Context, id uint64) (string, error) {
	return f[id], nil
}

type fakeLedger struct {
	remaining map[string]uint32
}

func (f *fakeLedger) CheckAvailability(_ context.Context, kind string, resourceID uint64, qty uint32) (bool, error) {
	return f.remaining[priceKey(kind, resourceID)] >= qty, nil
}

type capturingProcessor struct {
	last payments.SessionParams
	err  error
}

func (c *capturingProcessor) CreateCheckoutSession(_ context.Context, p payments.SessionParams) (*payments.Session, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.last = p
	return &payments.Session{ID: "cs_1", URL: "https://pay.test/cs_1"}, nil
}

func newTestFactory(feePercent uint32) (*Factory, *capturingProcessor) {
	catalog := &fakeCatalog{
		events: map[uint64]model.Event{
			1: {ID: 1, OwnerID: 9, Title: "Fall Market", TicketPriceCents: 2500,
				StartsAt: time.Now().Add(24 * time.Hour), EndsAt: time.Now().Add(30 * time.Hour)},
		},
		prices: map[string]uint32{
			priceKey(model.KindTicket, 1):     2500,
			priceKey(model.KindProduct, 5):    1200,
			priceKey(model.KindVendorSpot, 3): 10000,
		},
	}
	payout := fakePayout{9: "acct_ORGANIZE"}
	ledger := &fakeLedger{remaining: map[string]uint32{
		priceKey(model.KindTicket, 1):     10,
		priceKey(model.KindProduct, 5):    2,
		priceKey(model.KindVendorSpot, 3): 1,
	}}
	proc := &capturingProcessor{}
	return NewFactory(catalog, payout, ledger, proc, feePercent, "usd",
		"https://gatherly.test/success", "https://gatherly.test/cancel"), proc
}

func TestCreateSessionTicketDefaults(t *testing.T) {
	f, proc := newTestFactory(10)

	s, err := f.CreateSession(context.Background(), 42, Request{EventID: 1, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", s.ID)

	assert.Equal(t, uint32(10000), proc.last.AmountCents, "4 tickets at 2500")
	assert.Equal(t, uint32(1000), proc.last.PlatformFeeCents, "10 percent of gross")
	assert.Equal(t, "acct_ORGANIZE", proc.last.DestinationAccount)
	assert.Equal(t, "usd", proc.last.Currency)

	// The metadata must round-trip the whole purchase intent.
	assert.Equal(t, map[string]string{
		"event_id":  "1",
		"buyer_id":  "42",
		"quantity":  "4",
		"item_kind": "TICKET",
		"item_id":   "1",
	}, proc.last.Metadata)
}

func TestCreateSessionZeroFee(t *testing.T) {
	f, proc := newTestFactory(0)
	_, err := f.CreateSession(context.Background(), 42, Request{EventID: 1, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), proc.last.PlatformFeeCents)
}

func TestCreateSessionProductItem(t *testing.T) {
	f, proc := newTestFactory(5)
	_, err := f.CreateSession(context.Background(), 42, Request{
		EventID: 1, ItemKind: model.KindProduct, ItemID: 5, Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2400), proc.last.AmountCents)
	assert.Equal(t, "PRODUCT", proc.last.Metadata["item_kind"])
	assert.Equal(t, "5", proc.last.Metadata["item_id"])
}

func TestCreateSessionUnlinkedOrganizer(t *testing.T) {
	f, proc := newTestFactory(10)
	f.identities = fakePayout{} // organizer 9 never finished onboarding

	_, err := f.CreateSession(context.Background(), 42, Request{EventID: 1, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrPayoutAccountNotLinked)
	assert.Empty(t, proc.last.DestinationAccount, "no session may be opened without a payout destination")
}

func TestCreateSessionInsufficientInventory(t *testing.T) {
	f, _ := newTestFactory(10)
	_, err := f.CreateSession(context.Background(), 42, Request{
		EventID: 1, ItemKind: model.KindVendorSpot, ItemID: 3, Quantity: 2,
	})
	assert.ErrorIs(t, err, repository.ErrInsufficientInventory)
}

func TestCreateSessionRejectsOversizedTotal(t *testing.T) {
	f, proc := newTestFactory(10)
	f.events = &fakeCatalog{
		events: map[uint64]model.Event{
			1: {ID: 1, OwnerID: 9, Title: "Stadium Tour", TicketPriceCents: 100000},
		},
		prices: map[string]uint32{priceKey(model.KindTicket, 1): 100000},
	}
	f.ledger = &fakeLedger{remaining: map[string]uint32{priceKey(model.KindTicket, 1): 60000}}

	// 100,000 cents x 50,000 tickets is 5,000,000,000 cents: past the
	// single-charge ceiling and past what 32-bit arithmetic could even
	// represent without wrapping to a small positive amount.
	_, err := f.CreateSession(context.Background(), 42, Request{EventID: 1, Quantity: 50000})
	assert.ErrorIs(t, err, repository.ErrOrderTotalTooLarge)
	assert.Empty(t, proc.last.DestinationAccount, "no session may be opened for a wrapped amount")
}

func TestCreateSessionValidation(t *testing.T) {
	f, _ := newTestFactory(10)
	ctx := context.Background()

	_, err := f.CreateSession(ctx, 42, Request{EventID: 1, Quantity: 0})
	assert.Error(t, err)

	_, err = f.CreateSession(ctx, 42, Request{EventID: 1, ItemKind: "MYSTERY_BOX", Quantity: 1})
	assert.Error(t, err)

	_, err = f.CreateSession(ctx, 42, Request{EventID: 404, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
}
