// Package checkout builds processor-hosted checkout sessions for
// buyers. The factory only checks preconditions and prices; nothing
// is reserved locally; inventory is decremented later, when the
// processor's completed-checkout notification is fulfilled.
package checkout

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gatherly/gatherly/internal/model"
	"github.com/gatherly/gatherly/internal/payments"
	"github.com/gatherly/gatherly/internal/repository"
)

// EventCatalog resolves events and item prices.
type EventCatalog interface {
	GetByID(ctx context.Context, id uint64) (model.Event, error)
	ItemPriceCents(ctx context.Context, eventID uint64, kind string, itemID uint64) (uint32, error)
}

// PayoutLookup resolves an identity's linked payout account.
type PayoutLookup interface {
	PayoutAccountRef(ctx context.Context, id uint64) (string, error)
}

// AvailabilityChecker is the read side of the inventory ledger.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, kind string, resourceID uint64, qty uint32) (bool, error)
}

// SessionCreator opens checkout sessions on the processor.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, p payments.SessionParams) (*payments.Session, error)
}

// maxGrossCents is the processor's single-charge ceiling ($999,999.99).
// It also keeps the price-times-quantity arithmetic, done in uint64,
// safely inside the uint32 the wire types carry.
const maxGrossCents = 99_999_999

// Request is a buyer's purchase intent. ItemKind defaults to TICKET,
// in which case ItemID is the event id.
type Request struct {
	EventID  uint64 `json:"event_id"`
	ItemKind string `json:"item_kind"`
	ItemID   uint64 `json:"item_id"`
	Quantity uint32 `json:"quantity"`
}

// Factory assembles checkout sessions against organizers' linked
// payout accounts, optionally splitting a platform fee off the gross.
type Factory struct {
	events     EventCatalog
	identities PayoutLookup
	ledger     AvailabilityChecker
	processor  SessionCreator
	feePercent uint32 // platform fee as integer percent of gross, may be 0
	currency   string
	successURL string
	cancelURL  string
}

func NewFactory(events EventCatalog, identities PayoutLookup, ledger AvailabilityChecker, processor SessionCreator, feePercent uint32, currency, successURL, cancelURL string) *Factory {
	if currency == "" {
		currency = "usd"
	}
	return &Factory{
		events:     events,
		identities: identities,
		ledger:     ledger,
		processor:  processor,
		feePercent: feePercent,
		currency:   currency,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateSession validates the purchase intent and opens a checkout
// session on the processor. It fails with ErrPayoutAccountNotLinked
// when the event's organizer has no linked account and with
// ErrInsufficientInventory when the availability check fails.
// Availability is only checked, never held: the authoritative
// decrement happens at fulfillment time.
func (f *Factory) CreateSession(ctx context.Context, buyerID uint64, req Request) (*payments.Session, error) {
	if req.Quantity == 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	kind := req.ItemKind
	if kind == "" {
		kind = model.KindTicket
	}
	if !model.ValidKind(kind) {
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}
	itemID := req.ItemID
	if kind == model.KindTicket {
		itemID = req.EventID
	}

	ev, err := f.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	payoutRef, err := f.identities.PayoutAccountRef(ctx, ev.OwnerID)
	if err != nil {
		return nil, err
	}
	if payoutRef == "" {
		return nil, repository.ErrPayoutAccountNotLinked
	}

	available, err := f.ledger.CheckAvailability(ctx, kind, itemID, req.Quantity)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, repository.ErrInsufficientInventory
	}

	unitPrice, err := f.events.ItemPriceCents(ctx, req.EventID, kind, itemID)
	if err != nil {
		return nil, err
	}
	gross64 := uint64(unitPrice) * uint64(req.Quantity)
	if gross64 > maxGrossCents {
		return nil, repository.ErrOrderTotalTooLarge
	}
	gross := uint32(gross64)
	fee := uint32(gross64 * uint64(f.feePercent) / 100)

	// The metadata is the only correlation channel back from the
	// eventual webhook; the fulfillment pipeline rebuilds the whole
	// purchase intent from it.
	session, err := f.processor.CreateCheckoutSession(ctx, payments.SessionParams{
		AmountCents:        gross,
		Currency:           f.currency,
		Description:        fmt.Sprintf("%s x%d for %s", kind, req.Quantity, ev.Title),
		DestinationAccount: payoutRef,
		PlatformFeeCents:   fee,
		SuccessURL:         f.successURL,
		CancelURL:          f.cancelURL,
		Metadata: map[string]string{
			"event_id":  strconv.FormatUint(req.EventID, 10),
			"buyer_id":  strconv.FormatUint(buyerID, 10),
			"quantity":  strconv.FormatUint(uint64(req.Quantity), 10),
			"item_kind": kind,
			"item_id":   strconv.FormatUint(itemID, 10),
		},
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}
