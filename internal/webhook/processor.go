// Package webhook turns payment-processor notifications into durable
// domain state, exactly once per distinct payment reference.
// Deliveries are at-least-once and unordered; idempotency is per
// payment reference, never per arrival.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gatherly/gatherly/internal/queue"
	"github.com/gatherly/gatherly/internal/repository"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Processor-Signature"

// Notification types dispatched by Process.
const (
	TypeCheckoutCompleted = "checkout.session.completed"
	TypePaymentSucceeded  = "payment.succeeded"
)

// Notification is the processor's webhook envelope.
type Notification struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    NotificationData `json:"data"`
}

// NotificationData is the payment payload inside the envelope. For
// completed checkouts Metadata carries the purchase intent the
// checkout factory attached; it is the only correlation channel back
// to the purchase.
type NotificationData struct {
	PaymentRef  string            `json:"payment_ref"`
	AmountCents uint32            `json:"amount_cents"`
	FeeCents    uint32            `json:"fee_cents"`
	Metadata    map[string]string `json:"metadata"`
}

// FulfillmentStore is the write side of fulfillment: duplicate
// detection by payment reference and the transactional
// order/ticket/payment/inventory write.
type FulfillmentStore interface {
	PaymentExists(ctx context.Context, externalRef string) (bool, error)
	Fulfill(ctx context.Context, f repository.Fulfillment) (uint64, error)
}

// AuditPublisher fans processed notifications out to the broker.
type AuditPublisher interface {
	PublishOrderFulfilled(ctx context.Context, ev queue.OrderFulfilledEvent) error
	PublishPaymentAudit(ctx context.Context, ev queue.PaymentAuditEvent) error
}

// Processor verifies and fulfills webhook notifications.
type Processor struct {
	secret    string
	store     FulfillmentStore
	publisher AuditPublisher
}

// NewProcessor builds a Processor. An empty secret disables signature
// verification entirely; that mode exists for local development only
// and is announced loudly at startup so it can never hide in a
// production deployment.
func NewProcessor(secret string, store FulfillmentStore, publisher AuditPublisher) *Processor {
	if secret == "" {
		log.Printf("[webhook] WARNING: no signing secret configured; payloads will be trusted as-is. DEVELOPMENT ONLY.")
	}
	return &Processor{secret: secret, store: store, publisher: publisher}
}

// VerifySignature checks the hex HMAC-SHA256 of body against the
// configured secret. With no secret configured the payload is trusted
// as-is (dev-only mode, see NewProcessor).
func (p *Processor) VerifySignature(body []byte, signature string) error {
	if p.secret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(body)
	given, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(given, mac.Sum(nil)) {
		return repository.ErrWebhookSignatureInvalid
	}
	return nil
}

// Process dispatches a verified notification by type. Errors returned
// here are for the caller to log; the transport boundary still
// acknowledges the delivery so the processor does not retry-storm us.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	switch n.Type {
	case TypeCheckoutCompleted:
		return p.fulfill(ctx, n)
	case TypePaymentSucceeded:
		// A bare payment success is not a fulfillment trigger; only
		// the completed-checkout notification is. Record it for
		// operator reconciliation and move on.
		log.Printf("[webhook] payment.succeeded for %s without checkout completion; audit only", n.Data.PaymentRef)
		p.audit(ctx, n, "no_action", "bare payment notification")
		return nil
	default:
		log.Printf("[webhook] ignoring notification type %q (id=%s)", n.Type, n.ID)
		return nil
	}
}

// fulfill materializes a completed checkout exactly once.
func (p *Processor) fulfill(ctx context.Context, n Notification) error {
	ref := n.Data.PaymentRef
	if ref == "" {
		return fmt.Errorf("notification %s has no payment reference", n.ID)
	}

	exists, err := p.store.PaymentExists(ctx, ref)
	if err != nil {
		return fmt.Errorf("duplicate check for %s: %w", ref, err)
	}
	if exists {
		// Redelivery. Acknowledge without side effects.
		log.Printf("[webhook] duplicate delivery for payment %s; no side effects", ref)
		p.audit(ctx, n, "duplicate", "payment already fulfilled")
		return nil
	}

	intent, err := parseIntent(n.Data.Metadata)
	if err != nil {
		return fmt.Errorf("notification %s: %w", n.ID, err)
	}

	orderID, err := p.store.Fulfill(ctx, repository.Fulfillment{
		BuyerID:            intent.buyerID,
		EventID:            intent.eventID,
		ItemKind:           intent.itemKind,
		ItemID:             intent.itemID,
		Quantity:           intent.quantity,
		ExternalPaymentRef: ref,
		AmountCents:        n.Data.AmountCents,
		FeeCents:           n.Data.FeeCents,
	})
	if err != nil {
		p.audit(ctx, n, "failed", err.Error())
		return fmt.Errorf("fulfill payment %s: %w", ref, err)
	}

	log.Printf("[webhook] fulfilled payment %s as order %d (event=%d kind=%s qty=%d)",
		ref, orderID, intent.eventID, intent.itemKind, intent.quantity)
	if p.publisher != nil {
		ev := queue.OrderFulfilledEvent{
			OrderID:            orderID,
			BuyerID:            intent.buyerID,
			EventID:            intent.eventID,
			ItemKind:           intent.itemKind,
			ItemID:             intent.itemID,
			Quantity:           intent.quantity,
			AmountCents:        n.Data.AmountCents,
			FeeCents:           n.Data.FeeCents,
			ExternalPaymentRef: ref,
			FulfilledAt:        time.Now().UTC().Format(time.RFC3339),
		}
		if err := p.publisher.PublishOrderFulfilled(ctx, ev); err != nil {
			log.Printf("[webhook] publish order.fulfilled for %s failed: %v", ref, err)
		}
	}
	return nil
}

func (p *Processor) audit(ctx context.Context, n Notification, outcome, detail string) {
	if p.publisher == nil {
		return
	}
	ev := queue.PaymentAuditEvent{
		ExternalPaymentRef: n.Data.PaymentRef,
		NotificationType:   n.Type,
		Outcome:            outcome,
		Detail:             detail,
		ReceivedAt:         time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.publisher.PublishPaymentAudit(ctx, ev); err != nil {
		log.Printf("[webhook] publish payment.audit for %s failed: %v", n.Data.PaymentRef, err)
	}
}

// intent is the purchase rebuilt from checkout metadata.
type intent struct {
	eventID  uint64
	buyerID  uint64
	itemID   uint64
	quantity uint32
	itemKind string
}

func parseIntent(md map[string]string) (intent, error) {
	var in intent
	var err error
	if in.eventID, err = strconv.ParseUint(md["event_id"], 10, 64); err != nil {
		return in, fmt.Errorf("metadata event_id: %w", err)
	}
	if in.buyerID, err = strconv.ParseUint(md["buyer_id"], 10, 64); err != nil {
		return in, fmt.Errorf("metadata buyer_id: %w", err)
	}
	qty, err := strconv.ParseUint(md["quantity"], 10, 32)
	if err != nil || qty == 0 {
		return in, fmt.Errorf("metadata quantity %q invalid", md["quantity"])
	}
	in.quantity = uint32(qty)
	in.itemKind = md["item_kind"]
	if in.itemKind == "" {
		return in, fmt.Errorf("metadata item_kind missing")
	}
	if in.itemID, err = strconv.ParseUint(md["item_id"], 10, 64); err != nil {
		return in, fmt.Errorf("metadata item_id: %w", err)
	}
	return in, nil
}
