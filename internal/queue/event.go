// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderFulfilledEvent is published when a completed-checkout
// notification has been materialized into an order. It contains
// enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type OrderFulfilledEvent struct {
    OrderID            uint64 `json:"order_id"`
    BuyerID            uint64 `json:"buyer_id"`
    EventID            uint64 `json:"event_id"`
    ItemKind           string `json:"item_kind"`
    ItemID             uint64 `json:"item_id"`
    Quantity           uint32 `json:"quantity"`
    AmountCents        uint32 `json:"amount_cents"`
    FeeCents           uint32 `json:"fee_cents"`
    ExternalPaymentRef string `json:"external_payment_ref"`
    FulfilledAt        string `json:"fulfilled_at"`
}

// PaymentAuditEvent records a payment notification that produced no
// domain writes: bare payment-succeeded notifications, duplicate
// deliveries, and fulfillment failures. Operators reconcile these
// from the audit log since the webhook endpoint itself always
// acknowledges once a payload parses.
type PaymentAuditEvent struct {
    ExternalPaymentRef string `json:"external_payment_ref"`
    NotificationType   string `json:"notification_type"`
    Outcome            string `json:"outcome"` // "no_action", "duplicate" or "failed"
    Detail             string `json:"detail,omitempty"`
    ReceivedAt         string `json:"received_at"`
}
