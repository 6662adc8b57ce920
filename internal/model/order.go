package model

import "time"

// Order statuses and payment statuses. Orders are created exactly
// once by webhook fulfillment and thereafter only transition status.
const (
    OrderStatusCompleted = "COMPLETED"
    OrderStatusCancelled = "CANCELLED"

    PaymentStatusSucceeded = "SUCCEEDED"
    PaymentStatusRefunded  = "REFUNDED"
)

// Order records a buyer's completed purchase for an event as stored
// in the `orders` table. ExternalPaymentRef is the idempotency
// anchor against the payment processor: at most one order (and its
// tickets and payment) may exist per distinct reference.
//
// Fields:
//  ID                 – primary key identifier.
//  BuyerID            – identity that paid.
//  EventID            – event the purchase belongs to.
//  ItemKind           – inventory kind purchased (TICKET, PRODUCT, ...).
//  ItemID             – resource within the kind (event id for tickets).
//  Quantity           – units purchased.
//  Status             – order state (COMPLETED, CANCELLED).
//  PaymentStatus      – payment state (SUCCEEDED, REFUNDED).
//  ExternalPaymentRef – processor payment reference.
//  TotalAmountCents   – gross amount in cents.
//  CreatedAt          – creation timestamp.
//  UpdatedAt          – last update timestamp.
type Order struct {
    ID                 uint64    // orders.id
    BuyerID            uint64    // orders.buyer_id
    EventID            uint64    // orders.event_id
    ItemKind           string    // orders.item_kind
    ItemID             uint64    // orders.item_id
    Quantity           uint32    // orders.quantity
    Status             string    // orders.status
    PaymentStatus      string    // orders.payment_status
    ExternalPaymentRef string    // orders.external_payment_ref
    TotalAmountCents   uint32    // orders.total_amount_cents
    CreatedAt          time.Time // orders.created_at
    UpdatedAt          time.Time // orders.updated_at
}

// Ticket is an admission (or registration) record created as a side
// effect of a verified completed-checkout notification. It carries
// the originating payment reference so redelivery can be detected.
type Ticket struct {
    ID                 uint64    // tickets.id
    OrderID            uint64    // tickets.order_id
    EventID            uint64    // tickets.event_id
    HolderID           uint64    // tickets.holder_id
    Serial             string    // tickets.serial (opaque, unique)
    ExternalPaymentRef string    // tickets.external_payment_ref
    CreatedAt          time.Time // tickets.created_at
}

// Payment mirrors the processor-side payment for an order. Exactly
// one payment row exists per distinct external reference; the unique
// index on external_payment_ref is what makes webhook redelivery a
// detectable no-op.
type Payment struct {
    ID                 uint64    // payments.id
    OrderID            uint64    // payments.order_id
    ExternalPaymentRef string    // payments.external_payment_ref (unique)
    AmountCents        uint32    // payments.amount_cents
    FeeCents           uint32    // payments.fee_cents (platform share)
    Status             string    // payments.status
    CreatedAt          time.Time // payments.created_at
}
