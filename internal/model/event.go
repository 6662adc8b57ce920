package model

import "time"

// Event records an organizer's event as stored in the `events`
// table. An event owns four kinds of sellable inventory: its own
// ticket capacity plus any number of products, vendor spots and
// volunteer shifts. Remaining counts live in the `inventory` table
// and are managed exclusively by the inventory ledger.
//
// Fields:
//  ID               – primary key identifier.
//  OwnerID          – organizer identity that owns the event.
//  Title            – display title.
//  StartsAt         – event window start (UTC).
//  EndsAt           – event window end (UTC).
//  TicketCapacity   – total tickets available at creation time.
//  TicketPriceCents – price of a single ticket in cents.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Event struct {
    ID               uint64    // events.id
    OwnerID          uint64    // events.owner_id
    Title            string    // events.title
    StartsAt         time.Time // events.starts_at
    EndsAt           time.Time // events.ends_at
    TicketCapacity   uint32    // events.ticket_capacity
    TicketPriceCents uint32    // events.ticket_price_cents
    CreatedAt        time.Time // events.created_at
    UpdatedAt        time.Time // events.updated_at
}

// Product is a merchandise item sold alongside an event. Its
// remaining quantity is tracked in the inventory table under the
// PRODUCT kind.
type Product struct {
    ID         uint64    // products.id
    EventID    uint64    // products.event_id
    Name       string    // products.name
    PriceCents uint32    // products.price_cents
    Quantity   uint32    // products.quantity (initial stock)
    CreatedAt  time.Time // products.created_at
}

// VendorSpot is a bookable vendor booth at an event. Capacity is
// tracked in the inventory table under the VENDOR_SPOT kind.
type VendorSpot struct {
    ID         uint64    // vendor_spots.id
    EventID    uint64    // vendor_spots.event_id
    Name       string    // vendor_spots.name
    PriceCents uint32    // vendor_spots.price_cents
    Capacity   uint32    // vendor_spots.capacity (initial)
    CreatedAt  time.Time // vendor_spots.created_at
}

// VolunteerShift is a registrable volunteer slot at an event.
// Capacity is tracked in the inventory table under the
// VOLUNTEER_SHIFT kind. A shift may carry a registration fee.
type VolunteerShift struct {
    ID         uint64    // volunteer_shifts.id
    EventID    uint64    // volunteer_shifts.event_id
    Name       string    // volunteer_shifts.name
    StartsAt   time.Time // volunteer_shifts.starts_at
    EndsAt     time.Time // volunteer_shifts.ends_at
    PriceCents uint32    // volunteer_shifts.price_cents
    Capacity   uint32    // volunteer_shifts.capacity (initial)
    CreatedAt  time.Time // volunteer_shifts.created_at
}
