package repository

import (
	"context"
	"database/sql"

	"github.com/gatherly/gatherly/internal/model"
)

// EventRepo provides data access to events and their sellable
// attachments (products, vendor spots, volunteer shifts). Creating a
// resource also seeds its inventory counter inside the same
// transaction so a resource can never exist without a ledger row.
type EventRepo struct {
	db        *sql.DB
	inventory *InventoryRepo
}

func NewEventRepo(db *sql.DB, inv *InventoryRepo) *EventRepo {
	return &EventRepo{db: db, inventory: inv}
}

// DB exposes the underlying handle for callers that need to compose
// transactions across repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

// Create inserts an event and seeds its ticket counter at full
// capacity. Both writes share one transaction.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (owner_id, title, starts_at, ends_at, ticket_capacity, ticket_price_cents)
		 VALUES (?,?,?,?,?,?)`,
		ev.OwnerID, ev.Title,
		ev.StartsAt.UTC().Format("2006-01-02 15:04:05"),
		ev.EndsAt.UTC().Format("2006-01-02 15:04:05"),
		ev.TicketCapacity, ev.TicketPriceCents)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	if err := r.inventory.InitTx(ctx, tx, model.KindTicket, ev.ID, ev.TicketCapacity); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID returns a single event. ErrEventNotFound when the id does
// not resolve.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	const q = `SELECT id, owner_id, title, starts_at, ends_at, ticket_capacity, ticket_price_cents,
	                  created_at, updated_at
	           FROM events WHERE id=? LIMIT 1`
	var ev model.Event
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&ev.ID, &ev.OwnerID, &ev.Title, &ev.StartsAt, &ev.EndsAt,
		&ev.TicketCapacity, &ev.TicketPriceCents, &ev.CreatedAt, &ev.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Event{}, ErrEventNotFound
	}
	return ev, err
}

// GetByIDAndOwner returns the event only when ownerID owns it.
// ErrEventNotFound when the id does not resolve, ErrForbidden when
// the event belongs to another identity.
func (r *EventRepo) GetByIDAndOwner(ctx context.Context, id, ownerID uint64) (model.Event, error) {
	ev, err := r.GetByID(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if ev.OwnerID != ownerID {
		return model.Event{}, ErrForbidden
	}
	return ev, nil
}

// ListUpcoming returns events whose window has not yet closed,
// soonest first. Used by the public browse surface.
func (r *EventRepo) ListUpcoming(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT id, owner_id, title, starts_at, ends_at, ticket_capacity, ticket_price_cents,
	                  created_at, updated_at
	           FROM events WHERE ends_at > UTC_TIMESTAMP()
	           ORDER BY starts_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.Event, 0)
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.Title, &ev.StartsAt, &ev.EndsAt,
			&ev.TicketCapacity, &ev.TicketPriceCents, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// AddProduct inserts a merchandise item for an event and seeds its
// quantity counter in the same transaction.
func (r *EventRepo) AddProduct(ctx context.Context, p *model.Product) error {
	return r.addAttachment(ctx, model.KindProduct, p.Quantity, func(tx *sql.Tx) (uint64, error) {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO products (event_id, name, price_cents, quantity) VALUES (?,?,?,?)",
			p.EventID, p.Name, p.PriceCents, p.Quantity)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		p.ID = uint64(id)
		return p.ID, err
	})
}

// AddVendorSpot inserts a vendor booth offering for an event and
// seeds its capacity counter in the same transaction.
func (r *EventRepo) AddVendorSpot(ctx context.Context, v *model.VendorSpot) error {
	return r.addAttachment(ctx, model.KindVendorSpot, v.Capacity, func(tx *sql.Tx) (uint64, error) {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO vendor_spots (event_id, name, price_cents, capacity) VALUES (?,?,?,?)",
			v.EventID, v.Name, v.PriceCents, v.Capacity)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		v.ID = uint64(id)
		return v.ID, err
	})
}

// AddVolunteerShift inserts a volunteer slot for an event and seeds
// its capacity counter in the same transaction.
func (r *EventRepo) AddVolunteerShift(ctx context.Context, s *model.VolunteerShift) error {
	return r.addAttachment(ctx, model.KindVolunteerShift, s.Capacity, func(tx *sql.Tx) (uint64, error) {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO volunteer_shifts (event_id, name, starts_at, ends_at, price_cents, capacity) VALUES (?,?,?,?,?,?)",
			s.EventID, s.Name,
			s.StartsAt.UTC().Format("2006-01-02 15:04:05"),
			s.EndsAt.UTC().Format("2006-01-02 15:04:05"),
			s.PriceCents, s.Capacity)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		s.ID = uint64(id)
		return s.ID, err
	})
}

// addAttachment runs the insert closure and the inventory seed in one
// transaction.
func (r *EventRepo) addAttachment(ctx context.Context, kind string, capacity uint32, insert func(tx *sql.Tx) (uint64, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	id, err := insert(tx)
	if err != nil {
		return err
	}
	if err := r.inventory.InitTx(ctx, tx, kind, id, capacity); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ItemPriceCents resolves the unit price for a sellable item of an
// event. For TICKET the item id is the event id itself. It verifies
// that product/spot/shift rows actually belong to the event so a
// buyer cannot pay another event's price into this organizer's
// account. sql.ErrNoRows when the item does not exist.
func (r *EventRepo) ItemPriceCents(ctx context.Context, eventID uint64, kind string, itemID uint64) (uint32, error) {
	if kind == model.KindTicket {
		if itemID != eventID {
			return 0, sql.ErrNoRows
		}
		var price uint32
		err := r.db.QueryRowContext(ctx,
			"SELECT ticket_price_cents FROM events WHERE id=? LIMIT 1", eventID).Scan(&price)
		return price, err
	}
	var q string
	switch kind {
	case model.KindProduct:
		q = "SELECT price_cents FROM products WHERE id=? AND event_id=? LIMIT 1"
	case model.KindVendorSpot:
		q = "SELECT price_cents FROM vendor_spots WHERE id=? AND event_id=? LIMIT 1"
	case model.KindVolunteerShift:
		q = "SELECT price_cents FROM volunteer_shifts WHERE id=? AND event_id=? LIMIT 1"
	default:
		return 0, sql.ErrNoRows
	}
	var price uint32
	err := r.db.QueryRowContext(ctx, q, itemID, eventID).Scan(&price)
	return price, err
}
