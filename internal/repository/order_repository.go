package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gatherly/gatherly/internal/model"
	"github.com/gatherly/gatherly/internal/utils"
)

// OrderRepo writes and reads orders, tickets and payments. Orders are
// created exactly once per external payment reference, by Fulfill;
// afterwards only their status columns change. The unique index on
// payments.external_payment_ref is the idempotency backstop: even if
// two deliveries of the same notification race past the existence
// check, the second insert fails and the transaction rolls back
// without touching inventory.
type OrderRepo struct {
	db        *sql.DB
	inventory *InventoryRepo
}

func NewOrderRepo(db *sql.DB, inv *InventoryRepo) *OrderRepo {
	return &OrderRepo{db: db, inventory: inv}
}

// PaymentExists reports whether a payment row already carries the
// given external reference, i.e. the notification was already
// fulfilled.
func (r *OrderRepo) PaymentExists(ctx context.Context, externalRef string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM payments WHERE external_payment_ref=? LIMIT 1",
		externalRef).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Fulfillment carries everything needed to materialize a completed
// checkout: the purchase intent rebuilt from webhook metadata plus
// the processor's payment reference and amounts.
type Fulfillment struct {
	BuyerID            uint64
	EventID            uint64
	ItemKind           string
	ItemID             uint64
	Quantity           uint32
	ExternalPaymentRef string
	AmountCents        uint32
	FeeCents           uint32
}

// Fulfill creates the order, its tickets and the payment row and
// decrements the matching inventory counter, all inside one
// transaction. Either every side effect lands or none does; in
// particular inventory is never reduced for an order that failed to
// persist, and ErrInsufficientInventory rolls the order back.
func (r *OrderRepo) Fulfill(ctx context.Context, f Fulfillment) (uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders
		 (buyer_id, event_id, item_kind, item_id, quantity, status, payment_status, external_payment_ref, total_amount_cents)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		f.BuyerID, f.EventID, f.ItemKind, f.ItemID, f.Quantity,
		model.OrderStatusCompleted, model.PaymentStatusSucceeded,
		f.ExternalPaymentRef, f.AmountCents)
	if err != nil {
		return 0, err
	}
	orderID64, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	orderID := uint64(orderID64)

	// One ticket row per unit purchased, each with its own serial.
	for i := uint32(0); i < f.Quantity; i++ {
		serial, err := utils.RandomHex(16)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tickets (order_id, event_id, holder_id, serial, external_payment_ref)
			 VALUES (?,?,?,?,?)`,
			orderID, f.EventID, f.BuyerID, serial, f.ExternalPaymentRef); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO payments (order_id, external_payment_ref, amount_cents, fee_cents, status)
		 VALUES (?,?,?,?,?)`,
		orderID, f.ExternalPaymentRef, f.AmountCents, f.FeeCents,
		model.PaymentStatusSucceeded); err != nil {
		return 0, err
	}

	if err := r.inventory.DecrementTx(ctx, tx, f.ItemKind, f.ItemID, f.Quantity); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return orderID, nil
}

// TransactionRow is one result of the admin transaction search. It
// joins an order with its event and buyer for display and export.
type TransactionRow struct {
	OrderID            uint64    `json:"order_id"`
	EventID            uint64    `json:"event_id"`
	EventTitle         string    `json:"event_title"`
	BuyerID            uint64    `json:"buyer_id"`
	BuyerEmail         string    `json:"buyer_email"`
	ItemKind           string    `json:"item_kind"`
	Quantity           uint32    `json:"quantity"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"payment_status"`
	ExternalPaymentRef string    `json:"external_payment_ref"`
	TotalAmountCents   uint32    `json:"total_amount_cents"`
	CreatedAt          time.Time `json:"created_at"`
}

// TransactionFilter narrows the admin search. Zero values mean "any".
type TransactionFilter struct {
	EventID uint64
	BuyerID uint64
	Status  string
	From    time.Time
	To      time.Time
	Limit   int
}

// SearchTransactions performs the read-only cross-resource search
// used by the admin surface, newest first.
func (r *OrderRepo) SearchTransactions(ctx context.Context, f TransactionFilter) ([]TransactionRow, error) {
	q := `SELECT o.id, o.event_id, e.title, o.buyer_id, i.email,
	             o.item_kind, o.quantity, o.status, o.payment_status,
	             o.external_payment_ref, o.total_amount_cents, o.created_at
	      FROM orders o
	      JOIN events e ON e.id = o.event_id
	      JOIN identities i ON i.id = o.buyer_id
	      WHERE 1=1`
	args := make([]interface{}, 0, 6)
	if f.EventID != 0 {
		q += " AND o.event_id = ?"
		args = append(args, f.EventID)
	}
	if f.BuyerID != 0 {
		q += " AND o.buyer_id = ?"
		args = append(args, f.BuyerID)
	}
	if s := strings.TrimSpace(f.Status); s != "" {
		q += " AND o.status = ?"
		args = append(args, strings.ToUpper(s))
	}
	if !f.From.IsZero() {
		q += " AND o.created_at >= ?"
		args = append(args, f.From.UTC().Format("2006-01-02 15:04:05"))
	}
	if !f.To.IsZero() {
		q += " AND o.created_at < ?"
		args = append(args, f.To.UTC().Format("2006-01-02 15:04:05"))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q += " ORDER BY o.created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]TransactionRow, 0)
	for rows.Next() {
		var t TransactionRow
		if err := rows.Scan(&t.OrderID, &t.EventID, &t.EventTitle, &t.BuyerID, &t.BuyerEmail,
			&t.ItemKind, &t.Quantity, &t.Status, &t.PaymentStatus,
			&t.ExternalPaymentRef, &t.TotalAmountCents, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
