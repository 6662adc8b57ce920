package repository

import (
	"context"
	"database/sql"

	"github.com/gatherly/gatherly/internal/model"
)

// InventoryRepo is the ledger for the four sellable resource kinds.
// Every counter lives in the inventory table keyed by (kind,
// resource_id) and is only ever reduced through the guarded UPDATE in
// DecrementTx, so a counter can never go negative regardless of how
// many fulfillments race for the last units.
type InventoryRepo struct{ DB *sql.DB }

func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{DB: db} }

// InitTx seeds a counter for a newly created resource inside the
// caller's transaction. Remaining starts at the full capacity.
func (r *InventoryRepo) InitTx(ctx context.Context, tx *sql.Tx, kind string, resourceID uint64, capacity uint32) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO inventory (kind, resource_id, remaining) VALUES (?,?,?)",
		kind, resourceID, capacity)
	return err
}

// Remaining returns the current remaining count for a resource. A
// missing row is reported as sql.ErrNoRows.
func (r *InventoryRepo) Remaining(ctx context.Context, kind string, resourceID uint64) (uint32, error) {
	var remaining uint32
	err := r.DB.QueryRowContext(ctx,
		"SELECT remaining FROM inventory WHERE kind=? AND resource_id=? LIMIT 1",
		kind, resourceID).Scan(&remaining)
	return remaining, err
}

// CheckAvailability reports whether at least qty units remain for the
// resource. This is a plain read: it does not hold anything, and a
// later decrement may still fail if another buyer got there first.
func (r *InventoryRepo) CheckAvailability(ctx context.Context, kind string, resourceID uint64, qty uint32) (bool, error) {
	if !model.ValidKind(kind) {
		return false, ErrEventNotFound
	}
	remaining, err := r.Remaining(ctx, kind, resourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return remaining >= qty, nil
}

// Decrement reduces the remaining count by qty in a single guarded
// statement. See DecrementTx for the guard semantics.
func (r *InventoryRepo) Decrement(ctx context.Context, kind string, resourceID uint64, qty uint32) error {
	return decrement(ctx, r.DB, kind, resourceID, qty)
}

// DecrementTx is Decrement running inside an existing transaction.
// The check-then-decrement pair is collapsed into one conditional
// UPDATE guarded by `remaining >= qty`: when two fulfillments race
// for the last unit, the database serializes the row update and the
// loser's guard fails, yielding ErrInsufficientInventory without the
// counter ever dipping below zero.
func (r *InventoryRepo) DecrementTx(ctx context.Context, tx *sql.Tx, kind string, resourceID uint64, qty uint32) error {
	return decrement(ctx, tx, kind, resourceID, qty)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func decrement(ctx context.Context, ex execer, kind string, resourceID uint64, qty uint32) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE inventory SET remaining = remaining - ?
		 WHERE kind=? AND resource_id=? AND remaining >= ?`,
		qty, kind, resourceID, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientInventory
	}
	return nil
}
