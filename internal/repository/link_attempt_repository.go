package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gatherly/gatherly/internal/model"
)

// LinkAttemptRepo persists pending payout-account link attempts. Each
// attempt occupies its own row keyed by the OAuth correlation token,
// never a shared slot, so concurrent organizers linking at the same
// time cannot clobber each other's candidates. Rows are dead once
// consumed or expired; ConsumeTx enforces both in one statement.
type LinkAttemptRepo struct{ DB *sql.DB }

func NewLinkAttemptRepo(db *sql.DB) *LinkAttemptRepo { return &LinkAttemptRepo{DB: db} }

// Create inserts a pending attempt discovered at OAuth callback time.
// The correlation token must be unique per attempt.
func (r *LinkAttemptRepo) Create(ctx context.Context, a *model.PendingLinkAttempt) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO link_attempts
		 (correlation_token, candidate_account_ref, source_kind, initiator_id, discovered_at, expires_at)
		 VALUES (?,?,?,?,?,?)`,
		a.CorrelationToken, a.CandidateAccountRef, a.SourceKind, a.InitiatorID,
		a.DiscoveredAt.UTC().Format("2006-01-02 15:04:05"),
		a.ExpiresAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// GetByToken returns the attempt stored under a correlation token,
// consumed or not. sql.ErrNoRows when the token is unknown.
func (r *LinkAttemptRepo) GetByToken(ctx context.Context, token string) (model.PendingLinkAttempt, error) {
	const q = `SELECT id, correlation_token, candidate_account_ref, source_kind, initiator_id,
	                  discovered_at, expires_at, consumed_at
	           FROM link_attempts WHERE correlation_token=? LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, q, token))
}

// FindLatestByInitiator returns the most recent live (unconsumed,
// unexpired) attempt started by the given identity. This backs the
// durable-record recovery channel: the attempt row is keyed by its
// correlation token but rediscovered through the initiator that was
// authenticated when the handshake began. sql.ErrNoRows when none.
func (r *LinkAttemptRepo) FindLatestByInitiator(ctx context.Context, initiatorID uint64) (model.PendingLinkAttempt, error) {
	const q = `SELECT id, correlation_token, candidate_account_ref, source_kind, initiator_id,
	                  discovered_at, expires_at, consumed_at
	           FROM link_attempts
	           WHERE initiator_id=? AND consumed_at IS NULL AND expires_at > UTC_TIMESTAMP()
	           ORDER BY discovered_at DESC LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, q, initiatorID))
}

// HasUnconsumed reports whether any live (unconsumed, unexpired)
// attempt exists at all. The recovery heuristic consults this before
// calling out to the processor: no outstanding attempt means no
// handshake to heal, so the last-resort channel stays cold.
func (r *LinkAttemptRepo) HasUnconsumed(ctx context.Context) (bool, error) {
	const q = `SELECT EXISTS(
	               SELECT 1 FROM link_attempts
	               WHERE consumed_at IS NULL AND expires_at > UTC_TIMESTAMP())`
	var exists bool
	if err := r.DB.QueryRowContext(ctx, q).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Consume marks the attempt under token as applied. The conditional
// UPDATE fires only while the row is unconsumed and unexpired, so an
// attempt is applied at most once and never after its TTL; a loser of
// a concurrent race (or a late request against an expired attempt)
// gets ErrAttemptConsumed.
func (r *LinkAttemptRepo) Consume(ctx context.Context, token string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE link_attempts SET consumed_at=UTC_TIMESTAMP()
		 WHERE correlation_token=? AND consumed_at IS NULL AND expires_at > UTC_TIMESTAMP()`,
		token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAttemptConsumed
	}
	return nil
}

// DeleteExpired removes attempts past their TTL. Called opportunistically;
// expiry is already enforced by the predicates above, this just keeps
// the table from growing without bound.
func (r *LinkAttemptRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM link_attempts WHERE expires_at <= UTC_TIMESTAMP()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *LinkAttemptRepo) scanOne(row *sql.Row) (model.PendingLinkAttempt, error) {
	var a model.PendingLinkAttempt
	var consumed sql.NullTime
	err := row.Scan(&a.ID, &a.CorrelationToken, &a.CandidateAccountRef, &a.SourceKind,
		&a.InitiatorID, &a.DiscoveredAt, &a.ExpiresAt, &consumed)
	if err != nil {
		return model.PendingLinkAttempt{}, err
	}
	if consumed.Valid {
		t := consumed.Time
		a.ConsumedAt = &t
	}
	return a, nil
}

// Expired reports whether the attempt is past its TTL at the given
// instant. Kept here so expiry checks share one definition.
func Expired(a model.PendingLinkAttempt, now time.Time) bool {
	return !now.UTC().Before(a.ExpiresAt)
}
