package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/gatherly/gatherly/internal/model"
	"github.com/gatherly/gatherly/internal/utils"
)

// IdentityRepo provides data access to the identities table. Besides
// the usual lookups it owns the payout-account linkage column, whose
// write rules encode the linkage policy: a reference is set at most
// once, re-linking the same value is a no-op and a conflicting value
// is rejected.
type IdentityRepo struct{ DB *sql.DB }

func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{DB: db} }

// Create inserts an identity and returns its ID.
func (r *IdentityRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO identities (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches an identity by normalized email.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var ident model.Identity
	var ref sql.NullString
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,payout_account_ref,is_active,created_at,updated_at FROM identities WHERE email=? LIMIT 1",
		email).Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.Role, &ref, &ident.IsActive, &ident.CreatedAt, &ident.UpdatedAt)
	if ref.Valid {
		v := ref.String
		ident.PayoutAccountRef = &v
	}
	return ident, err
}

// GetByID fetches an identity by id.
func (r *IdentityRepo) GetByID(ctx context.Context, id uint64) (model.Identity, error) {
	var ident model.Identity
	var ref sql.NullString
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,payout_account_ref,is_active,created_at,updated_at FROM identities WHERE id=? LIMIT 1",
		id).Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.Role, &ref, &ident.IsActive, &ident.CreatedAt, &ident.UpdatedAt)
	if ref.Valid {
		v := ref.String
		ident.PayoutAccountRef = &v
	}
	return ident, err
}

// PayoutAccountRef returns the linked payout account reference for an
// identity, or empty string when none is linked.
func (r *IdentityRepo) PayoutAccountRef(ctx context.Context, id uint64) (string, error) {
	var ref sql.NullString
	err := r.DB.QueryRowContext(ctx,
		"SELECT payout_account_ref FROM identities WHERE id=? LIMIT 1",
		id).Scan(&ref)
	if err != nil {
		return "", err
	}
	if !ref.Valid {
		return "", nil
	}
	return ref.String, nil
}

// SetPayoutAccountRef attaches an external payout account reference to
// an identity. The conditional UPDATE only fires when the column is
// still NULL or already holds the same value, so concurrent link
// attempts cannot overwrite an established reference. When zero rows
// are affected and the stored value differs from ref, the identity is
// already linked elsewhere and ErrPayoutAccountAlreadyLinked is
// returned. Re-applying the identical reference is a no-op success.
func (r *IdentityRepo) SetPayoutAccountRef(ctx context.Context, id uint64, ref string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE identities SET payout_account_ref=?
		 WHERE id=? AND (payout_account_ref IS NULL OR payout_account_ref=?)`,
		ref, id, ref)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// MySQL reports zero affected rows both when no row matched and
	// when the matched row already held the value. Re-read to tell
	// the no-op apart from a conflicting linkage.
	current, err := r.PayoutAccountRef(ctx, id)
	if err != nil {
		return err
	}
	if current == ref {
		return nil
	}
	return ErrPayoutAccountAlreadyLinked
}
