package model

import "time"

// Identity represents an actor on the platform as stored in the
// `identities` table. Each field corresponds to a column in the
// database. Handlers define separate response types with JSON tags;
// these structs are used by the repository layer.
//
// An identity carries at most one payout account reference. Once
// PayoutAccountRef is set it is treated as authoritative: re-linking
// the same reference is a no-op and linking a different one is
// rejected.
//
// Fields:
//  ID               – primary key identifier of the identity.
//  Email            – unique email address.
//  PasswordHash     – bcrypt hashed password.
//  Role             – role name (ORGANIZER, BUYER or ADMIN).
//  PayoutAccountRef – external payout account identifier (nullable).
//  IsActive         – whether the account is active.
//  CreatedAt        – timestamp of creation.
//  UpdatedAt        – timestamp of last update.
type Identity struct {
    ID               uint64    // identities.id
    Email            string    // identities.email
    PasswordHash     string    // identities.password_hash
    Role             string    // identities.role
    PayoutAccountRef *string   // identities.payout_account_ref (nullable)
    IsActive         bool      // identities.is_active
    CreatedAt        time.Time // identities.created_at
    UpdatedAt        time.Time // identities.updated_at
}

// Roles recognised by the platform. The role is embedded in the JWT
// "role" claim and enforced by middleware.
const (
    RoleOrganizer = "ORGANIZER"
    RoleBuyer     = "BUYER"
    RoleAdmin     = "ADMIN"
)

// RefreshToken models an entry in the `refresh_tokens` table. Each
// refresh token belongs to an identity and contains metadata for
// expiry and revocation. The plain token is not stored; only its
// SHA-256 hash.
//
// Fields:
//  ID         – primary key identifier.
//  IdentityID – owner of the token.
//  TokenHash  – SHA-256 hex digest of the token value.
//  ExpiresAt  – expiration timestamp of the token.
//  RevokedAt  – when the token was revoked (null if still active).
//  CreatedAt  – timestamp of creation.
type RefreshToken struct {
    ID         uint64     // refresh_tokens.id
    IdentityID uint64     // refresh_tokens.identity_id
    TokenHash  string     // refresh_tokens.token_hash
    ExpiresAt  time.Time  // refresh_tokens.expires_at
    RevokedAt  *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt  time.Time  // refresh_tokens.created_at
}
