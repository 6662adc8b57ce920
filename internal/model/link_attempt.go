package model

import "time"

// PendingLinkAttempt is a transient record produced mid payout-account
// handshake when the OAuth redirect returns after the originating
// session has expired. It is not owned by any identity until
// reconciled. Each attempt is keyed by its own correlation token (the
// OAuth state value) so that concurrent organizers never share a slot.
//
// An attempt is consumed exactly once on successful application to an
// identity, and is never applied after ExpiresAt.
//
// Fields:
//  ID                  – primary key identifier.
//  CorrelationToken    – OAuth state value; unique per attempt.
//  CandidateAccountRef – external payout account discovered mid-flow.
//  SourceKind          – how the candidate was produced (e.g. "oauth_callback").
//  InitiatorID         – identity that started the handshake, 0 if anonymous.
//  DiscoveredAt        – when the candidate was discovered.
//  ExpiresAt           – hard TTL; expired attempts are dead.
//  ConsumedAt          – when the attempt was applied (null until then).
type PendingLinkAttempt struct {
    ID                  uint64     // link_attempts.id
    CorrelationToken    string     // link_attempts.correlation_token (unique)
    CandidateAccountRef string     // link_attempts.candidate_account_ref
    SourceKind          string     // link_attempts.source_kind
    InitiatorID         uint64     // link_attempts.initiator_id (0 = anonymous)
    DiscoveredAt        time.Time  // link_attempts.discovered_at
    ExpiresAt           time.Time  // link_attempts.expires_at
    ConsumedAt          *time.Time // link_attempts.consumed_at (nullable)
}
