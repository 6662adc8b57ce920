// Package connect drives the payout-account OAuth handshake and the
// recovery machinery that reconciles it with an organizer identity
// when the redirect comes back after the originating session died.
//
// A linkage moves through Unlinked -> AuthorizationRequested ->
// CallbackReceived and then either straight to Linked (the session
// survived) or through AwaitingIdentity, where the candidate account
// is parked as a pending attempt and rediscovered later through the
// recovery channels, strictly in this order: signed client cookie,
// server-side session value, durable per-attempt record, and finally
// a low-confidence match against recently created processor accounts.
package connect

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/gatherly/internal/model"
	"github.com/gatherly/gatherly/internal/payments"
	"github.com/gatherly/gatherly/internal/repository"
)

// ProcessorAPI is the slice of the payment processor the coordinator
// needs: the OAuth pieces plus account verification and the
// recent-accounts listing behind the heuristic channel.
type ProcessorAPI interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	VerifyAccount(ctx context.Context, accountRef string) error
	RecentAccounts(ctx context.Context, since time.Time) ([]string, error)
}

// IdentityLinker owns the payout-account column on identities.
type IdentityLinker interface {
	PayoutAccountRef(ctx context.Context, id uint64) (string, error)
	SetPayoutAccountRef(ctx context.Context, id uint64, ref string) error
}

// AttemptStore persists pending link attempts, one row per
// correlation token.
type AttemptStore interface {
	Create(ctx context.Context, a *model.PendingLinkAttempt) error
	GetByToken(ctx context.Context, token string) (model.PendingLinkAttempt, error)
	FindLatestByInitiator(ctx context.Context, initiatorID uint64) (model.PendingLinkAttempt, error)
	HasUnconsumed(ctx context.Context) (bool, error)
	Consume(ctx context.Context, token string) error
}

// StateSessions is the server-side session surface: issued OAuth
// state bindings and the per-session pending link value.
type StateSessions interface {
	StoreState(ctx context.Context, state string, initiatorID uint64, ttl time.Duration) error
	TakeState(ctx context.Context, state string) (uint64, bool)
	SetPendingLink(ctx context.Context, sessionID, accountRef, correlationToken string, ttl time.Duration) error
	GetPendingLink(ctx context.Context, sessionID string) (accountRef, correlationToken string, ok bool)
	ClearPendingLink(ctx context.Context, sessionID string)
}

// Coordinator reconciles external payout accounts with identities.
type Coordinator struct {
	processor       ProcessorAPI
	identities      IdentityLinker
	attempts        AttemptStore
	sessions        StateSessions
	cookies         *CookieCodec
	attemptTTL      time.Duration
	heuristicWindow time.Duration
}

// NewCoordinator wires the coordinator. attemptTTL bounds how long a
// pending attempt stays applicable; heuristicWindow bounds how far
// back the last-resort account match may look.
func NewCoordinator(p ProcessorAPI, ids IdentityLinker, attempts AttemptStore, sessions StateSessions, cookies *CookieCodec, attemptTTL, heuristicWindow time.Duration) *Coordinator {
	if attemptTTL <= 0 {
		attemptTTL = 30 * time.Minute
	}
	if heuristicWindow <= 0 {
		heuristicWindow = 10 * time.Minute
	}
	if cookies != nil && cookies.ttl > attemptTTL {
		// The cookie names an attempt; letting it outlive the attempt
		// TTL would allow a linkage after the expiry sweep has erased
		// the row. Clamp so both die together.
		cookies.ttl = attemptTTL
	}
	return &Coordinator{
		processor:       p,
		identities:      ids,
		attempts:        attempts,
		sessions:        sessions,
		cookies:         cookies,
		attemptTTL:      attemptTTL,
		heuristicWindow: heuristicWindow,
	}
}

// AttemptTTL returns the pending-attempt lifetime.
func (co *Coordinator) AttemptTTL() time.Duration { return co.attemptTTL }

// PayoutRef returns the identity's linked account reference, empty
// when unlinked.
func (co *Coordinator) PayoutRef(ctx context.Context, identityID uint64) (string, error) {
	return co.identities.PayoutAccountRef(ctx, identityID)
}

// BeginAuthorization starts the handshake for an identity (0 when the
// caller is not authenticated) and returns the processor URL to
// redirect to. The unguessable correlation token rides in the OAuth
// state parameter and is bound server-side to the initiator.
func (co *Coordinator) BeginAuthorization(ctx context.Context, identityID uint64) (string, error) {
	state := uuid.NewString()
	if err := co.sessions.StoreState(ctx, state, identityID, co.attemptTTL); err != nil {
		log.Printf("[connect] store state failed: %v", err)
	}
	return co.processor.AuthorizeURL(state), nil
}

// CallbackResult reports what HandleCallback did. When Linked is
// false the handler must set the pending-link cookie to CookieToken
// and send the user to the login/reconnect page.
type CallbackResult struct {
	Linked           bool   // linkage completed inline
	AccountRef       string // the external account discovered
	CorrelationToken string // the attempt's key when parked
	CookieToken      string // signed cookie value when parked
}

// HandleCallback processes the processor redirect: it exchanges the
// code for an account reference and either links inline (the caller
// is still authenticated) or parks the candidate as a pending attempt
// discoverable through the recovery channels.
func (co *Coordinator) HandleCallback(ctx context.Context, code, state string, identityID uint64, sessionID string) (CallbackResult, error) {
	initiatorID, known := co.sessions.TakeState(ctx, state)
	if !known {
		// The state binding can be gone for the same reason the
		// session is gone. The signed state value itself is still the
		// attempt's key; continue with an anonymous initiator.
		log.Printf("[connect] state %s has no server-side binding; continuing anonymously", state)
	}

	accountRef, err := co.processor.ExchangeCode(ctx, code)
	if err != nil {
		return CallbackResult{}, err
	}

	// The processor redirect rarely carries the caller's bearer token,
	// so the state binding is usually the only thing still naming the
	// initiator. Either source is enough to reconcile inline.
	linkTo := identityID
	if linkTo == 0 {
		linkTo = initiatorID
	}
	if linkTo != 0 {
		switch err := co.LinkAccount(ctx, linkTo, accountRef); {
		case err == nil:
			return CallbackResult{Linked: true, AccountRef: accountRef}, nil
		case errors.Is(err, repository.ErrPayoutAccountAlreadyLinked),
			errors.Is(err, repository.ErrInvalidExternalAccountFormat):
			return CallbackResult{}, err
		default:
			// Transient apply failure. Park the candidate rather than
			// lose it; recovery finishes the linkage on a later request.
			log.Printf("[connect] inline link for identity %d failed, parking attempt: %v", linkTo, err)
		}
	}

	now := time.Now().UTC()
	attempt := model.PendingLinkAttempt{
		CorrelationToken:    state,
		CandidateAccountRef: accountRef,
		SourceKind:          "oauth_callback",
		InitiatorID:         initiatorID,
		DiscoveredAt:        now,
		ExpiresAt:           now.Add(co.attemptTTL),
	}
	if err := co.attempts.Create(ctx, &attempt); err != nil {
		return CallbackResult{}, err
	}

	if err := co.sessions.SetPendingLink(ctx, sessionID, accountRef, state, co.attemptTTL); err != nil {
		log.Printf("[connect] session pending-link write failed: %v", err)
	}

	cookieToken, err := co.cookies.Issue(accountRef, state)
	if err != nil {
		return CallbackResult{}, err
	}
	return CallbackResult{
		AccountRef:       accountRef,
		CorrelationToken: state,
		CookieToken:      cookieToken,
	}, nil
}

// LinkAccount attaches accountRef to the identity. Re-linking the
// same reference is a no-op; a different reference on an already
// linked identity is rejected with ErrPayoutAccountAlreadyLinked.
func (co *Coordinator) LinkAccount(ctx context.Context, identityID uint64, accountRef string) error {
	if !payments.ValidAccountRef(accountRef) {
		return repository.ErrInvalidExternalAccountFormat
	}
	return co.identities.SetPayoutAccountRef(ctx, identityID, accountRef)
}

// RecoveryCarrier is what an identity-bearing request can carry into
// recovery: the signed pending-link cookie and the session id.
type RecoveryCarrier struct {
	CookieToken string
	SessionID   string
}

// RecoveryOutcome reports whether a pending linkage was applied and
// through which channel.
type RecoveryOutcome struct {
	Applied    bool
	AccountRef string
	Channel    string
}

// candidate is one channel's proposal.
type candidate struct {
	accountRef string
	token      string // correlation token; empty for the heuristic channel
	channel    string
}

// Recover runs the recovery channels for an authenticated identity,
// strictly cookie before session before durable record before the
// heuristic, and applies the first candidate that survives
// verification. The consumed attempt is dead afterwards; remaining
// candidates are ignored. Recovery is best effort: every failure is
// local to its channel and the request that triggered the sweep is
// never failed by it.
func (co *Coordinator) Recover(ctx context.Context, identityID uint64, carrier RecoveryCarrier) (RecoveryOutcome, error) {
	if identityID == 0 {
		return RecoveryOutcome{}, nil
	}
	// Nothing to recover for an already linked identity.
	if ref, err := co.identities.PayoutAccountRef(ctx, identityID); err != nil {
		return RecoveryOutcome{}, err
	} else if ref != "" {
		return RecoveryOutcome{}, nil
	}

	candidates := make([]candidate, 0, 3)
	if carrier.CookieToken != "" {
		if ref, token, err := co.cookies.Parse(carrier.CookieToken); err == nil {
			candidates = append(candidates, candidate{accountRef: ref, token: token, channel: "cookie"})
		} else {
			log.Printf("[connect] identity %d: pending-link cookie rejected: %v", identityID, err)
		}
	}
	if ref, token, ok := co.sessions.GetPendingLink(ctx, carrier.SessionID); ok {
		candidates = append(candidates, candidate{accountRef: ref, token: token, channel: "session"})
	}
	if attempt, err := co.attempts.FindLatestByInitiator(ctx, identityID); err == nil {
		candidates = append(candidates, candidate{accountRef: attempt.CandidateAccountRef, token: attempt.CorrelationToken, channel: "record"})
	}

	if len(candidates) == 0 {
		// Last resort: match against accounts the processor created
		// recently. Inherently racy across concurrent organizers, so
		// it is logged for operator audit and never consulted while a
		// preceding channel had anything to offer. It also needs
		// evidence that a handshake is actually outstanding: a
		// presented (even rejected) recovery cookie, or a live
		// unclaimed attempt row. Without that gate every unlinked
		// buyer's request would hit the processor and risk adopting
		// an organizer's account.
		evidence := carrier.CookieToken != ""
		if !evidence {
			ok, err := co.attempts.HasUnconsumed(ctx)
			if err != nil {
				log.Printf("[connect] identity %d: unconsumed-attempt probe failed: %v", identityID, err)
			}
			evidence = ok
		}
		if !evidence {
			return RecoveryOutcome{}, nil
		}
		refs, err := co.processor.RecentAccounts(ctx, time.Now().UTC().Add(-co.heuristicWindow))
		if err != nil {
			log.Printf("[connect] identity %d: recent-accounts heuristic unavailable: %v", identityID, err)
			return RecoveryOutcome{}, nil
		}
		if len(refs) > 0 {
			log.Printf("[connect] identity %d: LOW CONFIDENCE heuristic candidate %s (most recent of %d in window)", identityID, refs[0], len(refs))
			candidates = append(candidates, candidate{accountRef: refs[0], channel: "heuristic"})
		}
	}

	for _, cand := range candidates {
		outcome, ok := co.tryCandidate(ctx, identityID, cand)
		if ok {
			return outcome, nil
		}
	}
	return RecoveryOutcome{}, nil
}

// tryCandidate verifies and applies one channel's proposal. A false
// return means the channel was skipped and the next should be tried.
func (co *Coordinator) tryCandidate(ctx context.Context, identityID uint64, cand candidate) (RecoveryOutcome, bool) {
	// Before trusting any channel, confirm the account exists on the
	// processor side. Verification failure skips the channel only.
	if err := co.processor.VerifyAccount(ctx, cand.accountRef); err != nil {
		log.Printf("[connect] identity %d: channel %s skipped, verify %s failed: %v", identityID, cand.channel, cand.accountRef, err)
		return RecoveryOutcome{}, false
	}

	// When the candidate names an attempt row, it must still be live;
	// consumed or expired attempts are never applied.
	if cand.token != "" {
		attempt, err := co.attempts.GetByToken(ctx, cand.token)
		switch {
		case err == nil:
			if attempt.ConsumedAt != nil || repository.Expired(attempt, time.Now()) {
				log.Printf("[connect] identity %d: channel %s skipped, attempt %s consumed or expired", identityID, cand.channel, cand.token)
				return RecoveryOutcome{}, false
			}
		default:
			// No row for the token. The cookie is signed and
			// short-lived and names the account directly, so it stays
			// usable on its own; the other token-bearing channels are
			// backed by the row and die with it.
			if cand.channel != "cookie" {
				log.Printf("[connect] identity %d: channel %s skipped, attempt %s not found", identityID, cand.channel, cand.token)
				return RecoveryOutcome{}, false
			}
		}
	}

	if err := co.identities.SetPayoutAccountRef(ctx, identityID, cand.accountRef); err != nil {
		if errors.Is(err, repository.ErrPayoutAccountAlreadyLinked) {
			// A concurrent sweep won; nothing left to recover.
			log.Printf("[connect] identity %d: channel %s found %s but identity is already linked", identityID, cand.channel, cand.accountRef)
			return RecoveryOutcome{}, false
		}
		log.Printf("[connect] identity %d: channel %s apply failed: %v", identityID, cand.channel, err)
		return RecoveryOutcome{}, false
	}

	if cand.token != "" {
		if err := co.attempts.Consume(ctx, cand.token); err != nil && !errors.Is(err, repository.ErrAttemptConsumed) {
			log.Printf("[connect] identity %d: consume attempt %s failed: %v", identityID, cand.token, err)
		}
	}
	log.Printf("[connect] identity %d: linked %s via %s channel", identityID, cand.accountRef, cand.channel)
	return RecoveryOutcome{Applied: true, AccountRef: cand.accountRef, Channel: cand.channel}, true
}
