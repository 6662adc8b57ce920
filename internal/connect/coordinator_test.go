package connect

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/gatherly/internal/model"
	"github.com/gatherly/gatherly/internal/repository"
)

// ----- fakes -----

type fakeProcessor struct {
	exchanged   map[string]string // code -> account ref
	verifyErr   map[string]error  // ref -> error
	recent      []string
	recentErr   error
	recentCalls int
}

func (f *fakeProcessor) AuthorizeURL(state string) string { return "https://pay.test/authorize?state=" + state }
func (f *fakeProcessor) ExchangeCode(_ context.Context, code string) (string, error) {
	if ref, ok := f.exchanged[code]; ok {
		return ref, nil
	}
	return "", repository.ErrExternalVerificationFailed
}
func (f *fakeProcessor) VerifyAccount(_ context.Context, ref string) error {
	if f.verifyErr == nil {
		return nil
	}
	return f.verifyErr[ref]
}
func (f *fakeProcessor) RecentAccounts(context.Context, time.Time) ([]string, error) {
	f.recentCalls++
	return f.recent, f.recentErr
}

// fakeLinker mirrors the conditional-update semantics of the
// identities table: first link wins, relinking the same ref is a
// no-op, a different ref is rejected.
type fakeLinker struct {
	mu     sync.Mutex
	linked map[uint64]string
	setErr error // injected transient failure for SetPayoutAccountRef
}

func newFakeLinker() *fakeLinker { return &fakeLinker{linked: make(map[uint64]string)} }

func (f *fakeLinker) PayoutAccountRef(_ context.Context, id uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linked[id], nil
}
func (f *fakeLinker) SetPayoutAccountRef(_ context.Context, id uint64, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	if cur, ok := f.linked[id]; ok && cur != "" && cur != ref {
		return repository.ErrPayoutAccountAlreadyLinked
	}
	f.linked[id] = ref
	return nil
}

type fakeAttempts struct {
	mu   sync.Mutex
	rows map[string]model.PendingLinkAttempt
}

func newFakeAttempts() *fakeAttempts { return &fakeAttempts{rows: make(map[string]model.PendingLinkAttempt)} }

func (f *fakeAttempts) Create(_ context.Context, a *model.PendingLinkAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uint64(len(f.rows) + 1)
	f.rows[a.CorrelationToken] = *a
	return nil
}
func (f *fakeAttempts) GetByToken(_ context.Context, token string) (model.PendingLinkAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[token]
	if !ok {
		return model.PendingLinkAttempt{}, sql.ErrNoRows
	}
	return a, nil
}
func (f *fakeAttempts) FindLatestByInitiator(_ context.Context, initiatorID uint64) (model.PendingLinkAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best model.PendingLinkAttempt
	found := false
	now := time.Now().UTC()
	for _, a := range f.rows {
		if a.InitiatorID != initiatorID || a.ConsumedAt != nil || !a.ExpiresAt.After(now) {
			continue
		}
		if !found || a.DiscoveredAt.After(best.DiscoveredAt) {
			best, found = a, true
		}
	}
	if !found {
		return model.PendingLinkAttempt{}, sql.ErrNoRows
	}
	return best, nil
}
func (f *fakeAttempts) HasUnconsumed(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, a := range f.rows {
		if a.ConsumedAt == nil && a.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeAttempts) Consume(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[token]
	if !ok {
		return sql.ErrNoRows
	}
	if a.ConsumedAt != nil || !a.ExpiresAt.After(time.Now().UTC()) {
		return repository.ErrAttemptConsumed
	}
	now := time.Now().UTC()
	a.ConsumedAt = &now
	f.rows[token] = a
	return nil
}

type pendingVal struct{ ref, token string }

type fakeSessions struct {
	mu      sync.Mutex
	states  map[string]uint64
	pending map[string]pendingVal
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{states: make(map[string]uint64), pending: make(map[string]pendingVal)}
}

func (f *fakeSessions) StoreState(_ context.Context, state string, initiatorID uint64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state] = initiatorID
	return nil
}
func (f *fakeSessions) TakeState(_ context.Context, state string) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.states[state]
	delete(f.states, state)
	return id, ok
}
func (f *fakeSessions) SetPendingLink(_ context.Context, sessionID, ref, token string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sessionID != "" {
		f.pending[sessionID] = pendingVal{ref: ref, token: token}
	}
	return nil
}
func (f *fakeSessions) GetPendingLink(_ context.Context, sessionID string) (string, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.pending[sessionID]
	return v.ref, v.token, ok
}
func (f *fakeSessions) ClearPendingLink(_ context.Context, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, sessionID)
}

// ----- harness -----

type fixture struct {
	processor *fakeProcessor
	linker    *fakeLinker
	attempts  *fakeAttempts
	sessions  *fakeSessions
	co        *Coordinator
}

func newFixture() *fixture {
	f := &fixture{
		processor: &fakeProcessor{exchanged: map[string]string{"code-1": "acct_AAAABBBB"}},
		linker:    newFakeLinker(),
		attempts:  newFakeAttempts(),
		sessions:  newFakeSessions(),
	}
	codec := NewCookieCodec("test-secret", 15*time.Minute)
	f.co = NewCoordinator(f.processor, f.linker, f.attempts, f.sessions, codec, 30*time.Minute, 10*time.Minute)
	return f
}

func liveAttempt(token, ref string, initiator uint64) model.PendingLinkAttempt {
	now := time.Now().UTC()
	return model.PendingLinkAttempt{
		CorrelationToken:    token,
		CandidateAccountRef: ref,
		SourceKind:          "oauth_callback",
		InitiatorID:         initiator,
		DiscoveredAt:        now,
		ExpiresAt:           now.Add(30 * time.Minute),
	}
}

// ----- tests -----

func TestHandleCallbackLinksInline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.sessions.StoreState(ctx, "state-1", 7, time.Minute))

	res, err := f.co.HandleCallback(ctx, "code-1", "state-1", 7, "sess-1")
	require.NoError(t, err)
	assert.True(t, res.Linked)
	assert.Equal(t, "acct_AAAABBBB", res.AccountRef)

	ref, _ := f.linker.PayoutAccountRef(ctx, 7)
	assert.Equal(t, "acct_AAAABBBB", ref)
	assert.Empty(t, f.attempts.rows, "inline link must not park an attempt")
}

func TestHandleCallbackLinksViaStateBinding(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.sessions.StoreState(ctx, "state-1", 7, time.Minute))

	// The redirect itself carries no bearer token, but the state
	// binding still names the initiator: reconcile inline.
	res, err := f.co.HandleCallback(ctx, "code-1", "state-1", 0, "sess-1")
	require.NoError(t, err)
	assert.True(t, res.Linked)

	ref, _ := f.linker.PayoutAccountRef(ctx, 7)
	assert.Equal(t, "acct_AAAABBBB", ref)
	assert.Empty(t, f.attempts.rows, "a resolvable initiator must not park an attempt")
}

func TestHandleCallbackParksAttemptWhenSessionDied(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// identityID 0 and no surviving state binding: nothing names the
	// initiator anymore, so the candidate is parked anonymously.
	res, err := f.co.HandleCallback(ctx, "code-1", "state-1", 0, "sess-1")
	require.NoError(t, err)
	assert.False(t, res.Linked)
	assert.Equal(t, "state-1", res.CorrelationToken)

	a, err := f.attempts.GetByToken(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "acct_AAAABBBB", a.CandidateAccountRef)
	assert.Zero(t, a.InitiatorID)
	assert.Nil(t, a.ConsumedAt)

	ref, token, ok := f.sessions.GetPendingLink(ctx, "sess-1")
	assert.True(t, ok)
	assert.Equal(t, "acct_AAAABBBB", ref)
	assert.Equal(t, "state-1", token)

	// The cookie must carry the same candidate.
	cRef, cToken, err := f.co.cookies.Parse(res.CookieToken)
	require.NoError(t, err)
	assert.Equal(t, "acct_AAAABBBB", cRef)
	assert.Equal(t, "state-1", cToken)

	// Identity is still unlinked until recovery runs.
	linked, _ := f.linker.PayoutAccountRef(ctx, 7)
	assert.Empty(t, linked)
}

func TestHandleCallbackParksWhenInlineApplyFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.sessions.StoreState(ctx, "state-1", 7, time.Minute))
	f.linker.setErr = context.DeadlineExceeded

	// A transient store failure must not lose the candidate: the
	// attempt is parked under the known initiator for recovery.
	res, err := f.co.HandleCallback(ctx, "code-1", "state-1", 0, "sess-1")
	require.NoError(t, err)
	assert.False(t, res.Linked)

	a, err := f.attempts.GetByToken(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), a.InitiatorID)

	// Once the store heals, the durable-record channel finishes the
	// linkage.
	f.linker.setErr = nil
	out, err := f.co.Recover(ctx, 7, RecoveryCarrier{})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "record", out.Channel)
}

func TestRecoverPrefersCookieOverSessionAndRecord(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cookieTok, err := f.co.cookies.Issue("acct_COOKIE00", "tok-cookie")
	require.NoError(t, err)
	require.NoError(t, f.sessions.SetPendingLink(ctx, "sess-1", "acct_SESSION0", "tok-session", time.Minute))
	at := liveAttempt("tok-session", "acct_SESSION0", 7)
	require.NoError(t, f.attempts.Create(ctx, &at))
	rec := liveAttempt("tok-record", "acct_RECORD00", 7)
	require.NoError(t, f.attempts.Create(ctx, &rec))

	out, err := f.co.Recover(ctx, 7, RecoveryCarrier{CookieToken: cookieTok, SessionID: "sess-1"})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "cookie", out.Channel)
	assert.Equal(t, "acct_COOKIE00", out.AccountRef)

	ref, _ := f.linker.PayoutAccountRef(ctx, 7)
	assert.Equal(t, "acct_COOKIE00", ref)
}

func TestRecoverSessionBeforeRecord(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.sessions.SetPendingLink(ctx, "sess-1", "acct_SESSION0", "tok-session", time.Minute))
	at := liveAttempt("tok-session", "acct_SESSION0", 7)
	require.NoError(t, f.attempts.Create(ctx, &at))
	rec := liveAttempt("tok-record", "acct_RECORD00", 7)
	rec.DiscoveredAt = rec.DiscoveredAt.Add(-time.Minute)
	require.NoError(t, f.attempts.Create(ctx, &rec))

	out, err := f.co.Recover(ctx, 7, RecoveryCarrier{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, "session", out.Channel)
	assert.Equal(t, "acct_SESSION0", out.AccountRef)
}

func TestRecoverFallsBackToDurableRecord(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Cookie gone, session gone: only the durable row survives.
	rec := liveAttempt("tok-record", "acct_RECORD00", 7)
	require.NoError(t, f.attempts.Create(ctx, &rec))

	out, err := f.co.Recover(ctx, 7, RecoveryCarrier{})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "record", out.Channel)

	// The applied attempt must be consumed so a second sweep cannot
	// replay it.
	a, err := f.attempts.GetByToken(ctx, "tok-record")
	require.NoError(t, err)
	assert.NotNil(t, a.ConsumedAt)

	out2, err := f.co.Recover(ctx, 8, RecoveryCarrier{})
	require.NoError(t, err)
	assert.False(t, out2.Applied)
}

func TestRecoverNeverAppliesExpiredAttempt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	expired := liveAttempt("tok-old", "acct_EXPIRED0", 7)
	expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, f.attempts.Create(ctx, &expired))

	// Even when the session still names the expired attempt, the
	// liveness check must refuse it.
	require.NoError(t, f.sessions.SetPendingLink(ctx, "sess-1", "acct_EXPIRED0", "tok-old", time.Minute))

	out, err := f.co.Recover(ctx, 7, RecoveryCarrier{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.False(t, out.Applied)

	ref, _ := f.linker.PayoutAccountRef(ctx, 7)
	assert.Empty(t, ref)
}

func TestRecoverSkipsUnverifiableCandidate(t *testing.T) {
	f := newFixture()
	f.processor.verifyErr = map[string]error{"acct_COOKIE00": repository.ErrExternalVerificationFailed}
	ctx := context.Background()

	cookieTok, err := f.co.cookies.Issue("acct_COOKIE00", "tok-cookie")
	require.NoError(t, err)
	rec := liveAttempt("tok-record", "acct_RECORD00", 7)
	require.NoError(t, f.attempts.Create(ctx, &rec))

	out, err := f.co.Recover(ctx, 7, RecoveryCarrier{CookieToken: cookieTok})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "record", out.Channel, "verification failure must fall through, not abort")
}

func TestRecoverHeuristicOnlyWhenNoOtherCandidate(t *testing.T) {
	f := newFixture()
	f.processor.recent = []string{"acct_RECENT00"}
	ctx := context.Background()

	// With a session candidate present the heuristic must stay cold.
	require.NoError(t, f.sessions.SetPendingLink(ctx, "sess-1", "acct_SESSION0", "tok-session", time.Minute))
	at := liveAttempt("tok-session", "acct_SESSION0", 7)
	require.NoError(t, f.attempts.Create(ctx, &at))

	out, err := f.co.Recover(ctx, 7, RecoveryCarrier{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, "session", out.Channel)
	assert.Zero(t, f.processor.recentCalls, "heuristic must stay cold while other channels deliver")

	// An anonymously parked attempt is evidence of an outstanding
	// handshake; with nothing else to offer, the heuristic applies.
	anon := liveAttempt("tok-anon", "acct_RECENT00", 0)
	require.NoError(t, f.attempts.Create(ctx, &anon))

	out2, err := f.co.Recover(ctx, 9, RecoveryCarrier{})
	require.NoError(t, err)
	assert.True(t, out2.Applied)
	assert.Equal(t, "heuristic", out2.Channel)
	assert.Equal(t, "acct_RECENT00", out2.AccountRef)
}

func TestRecoverHeuristicRequiresHandshakeEvidence(t *testing.T) {
	f := newFixture()
	f.processor.recent = []string{"acct_RECENT00"}
	ctx := context.Background()

	// An unlinked identity with no recovery carrier and no outstanding
	// attempt never triggers the processor lookup: there is no
	// handshake to heal, only an account to wrongly adopt.
	out, err := f.co.Recover(ctx, 9, RecoveryCarrier{})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Zero(t, f.processor.recentCalls)

	ref, _ := f.linker.PayoutAccountRef(ctx, 9)
	assert.Empty(t, ref)
}

func TestNewCoordinatorClampsCookieTTL(t *testing.T) {
	codec := NewCookieCodec("test-secret", 48*time.Hour)
	co := NewCoordinator(&fakeProcessor{}, newFakeLinker(), newFakeAttempts(), newFakeSessions(), codec, 30*time.Minute, 10*time.Minute)

	// A cookie that outlived its attempt could link the candidate
	// after the expiry sweep erased the row; both must die together.
	assert.Equal(t, co.AttemptTTL(), codec.TTL())
}

func TestRecoverNoopWhenAlreadyLinked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.linker.SetPayoutAccountRef(ctx, 7, "acct_EXISTING"))

	cookieTok, err := f.co.cookies.Issue("acct_COOKIE00", "tok-cookie")
	require.NoError(t, err)

	out, err := f.co.Recover(ctx, 7, RecoveryCarrier{CookieToken: cookieTok})
	require.NoError(t, err)
	assert.False(t, out.Applied)

	ref, _ := f.linker.PayoutAccountRef(ctx, 7)
	assert.Equal(t, "acct_EXISTING", ref, "recovery must never overwrite an existing linkage")
}

func TestLinkAccountIdempotency(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.co.LinkAccount(ctx, 7, "acct_AAAABBBB"))
	assert.NoError(t, f.co.LinkAccount(ctx, 7, "acct_AAAABBBB"), "relinking the same ref is a no-op")

	err := f.co.LinkAccount(ctx, 7, "acct_CCCCDDDD")
	assert.ErrorIs(t, err, repository.ErrPayoutAccountAlreadyLinked)

	assert.ErrorIs(t, f.co.LinkAccount(ctx, 8, "not-an-account"), repository.ErrInvalidExternalAccountFormat)
}

func TestBeginAuthorizationBindsState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	u, err := f.co.BeginAuthorization(ctx, 7)
	require.NoError(t, err)
	assert.Contains(t, u, "https://pay.test/authorize?state=")
	assert.Len(t, f.sessions.states, 1)
	for _, initiator := range f.sessions.states {
		assert.Equal(t, uint64(7), initiator)
	}
}
