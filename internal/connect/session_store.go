package connect

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCookie is the name of the server-side session id cookie.
// The id is an opaque uuid issued at login; channel 2 parks pending
// link values under it.
const SessionCookie = "gatherly_session"

// SessionStore keeps the server-side pieces of the link handshake in
// Redis: the issued OAuth state bindings and the per-session pending
// link value (recovery channel 2). A nil Redis client disables the
// store; every method then degrades to a miss so the coordinator
// falls through to the durable channels.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore { return &SessionStore{rdb: rdb} }

// pendingValue is what channel 2 stores under the session key.
type pendingValue struct {
	AccountRef       string `json:"account_ref"`
	CorrelationToken string `json:"correlation_token"`
}

// StoreState records an issued authorization state and the identity
// that initiated it (0 when anonymous). The binding expires with the
// attempt TTL.
func (s *SessionStore) StoreState(ctx context.Context, state string, initiatorID uint64, ttl time.Duration) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Set(ctx, "connect:state:"+state, initiatorID, ttl).Err()
}

// TakeState consumes an issued state binding, returning the initiator
// identity and whether the state was known. Each state is usable once.
func (s *SessionStore) TakeState(ctx context.Context, state string) (uint64, bool) {
	if s.rdb == nil {
		return 0, false
	}
	v, err := s.rdb.GetDel(ctx, "connect:state:"+state).Uint64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetPendingLink attaches the candidate to the (possibly renewed)
// server-side session so the next authenticated request on the same
// session can pick it up.
func (s *SessionStore) SetPendingLink(ctx context.Context, sessionID, accountRef, correlationToken string, ttl time.Duration) error {
	if s.rdb == nil || sessionID == "" {
		return nil
	}
	b, err := json.Marshal(pendingValue{AccountRef: accountRef, CorrelationToken: correlationToken})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, "session:"+sessionID+":pending_link", b, ttl).Err()
}

// GetPendingLink returns the candidate stored on the session, if any.
func (s *SessionStore) GetPendingLink(ctx context.Context, sessionID string) (accountRef, correlationToken string, ok bool) {
	if s.rdb == nil || sessionID == "" {
		return "", "", false
	}
	b, err := s.rdb.Get(ctx, "session:"+sessionID+":pending_link").Bytes()
	if err != nil {
		return "", "", false
	}
	var v pendingValue
	if err := json.Unmarshal(b, &v); err != nil || v.AccountRef == "" {
		return "", "", false
	}
	return v.AccountRef, v.CorrelationToken, true
}

// ClearPendingLink removes the session's pending link value once it
// has been applied or rejected.
func (s *SessionStore) ClearPendingLink(ctx context.Context, sessionID string) {
	if s.rdb == nil || sessionID == "" {
		return
	}
	_ = s.rdb.Del(ctx, "session:"+sessionID+":pending_link").Err()
}
