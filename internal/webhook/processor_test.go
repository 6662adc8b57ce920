package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/gatherly/internal/queue"
	"github.com/gatherly/gatherly/internal/repository"
)

// memStore mimics the transactional fulfillment write: duplicate
// detection by payment reference and a guarded inventory decrement,
// both under one lock the way the database serializes them.
type memStore struct {
	mu        sync.Mutex
	payments  map[string]bool
	remaining uint32
	orders    uint64
	failWith  error
}

func newMemStore(remaining uint32) *memStore {
	return &memStore{payments: make(map[string]bool), remaining: remaining}
}

func (m *memStore) PaymentExists(_ context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[ref], nil
}

func (m *memStore) Fulfill(_ context.Context, f repository.Fulfillment) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	if m.payments[f.ExternalPaymentRef] {
		return 0, fmt.Errorf("duplicate payment %s", f.ExternalPaymentRef)
	}
	if m.remaining < f.Quantity {
		return 0, repository.ErrInsufficientInventory
	}
	m.remaining -= f.Quantity
	m.payments[f.ExternalPaymentRef] = true
	m.orders++
	return m.orders, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	fulfilled []queue.OrderFulfilledEvent
	audits    []queue.PaymentAuditEvent
}

func (r *recordingPublisher) PublishOrderFulfilled(_ context.Context, ev queue.OrderFulfilledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fulfilled = append(r.fulfilled, ev)
	return nil
}
func (r *recordingPublisher) PublishPaymentAudit(_ context.Context, ev queue.PaymentAuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, ev)
	return nil
}

func notification(typ, ref string, qty uint32) []byte {
	n := Notification{
		ID:      "evt_1",
		Type:    typ,
		Created: 1700000000,
		Data: NotificationData{
			PaymentRef:  ref,
			AmountCents: 5000,
			FeeCents:    250,
			Metadata: map[string]string{
				"event_id":  "11",
				"buyer_id":  "42",
				"quantity":  fmt.Sprintf("%d", qty),
				"item_kind": "TICKET",
				"item_id":   "11",
			},
		},
	}
	b, _ := json.Marshal(n)
	return b
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	p := NewProcessor("whsec_test", nil, nil)
	body := []byte(`{"id":"evt_1"}`)

	assert.NoError(t, p.VerifySignature(body, sign("whsec_test", body)))
	assert.ErrorIs(t, p.VerifySignature(body, sign("whsec_other", body)), repository.ErrWebhookSignatureInvalid)
	assert.ErrorIs(t, p.VerifySignature(body, "zz-not-hex"), repository.ErrWebhookSignatureInvalid)
	assert.ErrorIs(t, p.VerifySignature(body, ""), repository.ErrWebhookSignatureInvalid)

	// Dev mode: no secret, everything passes.
	dev := NewProcessor("", nil, nil)
	assert.NoError(t, dev.VerifySignature(body, ""))
}

func TestProcessFulfillsCheckoutOnce(t *testing.T) {
	store := newMemStore(5)
	pub := &recordingPublisher{}
	p := NewProcessor("", store, pub)
	body := notification(TypeCheckoutCompleted, "pay_1", 3)

	require.NoError(t, p.Process(context.Background(), body))
	assert.Equal(t, uint32(2), store.remaining)
	require.Len(t, pub.fulfilled, 1)
	assert.Equal(t, uint64(1), pub.fulfilled[0].OrderID)
	assert.Equal(t, uint64(42), pub.fulfilled[0].BuyerID)

	// Redelivery of the same notification: acknowledged, no second
	// order, no second decrement.
	require.NoError(t, p.Process(context.Background(), body))
	assert.Equal(t, uint32(2), store.remaining)
	assert.Len(t, pub.fulfilled, 1)
	require.Len(t, pub.audits, 1)
	assert.Equal(t, "duplicate", pub.audits[0].Outcome)
}

func TestProcessRedeliveryStorm(t *testing.T) {
	store := newMemStore(100)
	p := NewProcessor("", store, nil)
	body := notification(TypeCheckoutCompleted, "pay_storm", 2)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Process(context.Background(), body)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(98), store.remaining, "a redelivery storm must decrement exactly once")
	assert.Equal(t, uint64(1), store.orders)
}

func TestProcessNeverOversells(t *testing.T) {
	store := newMemStore(5)
	p := NewProcessor("", store, nil)

	// 10 distinct payments of 1 unit racing for 5 units.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = p.Process(context.Background(), notification(TypeCheckoutCompleted, fmt.Sprintf("pay_%d", i), 1))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint32(0), store.remaining)
	assert.Equal(t, uint64(5), store.orders, "exactly five fulfillments may win")
}

func TestProcessBarePaymentSucceededTakesNoAction(t *testing.T) {
	store := newMemStore(10)
	pub := &recordingPublisher{}
	p := NewProcessor("", store, pub)

	require.NoError(t, p.Process(context.Background(), notification(TypePaymentSucceeded, "pay_bare", 3)))
	assert.Equal(t, uint32(10), store.remaining)
	assert.Empty(t, store.payments)
	require.Len(t, pub.audits, 1)
	assert.Equal(t, "no_action", pub.audits[0].Outcome)
}

func TestProcessIgnoresUnknownType(t *testing.T) {
	store := newMemStore(10)
	p := NewProcessor("", store, nil)
	require.NoError(t, p.Process(context.Background(), notification("charge.disputed", "pay_x", 1)))
	assert.Equal(t, uint32(10), store.remaining)
}

func TestProcessRejectsBrokenMetadata(t *testing.T) {
	store := newMemStore(10)
	p := NewProcessor("", store, nil)

	n := Notification{ID: "evt_2", Type: TypeCheckoutCompleted,
		Data: NotificationData{PaymentRef: "pay_bad", Metadata: map[string]string{"event_id": "11"}}}
	body, _ := json.Marshal(n)

	assert.Error(t, p.Process(context.Background(), body))
	assert.Equal(t, uint32(10), store.remaining)
}

func TestProcessMissingPaymentRef(t *testing.T) {
	p := NewProcessor("", newMemStore(1), nil)
	n := Notification{ID: "evt_3", Type: TypeCheckoutCompleted}
	body, _ := json.Marshal(n)
	assert.Error(t, p.Process(context.Background(), body))
}

func TestProcessAuditsFulfillmentFailure(t *testing.T) {
	store := newMemStore(10)
	store.failWith = repository.ErrInsufficientInventory
	pub := &recordingPublisher{}
	p := NewProcessor("", store, pub)

	err := p.Process(context.Background(), notification(TypeCheckoutCompleted, "pay_fail", 3))
	assert.Error(t, err)
	require.Len(t, pub.audits, 1)
	assert.Equal(t, "failed", pub.audits[0].Outcome)
}
