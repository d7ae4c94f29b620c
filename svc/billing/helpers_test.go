package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/confeitaria/pkg/redis"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
	"github.com/dmitrymomot/confeitaria/svc/billing"
)

const testSecret = "whsec_test_secret"

func eventPayload(id, typ string, created time.Time, object string) []byte {
	return fmt.Appendf(nil,
		`{"id":%q,"object":"event","type":%q,"created":%d,"livemode":false,"data":{"object":%s}}`,
		id, typ, created.Unix(), object)
}

func checkoutCompleted(id, email string, at time.Time) []byte {
	return eventPayload(id, "checkout.session.completed", at,
		fmt.Sprintf(`{"id":"cs_%s","object":"checkout.session","customer":"cus_%s","customer_email":%q}`, id, id, email))
}

func subscriptionEvent(id, typ, status, customer, email string, at time.Time) []byte {
	metadata := "{}"
	if email != "" {
		metadata = fmt.Sprintf(`{"email":%q}`, email)
	}
	return eventPayload(id, typ, at,
		fmt.Sprintf(`{"id":"sub_%s","object":"subscription","status":%q,"customer":%q,"metadata":%s}`, id, status, customer, metadata))
}

func sign(t *testing.T, payload []byte) string {
	t.Helper()
	header, err := webhook.Sign(testSecret, payload, time.Now())
	require.NoError(t, err)
	return header
}

// fakeProcessor is an in-memory Processor.
type fakeProcessor struct {
	mu sync.Mutex

	customers map[string][]string // email -> customer ids
	emails    map[string]string   // customer id -> email
	active    map[string]bool

	findErr    error
	createErr  error
	sessionErr error
	subErr     map[string]error

	findCalls int
	created   []string
	sessions  []billing.CheckoutSessionParams
	subCalls  int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		customers: make(map[string][]string),
		emails:    make(map[string]string),
		active:    make(map[string]bool),
		subErr:    make(map[string]error),
	}
}

func (p *fakeProcessor) addCustomer(email, id string, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers[email] = append(p.customers[email], id)
	p.emails[id] = email
	p.active[id] = active
}

func (p *fakeProcessor) setActive(id string, active bool) {
	p.mu.Lock()
	p.active[id] = active
	p.mu.Unlock()
}

func (p *fakeProcessor) FindCustomers(ctx context.Context, email string) ([]billing.CustomerRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findCalls++
	if p.findErr != nil {
		return nil, p.findErr
	}
	var refs []billing.CustomerRef
	for _, id := range p.customers[email] {
		refs = append(refs, billing.CustomerRef{Email: email, CustomerID: id})
	}
	return refs, nil
}

func (p *fakeProcessor) CreateCustomer(ctx context.Context, email string) (billing.CustomerRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return billing.CustomerRef{}, p.createErr
	}
	id := fmt.Sprintf("cus_new_%d", len(p.created)+1)
	p.created = append(p.created, id)
	p.customers[email] = append(p.customers[email], id)
	p.emails[id] = email
	return billing.CustomerRef{Email: email, CustomerID: id}, nil
}

func (p *fakeProcessor) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emails[customerID], nil
}

func (p *fakeProcessor) CreateCheckoutSession(ctx context.Context, params billing.CheckoutSessionParams) (billing.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return billing.CheckoutSession{}, p.sessionErr
	}
	p.sessions = append(p.sessions, params)
	id := fmt.Sprintf("cs_test_%d", len(p.sessions))
	return billing.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (p *fakeProcessor) HasActiveSubscription(ctx context.Context, customerID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subCalls++
	if err := p.subErr[customerID]; err != nil {
		return false, err
	}
	return p.active[customerID], nil
}

// fakeKV mimics redis.Storage semantics without expiry.
type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (kv *fakeKV) Get(ctx context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.err != nil {
		return nil, kv.err
	}
	v, ok := kv.data[key]
	if !ok {
		return nil, redis.ErrKeyNotFound
	}
	return v, nil
}

func (kv *fakeKV) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.err != nil {
		return kv.err
	}
	kv.data[key] = val
	return nil
}

func (kv *fakeKV) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.err != nil {
		return false, kv.err
	}
	if _, ok := kv.data[key]; ok {
		return false, nil
	}
	kv.data[key] = val
	return true, nil
}

func (kv *fakeKV) Delete(ctx context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.err != nil {
		return kv.err
	}
	delete(kv.data, key)
	return nil
}

var errStoreDown = errors.New("connection refused")

// flakyStore fails every call while down is set.
type flakyStore struct {
	billing.Store
	mu   sync.Mutex
	down bool
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *flakyStore) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

func (s *flakyStore) Get(ctx context.Context, email string) (billing.Record, error) {
	if s.isDown() {
		return billing.Record{}, errStoreDown
	}
	return s.Store.Get(ctx, email)
}

func (s *flakyStore) Upsert(ctx context.Context, email string, status billing.Status, at time.Time) (billing.UpsertResult, error) {
	if s.isDown() {
		return billing.UpsertResult{}, errStoreDown
	}
	return s.Store.Upsert(ctx, email, status, at)
}

// recordingNotifier collects activation notifications.
type recordingNotifier struct {
	mu     sync.Mutex
	emails []string
	err    error
}

func (n *recordingNotifier) SubscriptionActivated(ctx context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, email)
	return n.err
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.emails...)
}
