package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hama/estate/internal/config"
	"hama/estate/internal/db"
	"hama/estate/internal/models"
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func at(min int) *time.Time {
	t := base.Add(time.Duration(min) * time.Minute)
	return &t
}

func strPtr(s string) *string { return &s }

// tickingClock advances one second per call so store timestamps are distinct.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:           "Hama Estate",
		InquiryTimeout:    time.Second,
		PresenceTimeout:   time.Second,
		InquiryCacheTTL:   time.Minute,
		HeartbeatInterval: 5 * time.Millisecond,
	}
}

func newStore(opts ...db.MemoryStoreOption) *db.MemoryStore {
	return db.NewMemoryStore(append([]db.MemoryStoreOption{db.WithClock(tickingClock(base.Add(time.Hour)))}, opts...)...)
}

func put(t *testing.T, store db.Store, collection, id string, fields db.Fields) {
	t.Helper()
	require.NoError(t, store.SetDoc(context.Background(), collection, id, fields, false))
}

// seedMarketplace stores one agent with two listings, two clients, their
// conversations and the inquiries already recorded for them.
func seedMarketplace(t *testing.T, store db.Store) {
	t.Helper()
	put(t, store, propertiesCollection, "p1", db.Fields{"title": "Harbour Flat", "price": 450000.0, "location": "Wellington", "userId": "ag1"})
	put(t, store, propertiesCollection, "p2", db.Fields{"title": "Bush Cabin", "agentId": "ag1"})
	put(t, store, propertiesCollection, "test-property-1", db.Fields{"title": "QA listing", "userId": "ag1"})

	put(t, store, usersCollection, "ag1", db.Fields{"name": "Agent Smith", "role": "agent"})
	put(t, store, usersCollection, "u1", db.Fields{"name": "Ann", "email": "ann@example.com"})
	put(t, store, usersCollection, "u2", db.Fields{"name": "Ben"})

	put(t, store, conversationsCollection, "c1", db.Fields{
		"participants": []string{"u1", "ag1"}, "propertyId": "p1", "createdBy": "u1",
		"lastMessage": "Is it available?", "lastMessageTime": *at(10), "lastMessageSender": "u1", "createdAt": *at(1),
	})
	put(t, store, conversationsCollection, "c2", db.Fields{
		"participants": []string{"u2", "ag1"}, "propertyId": "p2", "createdBy": "u2",
		"lastMessage": "Viewing on Saturday?", "lastMessageTime": *at(20), "lastMessageSender": "u2", "createdAt": *at(2),
	})
	put(t, store, conversationsCollection, "c3", db.Fields{
		"participants": []string{"u1", "ag1"}, "propertyId": "test-property-1", "createdBy": "u1", "lastMessageTime": *at(30),
	})

	put(t, store, inquiriesCollection, "inq1", db.Fields{
		"propertyId": "p1", "agentId": "ag1", "clientId": "u1", "conversationId": "c1",
		"status": "new", "source": "messaging", "createdAt": *at(1), "updatedAt": *at(5),
	})
	put(t, store, inquiriesCollection, "inq2", db.Fields{
		"propertyId": "p2", "agentId": "ag1", "clientId": "u2",
		"status": "new", "source": "manual", "message": "Pets allowed?", "createdAt": *at(3),
	})
}

func inquiryIDs(inqs []models.Inquiry) []string {
	ids := make([]string, 0, len(inqs))
	for _, inq := range inqs {
		ids = append(ids, inq.ID)
	}
	return ids
}

// faultyStore wraps a Store and injects failures.
type faultyStore struct {
	db.Store
	queryErr error
	getErr   error
	setErr   error
	block    bool
	sets     atomic.Int32
}

func (f *faultyStore) QueryWhere(ctx context.Context, collection string, q db.Query, out interface{}) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.queryErr != nil {
		return f.queryErr
	}
	return f.Store.QueryWhere(ctx, collection, q, out)
}

func (f *faultyStore) GetByID(ctx context.Context, collection, id string, out interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	return f.Store.GetByID(ctx, collection, id, out)
}

func (f *faultyStore) SetDoc(ctx context.Context, collection, id string, fields db.Fields, merge bool) error {
	f.sets.Add(1)
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.SetDoc(ctx, collection, id, fields, merge)
}

func (f *faultyStore) UpsertDoc(ctx context.Context, collection, id string, fields db.Fields) (bool, error) {
	f.sets.Add(1)
	if f.setErr != nil {
		return false, f.setErr
	}
	return f.Store.UpsertDoc(ctx, collection, id, fields)
}

// --- Mocks ---

type MockInquiryCache struct {
	mock.Mock
}

func (m *MockInquiryCache) Get(ctx context.Context, agentID string) (*models.InquiryView, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InquiryView), args.Error(1)
}

func (m *MockInquiryCache) Put(ctx context.Context, view *models.InquiryView) error {
	args := m.Called(ctx, view)
	return args.Error(0)
}

type MockInquirySyncer struct {
	mock.Mock
}

func (m *MockInquirySyncer) RequestSync(ctx context.Context, conversationID string) {
	m.Called(ctx, conversationID)
}

// directSyncer runs the sync inline so tests can observe its effect.
type directSyncer struct {
	svc  IInquiryService
	errs []error
}

func (d *directSyncer) RequestSync(ctx context.Context, conversationID string) {
	if err := d.svc.Sync(ctx, conversationID); err != nil {
		d.errs = append(d.errs, err)
	}
}

type MockInquiryNotifier struct {
	mock.Mock
}

func (m *MockInquiryNotifier) NotifyNewInquiry(ctx context.Context, notice models.InquiryNotice) {
	m.Called(ctx, notice)
}
