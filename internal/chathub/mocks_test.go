package chathub_test

import (
	"context"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// RecordingNotifier keeps every event it is given.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *RecordingNotifier) Notify(_ context.Context, ev models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

// For returns the events delivered to actorID, in order.
func (n *RecordingNotifier) For(actorID string) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Event
	for _, ev := range n.events {
		if ev.ActorID == actorID {
			out = append(out, ev)
		}
	}
	return out
}

func (n *RecordingNotifier) Types(actorID string) []models.EventType {
	var out []models.EventType
	for _, ev := range n.For(actorID) {
		out = append(out, ev.Type)
	}
	return out
}

func (n *RecordingNotifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// MockArchive is a testify mock of chathub.Archiver.
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) SaveConversation(ctx context.Context, conv models.Conversation) error {
	args := m.Called(conv)
	return args.Error(0)
}

func (m *MockArchive) FindConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(conversationID)
	return args.Get(0).(models.Conversation), args.Error(1)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyStore reports the first failPairs pairings as lost to a concurrent joiner.
type flakyStore struct {
	storage.Store
	mu        sync.Mutex
	failPairs int
	pairCalls int
}

func (s *flakyStore) Pair(ctx context.Context, conv models.Conversation) error {
	s.mu.Lock()
	s.pairCalls++
	fail := s.failPairs > 0
	if fail {
		s.failPairs--
	}
	s.mu.Unlock()

	if fail {
		return storage.ErrCandidateUnavailable
	}
	return s.Store.Pair(ctx, conv)
}

type fixture struct {
	store    storage.Store
	notifier *RecordingNotifier
	clock    *fakeClock
	matcher  *chathub.MatcherService
	sweeper  *chathub.Sweeper
}

var testSweepConfig = chathub.SweepConfig{
	Interval:                time.Second,
	QueueIdleTimeout:        90 * time.Second,
	ConversationIdleTimeout: 5 * time.Minute,
}

func newFixture(t *testing.T, s storage.Store, opts ...chathub.MatcherOption) *fixture {
	t.Helper()
	f := &fixture{store: s, notifier: &RecordingNotifier{}, clock: newFakeClock()}
	conversations := chathub.NewConversationManager(s, nil, f.notifier)
	opts = append([]chathub.MatcherOption{chathub.WithClock(f.clock.Now)}, opts...)
	f.matcher = chathub.NewMatcherService(s, conversations, opts...)
	f.sweeper = chathub.NewSweeper(f.matcher, testSweepConfig)
	return f
}

func (f *fixture) join(t *testing.T, actorID string, traits models.Traits, filter models.Filter) models.Status {
	t.Helper()
	status, err := f.matcher.Join(context.Background(), models.JoinRequest{ActorID: actorID, Traits: traits, Filter: filter})
	if err != nil {
		t.Fatalf("join %s: %v", actorID, err)
	}
	return status
}

var (
	male   = models.Traits{Gender: models.GenderMale, AgeBand: models.AgeBand25to34}
	female = models.Traits{Gender: models.GenderFemale, AgeBand: models.AgeBand25to34}

	wantsMale   = models.SpecificFilter(models.GenderMale, "")
	wantsFemale = models.SpecificFilter(models.GenderFemale, "")
)
