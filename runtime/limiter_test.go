package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type memoryQuotaStore struct {
	mu     sync.Mutex
	counts map[domain.QuotaKey]int
}

func newMemoryQuotaStore() *memoryQuotaStore {
	return &memoryQuotaStore{counts: make(map[domain.QuotaKey]int)}
}

func (s *memoryQuotaStore) Count(_ context.Context, key domain.QuotaKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

func (s *memoryQuotaStore) Increment(_ context.Context, key domain.QuotaKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *memoryQuotaStore) Reset(_ context.Context, key domain.QuotaKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	return nil
}

type fixedResolver domain.Identity

func (r fixedResolver) Resolve(context.Context) (domain.Identity, error) {
	return domain.Identity(r), nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestLimiter_AllowsUpToLimitThenRejects(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	c := &clock{now: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)}
	limiter := NewLimiter(slog.New(slog.DiscardHandler), fixedResolver("203.0.113.7"), newMemoryQuotaStore(),
		mocks.NewMockObserver(ctrl), 3, WithClock(c.Now))

	for i := 0; i < 3; i++ {
		status := limiter.Check(ctx)
		req.True(status.CanSend)
		req.Equal(i, status.Used)
		req.Equal(3-i, status.Remaining)
		limiter.Record(ctx)
	}

	status := limiter.Check(ctx)
	req.False(status.CanSend)
	req.Equal(3, status.Used)
	req.Equal(0, status.Remaining)
	req.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), status.ResetAt)
}

func TestLimiter_CheckIsPure(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	limiter := NewLimiter(slog.New(slog.DiscardHandler), fixedResolver("203.0.113.7"), newMemoryQuotaStore(),
		mocks.NewMockObserver(ctrl), 3)

	first := limiter.Check(ctx)
	second := limiter.Check(ctx)

	req.Equal(first.Used, second.Used)
	req.Equal(0, second.Used)
}

func TestLimiter_RemainingNeverNegative(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	limiter := NewLimiter(slog.New(slog.DiscardHandler), fixedResolver("203.0.113.7"), newMemoryQuotaStore(),
		mocks.NewMockObserver(ctrl), 3)

	// Record does not enforce, so a racing sender can overshoot
	for i := 0; i < 5; i++ {
		limiter.Record(ctx)
	}

	status := limiter.Check(ctx)
	req.False(status.CanSend)
	req.Equal(5, status.Used)
	req.Equal(0, status.Remaining)
}

func TestLimiter_NewDayStartsFresh(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	c := &clock{now: time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)}
	limiter := NewLimiter(slog.New(slog.DiscardHandler), fixedResolver("203.0.113.7"), newMemoryQuotaStore(),
		mocks.NewMockObserver(ctrl), 3, WithClock(c.Now))

	for i := 0; i < 3; i++ {
		limiter.Record(ctx)
	}
	req.False(limiter.Check(ctx).CanSend)

	// When the UTC day changes
	c.Set(time.Date(2024, 3, 10, 0, 0, 1, 0, time.UTC))

	// Then the counter starts over
	status := limiter.Check(ctx)
	req.True(status.CanSend)
	req.Equal(0, status.Used)
	req.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), status.ResetAt)
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := newMemoryQuotaStore()
	alice := NewLimiter(slog.New(slog.DiscardHandler), fixedResolver("203.0.113.7"), store, mocks.NewMockObserver(ctrl), 3)
	bob := NewLimiter(slog.New(slog.DiscardHandler), fixedResolver("198.51.100.1"), store, mocks.NewMockObserver(ctrl), 3)

	for i := 0; i < 3; i++ {
		alice.Record(ctx)
	}

	req.False(alice.Check(ctx).CanSend)
	req.True(bob.Check(ctx).CanSend)
}

func TestLimiter_Reset(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	limiter := NewLimiter(slog.New(slog.DiscardHandler), fixedResolver("203.0.113.7"), newMemoryQuotaStore(),
		mocks.NewMockObserver(ctrl), 3)
	for i := 0; i < 3; i++ {
		limiter.Record(ctx)
	}

	limiter.Reset(ctx)

	req.Equal(3, limiter.Check(ctx).Remaining)
}

func TestLimiter_FailsOpenOnStoreFailure(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockQuotaStore(ctrl)
	observer := mocks.NewMockObserver(ctrl)
	limiter := NewLimiter(slog.New(slog.DiscardHandler), fixedResolver("203.0.113.7"), store, observer, 3)

	// Given a store that cannot be read nor written
	store.EXPECT().Count(gomock.Any(), gomock.Any()).Return(0, fmt.Errorf("disk full"))
	store.EXPECT().Increment(gomock.Any(), gomock.Any()).Return(0, fmt.Errorf("disk full"))
	observer.EXPECT().QuotaStoreFailed("count", gomock.Any())
	observer.EXPECT().QuotaStoreFailed("increment", gomock.Any())

	// Then the caller is allowed and nothing panics
	status := limiter.Check(ctx)
	req.True(status.CanSend)
	req.Equal(0, status.Used)
	req.Equal(3, status.Remaining)
	req.NotPanics(func() { limiter.Record(ctx) })
}

func TestLimiter_FailsOpenOnIdentityFailure(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockIdentityResolver(ctrl)
	store := mocks.NewMockQuotaStore(ctrl)
	observer := mocks.NewMockObserver(ctrl)
	limiter := NewLimiter(slog.New(slog.DiscardHandler), resolver, store, observer, 3)

	resolver.EXPECT().Resolve(gomock.Any()).Return(domain.Identity(""), context.DeadlineExceeded).Times(2)
	observer.EXPECT().IdentityFallback(gomock.Any()).Times(2)

	status := limiter.Check(ctx)
	req.True(status.CanSend)
	req.Equal(3, status.Remaining)
	limiter.Record(ctx)
}

func TestIdentityResolver_ResolvesOnceAndPersists(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	lookup := mocks.NewMockAddressLookup(ctrl)
	cache := mocks.NewMockIdentityCache(ctrl)
	resolver := NewIdentityResolver(slog.New(slog.DiscardHandler), lookup, cache, mocks.NewMockObserver(ctrl), time.Second)

	cache.EXPECT().Load(gomock.Any()).Return(domain.Identity(""), false, nil)
	lookup.EXPECT().Lookup(gomock.Any()).Return(" 203.0.113.7\n", nil).Times(1)
	cache.EXPECT().Save(gomock.Any(), domain.Identity("203.0.113.7")).Return(nil)

	first, err := resolver.Resolve(ctx)
	req.NoError(err)
	second, err := resolver.Resolve(ctx)
	req.NoError(err)

	req.Equal(domain.Identity("203.0.113.7"), first)
	req.Equal(first, second)
}

func TestIdentityResolver_UsesPersistedIdentity(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	lookup := mocks.NewMockAddressLookup(ctrl)
	cache := mocks.NewMockIdentityCache(ctrl)
	resolver := NewIdentityResolver(slog.New(slog.DiscardHandler), lookup, cache, mocks.NewMockObserver(ctrl), time.Second)

	cache.EXPECT().Load(gomock.Any()).Return(domain.Identity("198.51.100.1"), true, nil)
	lookup.EXPECT().Lookup(gomock.Any()).Times(0)

	identity, err := resolver.Resolve(context.Background())
	req.NoError(err)
	req.Equal(domain.Identity("198.51.100.1"), identity)
}

func TestIdentityResolver_FallsBackToSessionIdentity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	lookup := mocks.NewMockAddressLookup(ctrl)
	cache := mocks.NewMockIdentityCache(ctrl)
	observer := mocks.NewMockObserver(ctrl)
	resolver := NewIdentityResolver(slog.New(slog.DiscardHandler), lookup, cache, observer, time.Second)

	// Given the lookup fails
	cache.EXPECT().Load(gomock.Any()).Return(domain.Identity(""), false, nil)
	lookup.EXPECT().Lookup(gomock.Any()).Return("", fmt.Errorf("network unreachable")).Times(1)
	observer.EXPECT().IdentityFallback(gomock.Any()).Times(1)
	// The fallback is never persisted
	cache.EXPECT().Save(gomock.Any(), gomock.Any()).Times(0)

	first, err := resolver.Resolve(ctx)
	req.NoError(err)
	second, err := resolver.Resolve(ctx)
	req.NoError(err)

	// Then a stable session identity is used for the whole process
	req.Contains(string(first), "session-")
	req.Equal(first, second)
}

func TestIdentityResolver_CancelledContext(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	lookup := mocks.NewMockAddressLookup(ctrl)
	resolver := NewIdentityResolver(slog.New(slog.DiscardHandler), lookup, nil, mocks.NewMockObserver(ctrl), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lookup.EXPECT().Lookup(gomock.Any()).Return("", context.Canceled)

	_, err := resolver.Resolve(ctx)
	req.ErrorIs(err, context.Canceled)
}
