package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
)

// Limiter decides whether the caller may send another message today.
//
// Check is a pure read and Record increments without enforcing. The pair is
// not atomic: two concurrent senders can both pass Check and both Record,
// overshooting the limit by one each. This is a soft limit.
//
// Every failure of the resolver or the store fails open, the caller is
// allowed to send and the failure goes to the observer.
type Limiter struct {
	log      *slog.Logger
	resolver contract.IdentityResolver
	store    contract.QuotaStore
	observer contract.Observer
	limit    int
	now      func() time.Time
}

type LimiterOption func(*Limiter)

// WithClock replaces time.Now, mostly for tests crossing midnight.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(log *slog.Logger, resolver contract.IdentityResolver, store contract.QuotaStore,
	observer contract.Observer, limit int, opts ...LimiterOption) *Limiter {
	if limit <= 0 {
		limit = domain.DefaultDailyLimit
	}
	l := &Limiter{
		log:      log,
		resolver: resolver,
		store:    store,
		observer: observer,
		limit:    limit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Limit() int { return l.limit }

func (l *Limiter) Check(ctx context.Context) domain.QuotaStatus {
	now := l.now()
	key, ok := l.key(ctx, now)
	if !ok {
		return domain.NewQuotaStatus(0, l.limit, now)
	}
	used, err := l.store.Count(ctx, key)
	if err != nil {
		l.storeFailed("count", err)
		return domain.NewQuotaStatus(0, l.limit, now)
	}
	return domain.NewQuotaStatus(used, l.limit, now)
}

func (l *Limiter) Record(ctx context.Context) {
	key, ok := l.key(ctx, l.now())
	if !ok {
		return
	}
	used, err := l.store.Increment(ctx, key)
	if err != nil {
		l.storeFailed("increment", err)
		return
	}
	l.log.Debug("Message recorded", "key", key.String(), "used", used)
}

// Reset clears today's counter of the resolved identity.
func (l *Limiter) Reset(ctx context.Context) {
	key, ok := l.key(ctx, l.now())
	if !ok {
		return
	}
	if err := l.store.Reset(ctx, key); err != nil {
		l.storeFailed("reset", err)
		return
	}
	l.log.Info("Quota reset", "key", key.String())
}

func (l *Limiter) key(ctx context.Context, now time.Time) (domain.QuotaKey, bool) {
	identity, err := l.resolver.Resolve(ctx)
	if err != nil {
		l.log.Warn("Identity unavailable, allowing send", "error", err)
		l.observer.IdentityFallback(err)
		return domain.QuotaKey{}, false
	}
	return domain.NewQuotaKey(identity, now), true
}

func (l *Limiter) storeFailed(op string, err error) {
	l.log.Warn("Quota store failed, allowing send", "op", op, "error", err)
	l.observer.QuotaStoreFailed(op, err)
}
