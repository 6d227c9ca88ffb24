package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/google/uuid"
)

const defaultLookupTimeout = 3 * time.Second

// IdentityResolver resolves the caller identity once per process.
//
// Resolution order is the in-memory value, then the persisted cache, then the
// network lookup. When the lookup fails a private "session-" pseudo-identity
// is used for the rest of the process and never persisted, so that a later
// restart gets a chance to resolve the real address.
type IdentityResolver struct {
	mu       sync.Mutex
	log      *slog.Logger
	lookup   contract.AddressLookup
	cache    contract.IdentityCache
	observer contract.Observer
	timeout  time.Duration
	identity domain.Identity
}

// NewIdentityResolver builds a resolver. cache may be nil.
func NewIdentityResolver(log *slog.Logger, lookup contract.AddressLookup, cache contract.IdentityCache,
	observer contract.Observer, timeout time.Duration) *IdentityResolver {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &IdentityResolver{
		log:      log,
		lookup:   lookup,
		cache:    cache,
		observer: observer,
		timeout:  timeout,
	}
}

// Resolve never fails on a lookup error, it falls back instead.
// It only returns an error when ctx is done before an identity is known.
func (r *IdentityResolver) Resolve(ctx context.Context) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.identity != "" {
		return r.identity, nil
	}
	if identity, ok := r.loadCached(ctx); ok {
		r.identity = identity
		return identity, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	address, err := r.lookup.Lookup(lookupCtx)
	address = strings.TrimSpace(address)
	if err == nil && address == "" {
		err = fmt.Errorf("empty address")
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		err = fmt.Errorf("%w: %v", errors.ErrIdentityResolution, err)
		r.identity = fallbackIdentity()
		r.log.Warn("Using a session identity", "identity", r.identity, "error", err)
		r.observer.IdentityFallback(err)
		return r.identity, nil
	}

	r.identity = domain.Identity(address)
	if r.cache != nil {
		if err := r.cache.Save(ctx, r.identity); err != nil {
			r.log.Debug("Identity not persisted", "error", err)
		}
	}
	return r.identity, nil
}

func (r *IdentityResolver) loadCached(ctx context.Context) (domain.Identity, bool) {
	if r.cache == nil {
		return "", false
	}
	identity, found, err := r.cache.Load(ctx)
	if err != nil {
		r.log.Debug("Identity cache unavailable", "error", err)
		return "", false
	}
	return identity, found
}

func fallbackIdentity() domain.Identity {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return domain.Identity("session-" + id[:10])
}
