package client

import (
	"context"
	"fmt"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/aindrajaya/ask-football/infrastructure/grpc/wire"
	"google.golang.org/grpc"
)

// RelayQuotaStore keeps the daily counters on the relay, where every process
// joined to it shares them. It implements contract.QuotaStore.
type RelayQuotaStore struct {
	client *wire.QuotaClient
}

func NewRelayQuotaStore(conn grpc.ClientConnInterface) *RelayQuotaStore {
	return &RelayQuotaStore{client: wire.NewQuotaClient(conn)}
}

func (s *RelayQuotaStore) Count(ctx context.Context, key domain.QuotaKey) (int, error) {
	count, err := s.client.Count(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", errors.ErrQuotaStore, key, err)
	}
	return count, nil
}

func (s *RelayQuotaStore) Increment(ctx context.Context, key domain.QuotaKey) (int, error) {
	count, err := s.client.Increment(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: increment %s: %v", errors.ErrQuotaStore, key, err)
	}
	return count, nil
}

func (s *RelayQuotaStore) Reset(ctx context.Context, key domain.QuotaKey) error {
	if err := s.client.Reset(ctx, key); err != nil {
		return fmt.Errorf("%w: reset %s: %v", errors.ErrQuotaStore, key, err)
	}
	return nil
}
