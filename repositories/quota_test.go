package repositories

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/stretchr/testify/require"
)

func TestQuotaRepository_IncrementAndCount(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewQuotaRepository(openDB(t), slog.Default())
	key := domain.NewQuotaKey("203.0.113.7", time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC))

	// Given an empty store
	count, err := repository.Count(ctx, key)
	req.NoError(err)
	req.Equal(0, count)

	// When incremented twice
	first, err := repository.Increment(ctx, key)
	req.NoError(err)
	second, err := repository.Increment(ctx, key)
	req.NoError(err)

	// Then the counter follows
	req.Equal(1, first)
	req.Equal(2, second)
	count, err = repository.Count(ctx, key)
	req.NoError(err)
	req.Equal(2, count)
}

func TestQuotaRepository_KeysAreIndependent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewQuotaRepository(openDB(t), slog.Default())
	day := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	today := domain.NewQuotaKey("203.0.113.7", day)
	tomorrow := domain.NewQuotaKey("203.0.113.7", day.Add(2*time.Minute))
	other := domain.NewQuotaKey("198.51.100.1", day)

	_, err := repository.Increment(ctx, today)
	req.NoError(err)

	for _, key := range []domain.QuotaKey{tomorrow, other} {
		count, err := repository.Count(ctx, key)
		req.NoError(err)
		req.Equal(0, count)
	}
}

func TestQuotaRepository_Reset(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewQuotaRepository(openDB(t), slog.Default())
	key := domain.NewQuotaKey("203.0.113.7", time.Now())

	_, err := repository.Increment(ctx, key)
	req.NoError(err)
	req.NoError(repository.Reset(ctx, key))
	req.NoError(repository.Reset(ctx, key))

	count, err := repository.Count(ctx, key)
	req.NoError(err)
	req.Equal(0, count)
}

func TestQuotaRepository_ConcurrentIncrements(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewQuotaRepository(openDB(t), slog.Default())
	key := domain.NewQuotaKey("203.0.113.7", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repository.Increment(ctx, key)
		}()
	}
	wg.Wait()

	count, err := repository.Count(ctx, key)
	req.NoError(err)
	req.LessOrEqual(count, 4)
	req.Positive(count)
}

func TestQuotaRepository_Records(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewQuotaRepository(openDB(t), slog.Default())
	key := domain.NewQuotaKey("203.0.113.7", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))

	_, err := repository.Increment(ctx, key)
	req.NoError(err)

	records, err := repository.Records()
	req.NoError(err)
	req.Equal([]domain.QuotaRecord{{Identity: "203.0.113.7", Day: "2024-03-09", Count: 1}}, records)
}

func TestQuotaRepository_CancelledContext(t *testing.T) {
	req := require.New(t)
	repository := NewQuotaRepository(openDB(t), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repository.Count(ctx, domain.NewQuotaKey("x", time.Now()))
	req.ErrorIs(err, context.Canceled)
}

func TestIdentityRepository_SaveAndLoad(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewIdentityRepository(openDB(t))

	_, found, err := repository.Load(ctx)
	req.NoError(err)
	req.False(found)

	req.NoError(repository.Save(ctx, "203.0.113.7"))
	identity, found, err := repository.Load(ctx)
	req.NoError(err)
	req.True(found)
	req.Equal(domain.Identity("203.0.113.7"), identity)
}
