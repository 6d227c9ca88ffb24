package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

const (
	quotaPrefix = "quota:"
	// Day buckets outlive their day by a margin so late readers still see them.
	quotaTTL        = 48 * time.Hour
	maxTxnConflicts = 5
)

// QuotaRepository persists per-identity, per-day message counters in BadgerDB.
// Keys are "quota:{identity}_{YYYY-MM-DD}", values are CBOR-encoded QuotaRecord.
type QuotaRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewQuotaRepository(db *badger.DB, log *slog.Logger) QuotaRepository {
	return QuotaRepository{db: db, log: log}
}

func quotaKey(key domain.QuotaKey) []byte {
	return []byte(quotaPrefix + key.String())
}

// Count returns the counter for key, 0 when absent.
func (q QuotaRepository) Count(ctx context.Context, key domain.QuotaKey) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	err := q.db.View(func(txn *badger.Txn) error {
		record, err := readQuota(txn, key)
		if err != nil {
			return err
		}
		count = record.Count
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", errors.ErrQuotaStore, key, err)
	}
	return count, nil
}

// Increment adds one to the counter for key and returns the new value.
// Concurrent increments from other processes are retried on conflict.
func (q QuotaRepository) Increment(ctx context.Context, key domain.QuotaKey) (int, error) {
	var count int
	var err error
	for attempt := 0; attempt < maxTxnConflicts; attempt++ {
		if err = ctx.Err(); err != nil {
			return 0, err
		}
		err = q.db.Update(func(txn *badger.Txn) error {
			record, err := readQuota(txn, key)
			if err != nil {
				return err
			}
			record.Identity = key.Identity
			record.Day = key.Day
			record.Count++
			value, err := cbor.Marshal(record)
			if err != nil {
				return err
			}
			count = record.Count
			return txn.SetEntry(badger.NewEntry(quotaKey(key), value).WithTTL(quotaTTL))
		})
		if errors.Is(err, badger.ErrConflict) {
			q.log.Debug("Quota increment conflict, retrying", "key", key.String(), "attempt", attempt)
			continue
		}
		break
	}
	if err != nil {
		return 0, fmt.Errorf("%w: increment %s: %v", errors.ErrQuotaStore, key, err)
	}
	return count, nil
}

// Reset removes the counter for key. Resetting an absent key is not an error.
func (q QuotaRepository) Reset(ctx context.Context, key domain.QuotaKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(quotaKey(key))
	})
	if err != nil {
		return fmt.Errorf("%w: reset %s: %v", errors.ErrQuotaStore, key, err)
	}
	return nil
}

// Records lists every live counter, ordered by key.
func (q QuotaRepository) Records() ([]domain.QuotaRecord, error) {
	var records []domain.QuotaRecord
	err := q.db.View(func(txn *badger.Txn) error {
		prefix := []byte(quotaPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record domain.QuotaRecord
			err := it.Item().Value(func(value []byte) error {
				return cbor.Unmarshal(value, &record)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", strings.TrimPrefix(string(it.Item().Key()), quotaPrefix), err)
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

func readQuota(txn *badger.Txn, key domain.QuotaKey) (domain.QuotaRecord, error) {
	var record domain.QuotaRecord
	item, err := txn.Get(quotaKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record, nil
	}
	if err != nil {
		return record, err
	}
	err = item.Value(func(value []byte) error {
		return cbor.Unmarshal(value, &record)
	})
	return record, err
}
