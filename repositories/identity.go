package repositories

import (
	"context"
	"fmt"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/dgraph-io/badger/v4"
)

const identityKey = "identity:self"

// IdentityRepository keeps the resolved identity of this installation so that
// restarts reuse it instead of asking the network again.
type IdentityRepository struct {
	db *badger.DB
}

func NewIdentityRepository(db *badger.DB) IdentityRepository {
	return IdentityRepository{db: db}
}

// Load returns the stored identity and false when none was saved yet.
func (r IdentityRepository) Load(ctx context.Context) (domain.Identity, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var identity domain.Identity
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(identityKey))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			identity = domain.Identity(value)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load identity: %w", err)
	}
	return identity, identity != "", nil
}

func (r IdentityRepository) Save(ctx context.Context, identity domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(identityKey), []byte(identity))
	})
}
