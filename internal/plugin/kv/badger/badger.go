package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/adrianwedd/ltm-service/internal/config"
	registrykv "github.com/adrianwedd/ltm-service/internal/registry/kv"
)

func init() {
	registrykv.Register(registrykv.Plugin{
		Name:   "badger",
		Loader: load,
	})
}

func load(ctx context.Context) (registrykv.KeyValueStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.BadgerPath == "" {
		return nil, fmt.Errorf("badger: LTM_BADGER_PATH is required")
	}
	opts := badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", cfg.BadgerPath, err)
	}
	return &Store{db: db}, nil
}

// Store is the BadgerDB-backed key-value store. Keys are namespaced as
// <bucket>/<key>.
type Store struct {
	db *badger.DB
}

func (s *Store) Name() string { return "badger" }

func storeKey(bucket, key string) []byte {
	return []byte(bucket + "/" + key)
}

func (s *Store) Put(_ context.Context, bucket, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(bucket, key), value)
	})
}

func (s *Store) Get(_ context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(bucket, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, registrykv.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Delete(_ context.Context, bucket, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(bucket, key))
	})
}

func (s *Store) List(_ context.Context, bucket string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	prefix := []byte(bucket + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())[len(prefix):]
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ registrykv.KeyValueStore = (*Store)(nil)
