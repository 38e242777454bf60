package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds how often a read-modify-write is retried when
// Badger reports a concurrent transaction touched the same keys.
const maxConflictRetries = 10

// Entity provides generic CRUD operations for any domain type.
type Entity[T any] struct {
	store   *Store
	prefix  string
	indexes []Index[T]
}

// Index defines a secondary index on an entity. Many entities may share a
// value; the entity id is appended to the index key so a prefix scan lists
// them.
type Index[T any] struct {
	name   string
	keyGen func(*T) []string
}

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{
		store:   s,
		prefix:  prefix,
		indexes: make([]Index[T], 0),
	}
}

// WithIndex adds a secondary index to the entity.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen})
	return e
}

func (e *Entity[T]) indexPrefix(name, value string) string {
	return e.prefix + "idx:" + name + ":" + value
}

func (e *Entity[T]) indexKey(idx Index[T], value, id string) []byte {
	return []byte(e.indexPrefix(idx.name, value) + ":" + id)
}

// Create creates a new entity with the given ID.
// Returns ErrAlreadyExists if an entity with this ID already exists.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		key := []byte(e.prefix + id)
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		return e.setIndexes(txn, id, entity)
	})
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) error {
		var err error
		entity, err = e.read(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// ListByIndex returns every entity whose index matches value.
// Entries whose primary record has vanished are skipped.
func (e *Entity[T]) ListByIndex(ctx context.Context, indexName, value string) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(e.indexPrefix(indexName, value) + ":")
	var result []*T

	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			// A value containing ':' would otherwise match a longer value's
			// keys; the remainder must be exactly an id.
			id := string(it.Item().Key()[len(prefix):])
			if strings.Contains(id, ":") {
				continue
			}

			entity, err := e.read(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			result = append(result, entity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update replaces an existing entity.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Update(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		old, err := e.read(txn, id)
		if err != nil {
			return err
		}
		return e.replace(txn, id, old, entity, data)
	})
}

// Mutate applies fn to the stored entity and writes the result back inside
// one transaction. It retries when a concurrent writer touched the record.
func (e *Entity[T]) Mutate(ctx context.Context, id string, fn func(*T) error) (*T, error) {
	var result *T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := e.store.db.Update(func(txn *badger.Txn) error {
			old, err := e.read(txn, id)
			if err != nil {
				return err
			}
			updated, err := e.read(txn, id)
			if err != nil {
				return err
			}
			if err := fn(updated); err != nil {
				return err
			}

			data, err := json.Marshal(updated)
			if err != nil {
				return fmt.Errorf("failed to marshal entity: %w", err)
			}
			result = updated
			return e.replace(txn, id, old, updated, data)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// Delete deletes an entity by ID and returns what was removed.
// This operation is idempotent: a missing entity yields (nil, nil).
func (e *Entity[T]) Delete(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var removed *T
	err := e.store.db.Update(func(txn *badger.Txn) error {
		entity, err := e.read(txn, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := e.deleteIndexes(txn, id, entity); err != nil {
			return err
		}
		if err := txn.Delete([]byte(e.prefix + id)); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		removed = entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// List returns an iterator over all entities.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		prefix := []byte(e.prefix)
		err := e.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}

				// Skip index keys
				if strings.HasPrefix(string(it.Item().Key()[len(prefix):]), "idx:") {
					continue
				}

				var entity T
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				}); err != nil {
					return fmt.Errorf("failed to unmarshal entity: %w", err)
				}

				if !yield(&entity, nil) {
					return errStopIteration
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(nil, err)
		}
	}
}

var errStopIteration = errors.New("iteration stopped")

func (e *Entity[T]) read(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get([]byte(e.prefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var entity T
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &entity); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (e *Entity[T]) replace(txn *badger.Txn, id string, old, entity *T, data []byte) error {
	if err := e.deleteIndexes(txn, id, old); err != nil {
		return err
	}
	if err := txn.Set([]byte(e.prefix+id), data); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return e.setIndexes(txn, id, entity)
}

func (e *Entity[T]) setIndexes(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			if err := txn.Set(e.indexKey(idx, value, id), []byte(id)); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) deleteIndexes(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			if err := txn.Delete(e.indexKey(idx, value, id)); err != nil {
				return fmt.Errorf("failed to delete index key: %w", err)
			}
		}
	}
	return nil
}
