package badgerstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"

	"github.com/libraryledger/ledger-server/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// entity provides generic CRUD for one record type inside a caller-owned transaction.
type entity[T any] struct {
	prefix  string
	idOf    func(*T) string
	indexes []index[T]
}

// index is a secondary index. Unique indexes map key to id. Non-unique
// indexes store one marker per (key, id) and are read by prefix scan.
type index[T any] struct {
	name   string
	unique bool
	keyGen func(*T) []string
}

func newEntity[T any](prefix string, idOf func(*T) string) *entity[T] {
	return &entity[T]{prefix: prefix, idOf: idOf}
}

// withUnique adds a unique index. A record may emit no keys, in which case
// it is not indexed at all.
func (e *entity[T]) withUnique(name string, keyGen func(*T) []string) *entity[T] {
	e.indexes = append(e.indexes, index[T]{name: name, unique: true, keyGen: keyGen})
	return e
}

func (e *entity[T]) withIndex(name string, keyGen func(*T) []string) *entity[T] {
	e.indexes = append(e.indexes, index[T]{name: name, keyGen: keyGen})
	return e
}

func (e *entity[T]) key(id string) []byte {
	return []byte(e.prefix + id)
}

func (e *entity[T]) indexPrefix(name, value string) string {
	return e.prefix + "idx:" + name + ":" + value
}

func (e *entity[T]) indexKey(idx index[T], value, id string) []byte {
	if idx.unique {
		return []byte(e.indexPrefix(idx.name, value))
	}
	return []byte(e.indexPrefix(idx.name, value) + "\x00" + id)
}

// create stores v. Returns ErrAlreadyExists on a duplicate id or unique key.
func (e *entity[T]) create(txn *badger.Txn, v *T) error {
	id := e.idOf(v)
	if _, err := txn.Get(e.key(id)); err == nil {
		return store.ErrAlreadyExists.WithMessage("%s%s already exists", e.prefix, id)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("check existing key: %w", err)
	}
	if err := e.checkUnique(txn, v, nil); err != nil {
		return err
	}
	return e.write(txn, v)
}

// get loads the record with id.
func (e *entity[T]) get(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get(e.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	var v T
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
		return nil, fmt.Errorf("unmarshal %s%s: %w", e.prefix, id, err)
	}
	return &v, nil
}

// getByIndex returns the first record whose index key equals value.
func (e *entity[T]) getByIndex(txn *badger.Txn, name, value string) (*T, error) {
	idx, ok := e.lookupIndex(name)
	if !ok {
		return nil, fmt.Errorf("unknown index %s", name)
	}
	if idx.unique {
		item, err := txn.Get([]byte(e.indexPrefix(name, value)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		return e.get(txn, string(id))
	}

	ids := e.idsByIndex(txn, name, value)
	if len(ids) == 0 {
		return nil, store.ErrNotFound
	}
	return e.get(txn, ids[0])
}

// idsByIndex collects ids under a non-unique index key. The iterator is
// closed before returning so callers may open another.
func (e *entity[T]) idsByIndex(txn *badger.Txn, name, value string) []string {
	prefix := []byte(e.indexPrefix(name, value) + "\x00")
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, string(it.Item().Key()[len(prefix):]))
	}
	return ids
}

// update replaces an existing record and moves its index keys.
func (e *entity[T]) update(txn *badger.Txn, v *T) error {
	old, err := e.get(txn, e.idOf(v))
	if err != nil {
		return err
	}
	if err := e.checkUnique(txn, v, old); err != nil {
		return err
	}
	if err := e.deleteIndexes(txn, old); err != nil {
		return err
	}
	return e.write(txn, v)
}

// delete removes the record and its index keys. Returns ErrNotFound when absent.
func (e *entity[T]) delete(txn *badger.Txn, id string) error {
	old, err := e.get(txn, id)
	if err != nil {
		return err
	}
	if err := e.deleteIndexes(txn, old); err != nil {
		return err
	}
	if err := txn.Delete(e.key(id)); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// all decodes every record under the prefix, skipping index keys.
func (e *entity[T]) all(txn *badger.Txn) ([]*T, error) {
	prefix := []byte(e.prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var out []*T
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if strings.HasPrefix(string(item.Key()[len(prefix):]), "idx:") {
			continue
		}
		var v T
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", item.Key(), err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func (e *entity[T]) write(txn *badger.Txn, v *T) error {
	id := e.idOf(v)
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s%s: %w", e.prefix, id, err)
	}
	if err := txn.Set(e.key(id), data); err != nil {
		return fmt.Errorf("set key: %w", err)
	}
	for _, idx := range e.indexes {
		for _, k := range idx.keyGen(v) {
			if err := txn.Set(e.indexKey(idx, k, id), []byte(id)); err != nil {
				return fmt.Errorf("set index %s: %w", idx.name, err)
			}
		}
	}
	return nil
}

// checkUnique fails when v would take a unique key held by another record.
// Keys v already owned as old are skipped.
func (e *entity[T]) checkUnique(txn *badger.Txn, v, old *T) error {
	id := e.idOf(v)
	for _, idx := range e.indexes {
		if !idx.unique {
			continue
		}
		for _, k := range idx.keyGen(v) {
			item, err := txn.Get(e.indexKey(idx, k, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("check index %s: %w", idx.name, err)
			}
			owner, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if old != nil && string(owner) == id {
				continue
			}
			return store.ErrAlreadyExists.WithMessage("%s conflict on %q", idx.name, k)
		}
	}
	return nil
}

func (e *entity[T]) deleteIndexes(txn *badger.Txn, v *T) error {
	id := e.idOf(v)
	for _, idx := range e.indexes {
		for _, k := range idx.keyGen(v) {
			if err := txn.Delete(e.indexKey(idx, k, id)); err != nil {
				return fmt.Errorf("delete index %s: %w", idx.name, err)
			}
		}
	}
	return nil
}

func (e *entity[T]) lookupIndex(name string) (index[T], bool) {
	for _, idx := range e.indexes {
		if idx.name == name {
			return idx, true
		}
	}
	return index[T]{}, false
}
