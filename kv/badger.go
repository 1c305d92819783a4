package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is MemoryStore's durable sibling: the same Store contract,
// backed by an embedded github.com/dgraph-io/badger/v4 database instead of
// an in-process map, for single-node deployments that want their
// confirmation/authority records to survive a restart without standing up a
// separate Redis.
//
// Hashes and sets have no native badger representation, so each field/member
// is stored under its own prefixed key (hPrefix+key+"\x00"+field,
// sPrefix+key+"\x00"+member) and reconstructed by prefix scan on read.
// Pub/sub has no durable meaning for an embedded single-process store, so it
// reuses the same in-memory fan-out MemoryStore uses.
type BadgerStore struct {
	db *badger.DB

	subMu sync.Mutex
	subs  map[string][]*memSubscription
}

const (
	kPrefix = "k\x00"
	hPrefix = "h\x00"
	sPrefix = "s\x00"
)

// NewBadgerStore opens (creating if absent) a badger database rooted at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger db at %s: %w", dir, err)
	}
	return &BadgerStore{db: db, subs: make(map[string][]*memSubscription)}, nil
}

func (b *BadgerStore) Ping(_ context.Context) error {
	return nil
}

func (b *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	return b.get(kPrefix + key)
}

func (b *BadgerStore) get(fullKey string) (string, bool, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fullKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("kv: get %s: %w", fullKey, err)
	}
	return string(val), val != nil, nil
}

func (b *BadgerStore) Set(_ context.Context, key, value string) error {
	return b.set(kPrefix+key, value)
}

func (b *BadgerStore) set(fullKey, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fullKey), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("kv: set %s: %w", fullKey, err)
	}
	return nil
}

func (b *BadgerStore) Del(_ context.Context, key string) error {
	return b.del(kPrefix + key)
}

func (b *BadgerStore) del(fullKey string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(fullKey))
	})
	if err != nil {
		return fmt.Errorf("kv: del %s: %w", fullKey, err)
	}
	return nil
}

func (b *BadgerStore) HSet(_ context.Context, key, field, value string) error {
	return b.set(hPrefix+key+"\x00"+field, value)
}

func (b *BadgerStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	return b.get(hPrefix + key + "\x00" + field)
}

func (b *BadgerStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	prefix := []byte(hPrefix + key + "\x00")
	out := make(map[string]string)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			field := string(item.KeyCopy(nil)[len(prefix):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[field] = string(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv: hgetall %s: %w", key, err)
	}
	return out, nil
}

func (b *BadgerStore) HDel(_ context.Context, key, field string) error {
	return b.del(hPrefix + key + "\x00" + field)
}

func (b *BadgerStore) SAdd(_ context.Context, key, member string) error {
	return b.set(sPrefix+key+"\x00"+member, "")
}

func (b *BadgerStore) SRem(_ context.Context, key, member string) error {
	return b.del(sPrefix + key + "\x00" + member)
}

func (b *BadgerStore) SMembers(_ context.Context, key string) ([]string, error) {
	prefix := []byte(sPrefix + key + "\x00")
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(it.Item().KeyCopy(nil)[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv: smembers %s: %w", key, err)
	}
	return out, nil
}

// Publish/Subscribe have no durable badger representation; an embedded
// single-process store fans out in-memory exactly like MemoryStore does.
func (b *BadgerStore) Publish(_ context.Context, channel, message string) error {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- message:
		default:
		}
	}
	return nil
}

func (b *BadgerStore) Subscribe(_ context.Context, channel string) (Subscription, error) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	sub := &memSubscription{ch: make(chan string, 64)}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

var _ Store = (*BadgerStore)(nil)
