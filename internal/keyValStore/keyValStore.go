package keyValStore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

var (
	// ErrKeyNotFound is returned by Read when the key has no row.
	ErrKeyNotFound = errors.New("keyValStore: key not found")

	// ErrKeyExists is returned by WriteIfAbsent when the key already
	// holds a row.
	ErrKeyExists = errors.New("keyValStore: key already exists")
)

type StoreConfig struct {
	Paths            []string // absolute path, at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	InMemory         bool     // keep everything in RAM, for tests and benchmarks
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	log = config.Logger

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
	}
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	// A row must be durable before the caller is acknowledged, so writes
	// are flushed synchronously.
	opts.SyncWrites = !config.InMemory

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %v: %w", config.Paths, err)
	}

	if !config.InMemory {
		if err := displayDiskUsage(config.Paths); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &KeyValStore{
		config:   config,
		badgerDB: db,
	}, nil
}

func (config *StoreConfig) checkConfig() error {
	if config.InMemory {
		return nil
	}
	if len(config.Paths) == 0 {
		return fmt.Errorf("no storage path configured")
	}
	return checkFreeSpace(config.Paths, config.MinimumFreeSpace)
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	atomic.AddUint64(&k.writeCounter, 1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

// WriteIfAbsent inserts a row only if the key holds none. The existence
// check and the insert run inside one transaction, so a concurrent writer
// can never slip a row in between them.
func (k *KeyValStore) WriteIfAbsent(key []byte, content []byte) error {
	atomic.AddUint64(&k.writeCounter, 1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrKeyExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, content)
	})
	if err != nil {
		if errors.Is(err, ErrKeyExists) {
			return ErrKeyExists
		}
		return fmt.Errorf("error writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&k.readCounter, 1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("error reading key %s: %w", hex.EncodeToString(key), err)
	}
	return value, nil
}

// will return all keys and values with the given prefix
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([][][]byte, error) {
	var keysAndValues [][][]byte
	atomic.AddUint64(&k.readCounter, 1)
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keysAndValues = append(keysAndValues, [][]byte{key, value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating prefix %s: %w", hex.EncodeToString(prefix), err)
	}
	return keysAndValues, nil
}

// CountPrefix returns the number of rows under the prefix and the total
// bytes of their keys and values. Enumeration leaks only cardinality,
// which the threat model already concedes.
func (k *KeyValStore) CountPrefix(prefix []byte) (count uint64, bytes uint64, err error) {
	atomic.AddUint64(&k.readCounter, 1)
	err = k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			count++
			bytes += uint64(len(item.Key())) + uint64(item.ValueSize())
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("error counting prefix %s: %w", hex.EncodeToString(prefix), err)
	}
	return count, bytes, nil
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		log.WithError(err).Warn("clean before close failed")
	}
	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}

	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU()) // The parameter is the number of concurrent compactions
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	} else {
		log.Info("DB Flattened")
	}

	// clean badgerDB
	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil {
		if err != badger.ErrNoRewrite {
			return fmt.Errorf("error cleaning db: %w", err)
		}
	}

	return nil
}

// RunValueLogGC triggers one round of value log garbage collection.
// badger.ErrNoRewrite means there was nothing to collect.
func (k *KeyValStore) RunValueLogGC() error {
	if k.config.InMemory {
		return nil
	}
	err := k.badgerDB.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error running value log gc: %w", err)
	}
	return nil
}
