// Package server implements the storage side of the sealdex protocol. The
// server is pure storage: it maps addresses to encrypted chain nodes and
// file ids to encrypted file blobs, holds no keys, and answers exact-match
// lookups only.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/sealdex/internal/keyValStore"
	"github.com/i5heu/sealdex/pkg/types"
)

// ErrNotFound is returned when no row exists for an address or file id.
var ErrNotFound = types.ErrNotFound

// ErrCollision is returned when a put would overwrite an existing row.
// Two honestly generated addresses collide with probability ~2^-256, so a
// collision means the client's randomness failed. The client must abort
// and must not retry with the same key.
var ErrCollision = types.ErrCollision

// Row key prefixes for the two tables. Both tables share one badger
// instance; the prefix keeps them disjoint.
var (
	prefixNode = []byte("n:")
	prefixFile = []byte("f:")
)

type Config struct {
	Paths         []string
	MinimumFreeGB int
	InMemory      bool
	Logger        *logrus.Logger
}

// Server owns the durable node and file tables.
type Server struct {
	kv  *keyValStore.KeyValStore
	log *logrus.Logger
}

func New(conf Config) (*Server, error) {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:            conf.Paths,
		MinimumFreeSpace: conf.MinimumFreeGB,
		InMemory:         conf.InMemory,
		Logger:           conf.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating KeyValStore: %w", err)
	}

	return &Server{
		kv:  kv,
		log: conf.Logger,
	}, nil
}

func nodeKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixNode...), addr[:]...)
}

func fileKey(id types.FileID) []byte {
	return append(append([]byte{}, prefixFile...), id[:]...)
}

// PutNode inserts one encrypted chain node. The row is durable when
// PutNode returns nil. Inserting at an occupied address fails with
// ErrCollision and leaves the existing row untouched.
func (s *Server) PutNode(ctx context.Context, addr types.Address, nonce types.Nonce, ciphertext []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value := types.EncodeNodeRecord(types.NodeRecord{Nonce: nonce, Ciphertext: ciphertext})
	err := s.kv.WriteIfAbsent(nodeKey(addr), value)
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyExists) {
			s.log.WithField("address", addr.String()).Error("node address collision")
			return ErrCollision
		}
		return fmt.Errorf("put node: %w", err)
	}
	return nil
}

// GetNode looks up one encrypted chain node by address.
func (s *Server) GetNode(ctx context.Context, addr types.Address) (types.Nonce, []byte, error) {
	if err := ctx.Err(); err != nil {
		return types.Nonce{}, nil, err
	}

	value, err := s.kv.Read(nodeKey(addr))
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return types.Nonce{}, nil, ErrNotFound
		}
		return types.Nonce{}, nil, fmt.Errorf("get node: %w", err)
	}

	rec, err := types.DecodeNodeRecord(value)
	if err != nil {
		return types.Nonce{}, nil, fmt.Errorf("get node: %w", err)
	}
	return rec.Nonce, rec.Ciphertext, nil
}

// PutFile inserts one encrypted file record, analogous to PutNode.
func (s *Server) PutFile(ctx context.Context, id types.FileID, rec types.FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.kv.WriteIfAbsent(fileKey(id), types.EncodeFileRecord(rec))
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyExists) {
			s.log.WithField("fileId", id.String()).Error("file id collision")
			return ErrCollision
		}
		return fmt.Errorf("put file: %w", err)
	}
	return nil
}

// GetFile looks up one encrypted file record by id.
func (s *Server) GetFile(ctx context.Context, id types.FileID) (types.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.FileRecord{}, err
	}

	value, err := s.kv.Read(fileKey(id))
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return types.FileRecord{}, ErrNotFound
		}
		return types.FileRecord{}, fmt.Errorf("get file: %w", err)
	}

	rec, err := types.DecodeFileRecord(value)
	if err != nil {
		return types.FileRecord{}, fmt.Errorf("get file: %w", err)
	}
	return rec, nil
}

// Stats reports row counts and approximate byte sizes of both tables.
// This enumeration leaks only cardinality and timing, which the threat
// model already permits.
type Stats struct {
	NodeCount uint64
	NodeBytes uint64
	FileCount uint64
	FileBytes uint64
}

func (s *Server) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var st Stats
	var err error
	st.NodeCount, st.NodeBytes, err = s.kv.CountPrefix(prefixNode)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	st.FileCount, st.FileBytes, err = s.kv.CountPrefix(prefixFile)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// RunGC triggers one round of value log garbage collection.
func (s *Server) RunGC() error {
	return s.kv.RunValueLogGC()
}

func (s *Server) Close() error {
	return s.kv.Close()
}
