// Package client implements the key-owning side of the sealdex protocol.
// The client holds the per-keyword head table, prepends encrypted nodes on
// update, walks chains on search, and seals files before they ever reach
// the server.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/sealdex/pkg/crypto"
	"github.com/i5heu/sealdex/pkg/types"
)

var (
	// ErrChainBroken is returned by Search when a chain link points at an
	// address the server has no row for. Records decrypted before the
	// break are still returned.
	ErrChainBroken = errors.New("client: chain broken")

	// ErrChainCorrupt is returned by Search when a node fails AEAD
	// verification. Records decrypted before the corrupt node are still
	// returned.
	ErrChainCorrupt = errors.New("client: chain corrupt")

	// ErrState is returned when the local state file cannot be read or
	// parsed. Recovery needs operator intervention; without the head
	// table every chain is unreachable.
	ErrState = errors.New("client: bad local state")
)

// Store is the server surface the client depends on. The in-process
// server and the carrier's remote store both satisfy it.
type Store interface {
	PutNode(ctx context.Context, addr types.Address, nonce types.Nonce, ciphertext []byte) error
	GetNode(ctx context.Context, addr types.Address) (types.Nonce, []byte, error)
	PutFile(ctx context.Context, id types.FileID, rec types.FileRecord) error
	GetFile(ctx context.Context, id types.FileID) (types.FileRecord, error)
}

// head is the client-private entry pointer of one keyword chain.
type head struct {
	Key  types.Key
	Addr types.Address
}

type Config struct {
	// StatePath is the file the head table is persisted to. It is written
	// atomically on every update.
	StatePath string
	Logger    *logrus.Logger
}

type Client struct {
	mu    sync.RWMutex
	heads map[string]head

	store     Store
	statePath string
	log       *logrus.Logger
}

// New builds a client over the given store and loads the head table from
// conf.StatePath if it exists.
func New(store Store, conf Config) (*Client, error) {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	if conf.StatePath == "" {
		return nil, fmt.Errorf("%w: no state path configured", ErrState)
	}

	c := &Client{
		heads:     make(map[string]head),
		store:     store,
		statePath: conf.StatePath,
		log:       conf.Logger,
	}

	if err := c.loadState(); err != nil {
		return nil, err
	}
	return c, nil
}

// Record is one decrypted chain entry as returned by Search.
type Record struct {
	DocID   types.FileID
	FileKey types.Key
}

// Update prepends a document id to the keyword's chain. fileKey is the
// per-file key embedded in the node; callers indexing an id with no
// stored blob pass the zero key. The head rotates only after the server
// has acknowledged the node, so a crash mid-update leaves at worst one
// orphan node and never an inconsistent chain.
func (c *Client) Update(ctx context.Context, keyword []byte, docID types.FileID, fileKey types.Key) error {
	start := time.Now()

	newKey, err := crypto.NewKey()
	if err != nil {
		return err
	}
	nonce, err := crypto.NewNonce()
	if err != nil {
		return err
	}
	newAddr := crypto.DeriveAddress(newKey)

	c.mu.Lock()
	defer c.mu.Unlock()

	node := types.Node{
		DocID:   docID,
		FileKey: fileKey,
	}
	if prev, ok := c.heads[string(keyword)]; ok {
		node.HasPrev = true
		node.PrevKey = prev.Key
		node.PrevAddr = prev.Addr
	}

	ciphertext, err := crypto.Seal(newKey, nonce, node.Encode(), newAddr[:])
	if err != nil {
		return fmt.Errorf("seal node: %w", err)
	}

	if err := c.store.PutNode(ctx, newAddr, nonce, ciphertext); err != nil {
		return fmt.Errorf("store node: %w", err)
	}

	c.heads[string(keyword)] = head{Key: newKey, Addr: newAddr}
	if err := c.saveStateLocked(); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"address":  newAddr.String(),
		"docId":    docID.String(),
		"duration": time.Since(start),
	}).Debug("chain head rotated")
	return nil
}

// Search walks the keyword's chain from its head and returns the
// decrypted records newest-first. A keyword that was never updated yields
// an empty result without touching the server. On a broken or corrupt
// chain the records decrypted so far are returned together with
// ErrChainBroken or ErrChainCorrupt.
func (c *Client) Search(ctx context.Context, keyword []byte) ([]Record, error) {
	start := time.Now()

	c.mu.RLock()
	h, ok := c.heads[string(keyword)]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var records []Record
	key, addr := h.Key, h.Addr
	for {
		nonce, ciphertext, err := c.store.GetNode(ctx, addr)
		if err != nil {
			if isNotFound(err) {
				return records, fmt.Errorf("%w: no node at %s", ErrChainBroken, addr.String())
			}
			return records, fmt.Errorf("fetch node: %w", err)
		}

		plaintext, err := crypto.Open(key, nonce, ciphertext, addr[:])
		if err != nil {
			return records, fmt.Errorf("%w: node at %s", ErrChainCorrupt, addr.String())
		}

		node, err := types.DecodeNode(plaintext)
		if err != nil {
			return records, fmt.Errorf("%w: %v", ErrChainCorrupt, err)
		}

		records = append(records, Record{DocID: node.DocID, FileKey: node.FileKey})

		if !node.HasPrev {
			c.log.WithFields(logrus.Fields{
				"records":  len(records),
				"duration": time.Since(start),
			}).Debug("chain walk finished")
			return records, nil
		}
		key, addr = node.PrevKey, node.PrevAddr
	}
}

// nameLabel is appended to the file id to domain-separate the sealed
// filename from the sealed file bytes.
var nameLabel = []byte("name")

// UploadFile seals the file and its name under a fresh per-file key,
// stores the blob, and indexes the new file id under the keyword. The
// file key lives only inside the chain node, so the record is recoverable
// only through a successful search.
func (c *Client) UploadFile(ctx context.Context, keyword []byte, fileBytes []byte, fileName string) (types.FileID, error) {
	fileKey, err := crypto.NewKey()
	if err != nil {
		return types.FileID{}, err
	}
	fileID, err := crypto.NewFileID()
	if err != nil {
		return types.FileID{}, err
	}
	dataNonce, err := crypto.NewNonce()
	if err != nil {
		return types.FileID{}, err
	}
	nameNonce, err := crypto.NewNonce()
	if err != nil {
		return types.FileID{}, err
	}

	ciphertext, err := crypto.Seal(fileKey, dataNonce, fileBytes, fileID[:])
	if err != nil {
		return types.FileID{}, fmt.Errorf("seal file: %w", err)
	}
	sealedName, err := crypto.Seal(fileKey, nameNonce, []byte(fileName), append(fileID[:], nameLabel...))
	if err != nil {
		return types.FileID{}, fmt.Errorf("seal file name: %w", err)
	}

	rec := types.FileRecord{
		DataNonce:  dataNonce,
		NameNonce:  nameNonce,
		Ciphertext: ciphertext,
		SealedName: sealedName,
	}
	if err := c.store.PutFile(ctx, fileID, rec); err != nil {
		return types.FileID{}, fmt.Errorf("store file: %w", err)
	}

	if err := c.Update(ctx, keyword, fileID, fileKey); err != nil {
		return types.FileID{}, err
	}
	return fileID, nil
}

// RetrieveFile fetches a file record and opens it under the key recovered
// from a search.
func (c *Client) RetrieveFile(ctx context.Context, id types.FileID, fileKey types.Key) (string, []byte, error) {
	rec, err := c.store.GetFile(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("fetch file: %w", err)
	}

	fileBytes, err := crypto.Open(fileKey, rec.DataNonce, rec.Ciphertext, id[:])
	if err != nil {
		return "", nil, fmt.Errorf("open file %s: %w", id.String(), err)
	}
	name, err := crypto.Open(fileKey, rec.NameNonce, rec.SealedName, append(id[:], nameLabel...))
	if err != nil {
		return "", nil, fmt.Errorf("open file name %s: %w", id.String(), err)
	}
	return string(name), fileBytes, nil
}

// isNotFound matches the shared not-found sentinel every Store
// implementation returns.
func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
