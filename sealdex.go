// Package sealdex binds a forward-private searchable-encryption client to
// a local storage server in one process. The client owns every secret;
// the server sees only uniform random addresses and ciphertext.
package sealdex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/sealdex/pkg/client"
	"github.com/i5heu/sealdex/pkg/server"
	"github.com/i5heu/sealdex/pkg/types"
)

type Sealdex struct {
	srv    *server.Server
	cl     *client.Client
	config Config

	gcStop    chan struct{}
	closeOnce sync.Once
}

type Config struct {
	// Paths contains server data directories. Currently only Paths[0] is used.
	Paths []string
	// StatePath is the client head-table file.
	StatePath string
	// MinimumFreeGB is a free-space threshold for opening the store.
	MinimumFreeGB int
	// InMemory keeps the server store in RAM, for tests and benchmarks.
	InMemory bool
	// GarbageCollectionInterval is how often the value log is collected.
	// Zero disables the collector.
	GarbageCollectionInterval time.Duration
	// Logger is an optional structured logger shared by both halves.
	Logger *logrus.Logger
}

func New(conf Config) (*Sealdex, error) {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}

	srv, err := server.New(server.Config{
		Paths:         conf.Paths,
		MinimumFreeGB: conf.MinimumFreeGB,
		InMemory:      conf.InMemory,
		Logger:        conf.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating server: %w", err)
	}

	cl, err := client.New(srv, client.Config{
		StatePath: conf.StatePath,
		Logger:    conf.Logger,
	})
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("error creating client: %w", err)
	}

	sx := &Sealdex{
		srv:    srv,
		cl:     cl,
		config: conf,
		gcStop: make(chan struct{}),
	}

	if conf.GarbageCollectionInterval > 0 {
		go sx.runGarbageCollection()
	}

	return sx, nil
}

func (sx *Sealdex) runGarbageCollection() {
	ticker := time.NewTicker(sx.config.GarbageCollectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sx.gcStop:
			return
		case <-ticker.C:
			if err := sx.srv.RunGC(); err != nil {
				sx.config.Logger.WithError(err).Warn("value log garbage collection failed")
			}
		}
	}
}

// Update indexes docID under keyword. fileKey may be the zero key when
// the document has no stored blob.
func (sx *Sealdex) Update(ctx context.Context, keyword []byte, docID types.FileID, fileKey types.Key) error {
	return sx.cl.Update(ctx, keyword, docID, fileKey)
}

// Search returns the records indexed under keyword, newest first.
func (sx *Sealdex) Search(ctx context.Context, keyword []byte) ([]client.Record, error) {
	return sx.cl.Search(ctx, keyword)
}

// UploadFile seals and stores a file and indexes it under keyword.
func (sx *Sealdex) UploadFile(ctx context.Context, keyword []byte, fileBytes []byte, fileName string) (types.FileID, error) {
	return sx.cl.UploadFile(ctx, keyword, fileBytes, fileName)
}

// RetrieveFile fetches and opens a stored file.
func (sx *Sealdex) RetrieveFile(ctx context.Context, id types.FileID, fileKey types.Key) (string, []byte, error) {
	return sx.cl.RetrieveFile(ctx, id, fileKey)
}

// Stats reports the server's table statistics.
func (sx *Sealdex) Stats(ctx context.Context) (server.Stats, error) {
	return sx.srv.Stats(ctx)
}

// Server exposes the storage half, mainly for serving it over the carrier.
func (sx *Sealdex) Server() *server.Server {
	return sx.srv
}

// Close is idempotent and safe to call multiple times.
func (sx *Sealdex) Close() error {
	var closeErr error
	sx.closeOnce.Do(func() {
		close(sx.gcStop)
		closeErr = sx.srv.Close()
	})
	return closeErr
}
