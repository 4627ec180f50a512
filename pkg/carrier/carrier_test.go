package carrier_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/sealdex/pkg/carrier"
	"github.com/i5heu/sealdex/pkg/client"
	"github.com/i5heu/sealdex/pkg/server"
	"github.com/i5heu/sealdex/pkg/types"
)

// a remote store is a drop-in replacement for the in-process server
var _ client.Store = (*carrier.RemoteStore)(nil)
var _ carrier.Store = (*server.Server)(nil)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// startServer brings up an in-memory sealdex server on a loopback port
// and returns a connected remote store.
func startServer(t *testing.T) *carrier.RemoteStore {
	t.Helper()

	srv, err := server.New(server.Config{InMemory: true, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go carrier.Serve(ctx, ln, srv, quietLogger())

	store, err := carrier.Dial(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testAddress(b byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestRemoteNodeRoundTrip(t *testing.T) {
	store := startServer(t)
	ctx := context.Background()

	addr := testAddress(0x11)
	nonce := types.Nonce{1, 2, 3}
	ciphertext := []byte("sealed over the wire")

	if err := store.PutNode(ctx, addr, nonce, ciphertext); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	gotNonce, gotCiphertext, err := store.GetNode(ctx, addr)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if gotNonce != nonce {
		t.Fatalf("nonce mismatch")
	}
	if !bytes.Equal(gotCiphertext, ciphertext) {
		t.Fatalf("ciphertext mismatch")
	}
}

func TestRemoteErrorMapping(t *testing.T) {
	store := startServer(t)
	ctx := context.Background()

	_, _, err := store.GetNode(ctx, testAddress(0x22))
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	addr := testAddress(0x33)
	if err := store.PutNode(ctx, addr, types.Nonce{}, []byte("x")); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}
	err = store.PutNode(ctx, addr, types.Nonce{}, []byte("y"))
	if !errors.Is(err, types.ErrCollision) {
		t.Fatalf("expected ErrCollision, got %v", err)
	}

	_, err = store.GetFile(ctx, types.FileID{0x44})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for file, got %v", err)
	}
}

func TestRemoteFileRoundTrip(t *testing.T) {
	store := startServer(t)
	ctx := context.Background()

	id := types.FileID{0x55}
	rec := types.FileRecord{
		DataNonce:  types.Nonce{5},
		NameNonce:  types.Nonce{6},
		Ciphertext: bytes.Repeat([]byte{0xAB}, 4096),
		SealedName: []byte("sealed name"),
	}

	if err := store.PutFile(ctx, id, rec); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	got, err := store.GetFile(ctx, id)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if !bytes.Equal(got.Ciphertext, rec.Ciphertext) || !bytes.Equal(got.SealedName, rec.SealedName) {
		t.Fatalf("record mismatch")
	}
}

func TestRemoteStats(t *testing.T) {
	store := startServer(t)
	ctx := context.Background()

	if err := store.PutNode(ctx, testAddress(0x66), types.Nonce{}, []byte("n")); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.NodeCount != 1 {
		t.Fatalf("expected 1 node, got %d", stats.NodeCount)
	}
}

// TestClientOverCarrier runs the full protocol through the wire: update,
// search, file round trip, all against a server behind TCP.
func TestClientOverCarrier(t *testing.T) {
	store := startServer(t)
	ctx := context.Background()

	cl, err := client.New(store, client.Config{
		StatePath: filepath.Join(t.TempDir(), "state.json"),
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	keyword := []byte("remote")
	id, err := cl.UploadFile(ctx, keyword, []byte("file over tcp"), "wire.txt")
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}

	var docA types.FileID
	docA[0] = 0xA0
	if err := cl.Update(ctx, keyword, docA, types.Key{}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	records, err := cl.Search(ctx, keyword)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].DocID != docA {
		t.Fatalf("newest-first order violated")
	}
	if records[1].DocID != id {
		t.Fatalf("expected uploaded file id at position 1")
	}

	name, data, err := cl.RetrieveFile(ctx, records[1].DocID, records[1].FileKey)
	if err != nil {
		t.Fatalf("RetrieveFile failed: %v", err)
	}
	if name != "wire.txt" || !bytes.Equal(data, []byte("file over tcp")) {
		t.Fatalf("file round trip mismatch")
	}
}
