package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/sealdex/pkg/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	srv, err := New(Config{InMemory: true, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func testAddress(b byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestPutGetNode(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	addr := testAddress(0x01)
	nonce := types.Nonce{9, 8, 7}
	ciphertext := []byte("sealed node")

	if err := srv.PutNode(ctx, addr, nonce, ciphertext); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	gotNonce, gotCiphertext, err := srv.GetNode(ctx, addr)
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

func TestGetNodeNotFound(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.GetNode(context.Background(), testAddress(0xEE))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutNodeCollision(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	addr := testAddress(0x02)
	if err := srv.PutNode(ctx, addr, types.Nonce{}, []byte("first")); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	err := srv.PutNode(ctx, addr, types.Nonce{}, []byte("second"))
	if !errors.Is(err, ErrCollision) {
		t.Fatalf("expected ErrCollision, got %v", err)
	}

	// the original row must be intact
	_, ciphertext, err := srv.GetNode(ctx, addr)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if !bytes.Equal(ciphertext, []byte("first")) {
		t.Fatalf("collision must not overwrite, got %q", ciphertext)
	}
}

func TestPutGetFile(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	id := types.FileID{0xAB, 0xCD}
	rec := types.FileRecord{
		DataNonce:  types.Nonce{1},
		NameNonce:  types.Nonce{2},
		Ciphertext: []byte("sealed bytes"),
		SealedName: []byte("sealed name"),
	}

	if err := srv.PutFile(ctx, id, rec); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	got, err := srv.GetFile(ctx, id)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if got.DataNonce != rec.DataNonce || got.NameNonce != rec.NameNonce {
		t.Fatalf("nonce mismatch")
	}
	if !bytes.Equal(got.Ciphertext, rec.Ciphertext) || !bytes.Equal(got.SealedName, rec.SealedName) {
		t.Fatalf("record mismatch")
	}

	if err := srv.PutFile(ctx, id, rec); !errors.Is(err, ErrCollision) {
		t.Fatalf("expected ErrCollision, got %v", err)
	}

	_, err = srv.GetFile(ctx, types.FileID{0x01})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	for i := byte(0); i < 3; i++ {
		if err := srv.PutNode(ctx, testAddress(i), types.Nonce{}, []byte("node")); err != nil {
			t.Fatalf("PutNode failed: %v", err)
		}
	}
	if err := srv.PutFile(ctx, types.FileID{1}, types.FileRecord{Ciphertext: []byte("file")}); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	stats, err := srv.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.NodeCount != 3 {
		t.Fatalf("expected 3 nodes, got %d", stats.NodeCount)
	}
	if stats.FileCount != 1 {
		t.Fatalf("expected 1 file, got %d", stats.FileCount)
	}
	if stats.NodeBytes == 0 || stats.FileBytes == 0 {
		t.Fatalf("expected non-zero byte counts")
	}
}

func TestBackupRestore(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	addr := testAddress(0x42)
	if err := srv.PutNode(ctx, addr, types.Nonce{4}, []byte("node row")); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}
	id := types.FileID{0x42}
	if err := srv.PutFile(ctx, id, types.FileRecord{Ciphertext: []byte("file row")}); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	var backup bytes.Buffer
	if err := srv.Backup(ctx, &backup); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	restored := newTestServer(t)
	if err := restored.Restore(ctx, bytes.NewReader(backup.Bytes())); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	_, ciphertext, err := restored.GetNode(ctx, addr)
	if err != nil {
		t.Fatalf("GetNode after restore failed: %v", err)
	}
	if !bytes.Equal(ciphertext, []byte("node row")) {
		t.Fatalf("restored node mismatch")
	}

	rec, err := restored.GetFile(ctx, id)
	if err != nil {
		t.Fatalf("GetFile after restore failed: %v", err)
	}
	if !bytes.Equal(rec.Ciphertext, []byte("file row")) {
		t.Fatalf("restored file mismatch")
	}

	// restoring on top of existing rows is a no-op
	if err := restored.Restore(ctx, bytes.NewReader(backup.Bytes())); err != nil {
		t.Fatalf("second Restore failed: %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	conf := Config{Paths: []string{dir}, Logger: quietLogger()}

	srv, err := New(conf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	addr := testAddress(0x55)
	if err := srv.PutNode(ctx, addr, types.Nonce{5}, []byte("durable node")); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	srv2, err := New(conf)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer srv2.Close()

	_, ciphertext, err := srv2.GetNode(ctx, addr)
	if err != nil {
		t.Fatalf("GetNode after reopen failed: %v", err)
	}
	if !bytes.Equal(ciphertext, []byte("durable node")) {
		t.Fatalf("expected durable node, got %q", ciphertext)
	}
}
