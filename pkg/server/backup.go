package server

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/i5heu/sealdex/internal/keyValStore"
)

// backupRow is one exported row. Keys keep their table prefix so Restore
// can write them back verbatim.
type backupRow struct {
	Key   []byte
	Value []byte
}

// Backup streams every row of both tables to w as an xz-compressed gob
// stream. The export contains only ciphertext, nonces and opaque keys, so
// a backup leaks nothing beyond what the server already holds.
func (s *Server) Backup(ctx context.Context, w io.Writer) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("backup: create xz writer: %w", err)
	}
	enc := gob.NewEncoder(xw)

	for _, prefix := range [][]byte{prefixNode, prefixFile} {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := s.kv.GetItemsWithPrefix(prefix)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		for _, row := range rows {
			if err := enc.Encode(backupRow{Key: row[0], Value: row[1]}); err != nil {
				return fmt.Errorf("backup: encode row: %w", err)
			}
		}
	}

	if err := xw.Close(); err != nil {
		return fmt.Errorf("backup: close xz writer: %w", err)
	}
	return nil
}

// Restore reads a Backup stream and inserts every row. Existing rows with
// the same key are left untouched; a node row is immutable once written.
func (s *Server) Restore(ctx context.Context, r io.Reader) error {
	xr, err := xz.NewReader(r)
	if err != nil {
		return fmt.Errorf("restore: create xz reader: %w", err)
	}
	dec := gob.NewDecoder(xr)

	var restored, skipped int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var row backupRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("restore: decode row: %w", err)
		}
		err := s.kv.WriteIfAbsent(row.Key, row.Value)
		if err != nil {
			if errors.Is(err, keyValStore.ErrKeyExists) {
				skipped++
				continue
			}
			return fmt.Errorf("restore: %w", err)
		}
		restored++
	}

	s.log.WithField("restored", restored).WithField("skipped", skipped).Info("restore finished")
	return nil
}
