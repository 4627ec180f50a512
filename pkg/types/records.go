package types

import (
	"encoding/binary"
	"fmt"
)

// NodeRecord is the persisted form of one chain node as the server stores
// it: the AEAD nonce followed by the ciphertext (tag included). The
// address is the row key and is not part of the value.
type NodeRecord struct {
	Nonce      Nonce
	Ciphertext []byte
}

// FileRecord is the persisted form of one encrypted file: the sealed file
// bytes and the sealed original filename, each with its own nonce. Both
// are encrypted under the same per-file key.
type FileRecord struct {
	DataNonce  Nonce
	NameNonce  Nonce
	Ciphertext []byte
	SealedName []byte
}

var ErrRecordEncoding = fmt.Errorf("types: malformed record encoding")

// EncodeNodeRecord packs a node row value as nonce || ciphertext.
func EncodeNodeRecord(r NodeRecord) []byte {
	buf := make([]byte, 0, NonceSize+len(r.Ciphertext))
	buf = append(buf, r.Nonce[:]...)
	buf = append(buf, r.Ciphertext...)
	return buf
}

// DecodeNodeRecord unpacks a node row value.
func DecodeNodeRecord(buf []byte) (NodeRecord, error) {
	var r NodeRecord
	if len(buf) < NonceSize {
		return r, fmt.Errorf("%w: node row of %d bytes", ErrRecordEncoding, len(buf))
	}
	copy(r.Nonce[:], buf[:NonceSize])
	r.Ciphertext = append([]byte(nil), buf[NonceSize:]...)
	return r, nil
}

// EncodeFileRecord packs a file row value with length-prefixed fields:
// dataNonce || nameNonce || u32(len ct) || ct || u32(len name) || name.
func EncodeFileRecord(r FileRecord) []byte {
	buf := make([]byte, 0, 2*NonceSize+8+len(r.Ciphertext)+len(r.SealedName))
	buf = append(buf, r.DataNonce[:]...)
	buf = append(buf, r.NameNonce[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Ciphertext)))
	buf = append(buf, r.Ciphertext...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.SealedName)))
	buf = append(buf, r.SealedName...)
	return buf
}

// DecodeFileRecord unpacks a file row value.
func DecodeFileRecord(buf []byte) (FileRecord, error) {
	var r FileRecord
	if len(buf) < 2*NonceSize+8 {
		return r, fmt.Errorf("%w: file row of %d bytes", ErrRecordEncoding, len(buf))
	}
	off := 0
	copy(r.DataNonce[:], buf[off:off+NonceSize])
	off += NonceSize
	copy(r.NameNonce[:], buf[off:off+NonceSize])
	off += NonceSize

	ctLen := binary.BigEndian.Uint32(buf[off:])
	off += 4
	if uint32(len(buf)-off) < ctLen {
		return r, fmt.Errorf("%w: ciphertext length %d exceeds row", ErrRecordEncoding, ctLen)
	}
	r.Ciphertext = append([]byte(nil), buf[off:off+int(ctLen)]...)
	off += int(ctLen)

	if len(buf)-off < 4 {
		return r, fmt.Errorf("%w: truncated name field", ErrRecordEncoding)
	}
	nameLen := binary.BigEndian.Uint32(buf[off:])
	off += 4
	if uint32(len(buf)-off) != nameLen {
		return r, fmt.Errorf("%w: name length %d, %d bytes remain", ErrRecordEncoding, nameLen, len(buf)-off)
	}
	r.SealedName = append([]byte(nil), buf[off:]...)
	return r, nil
}
