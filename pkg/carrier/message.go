// Package carrier moves sealdex store operations over a byte stream. Each
// frame is a length prefix followed by a gob-encoded Message; the payload
// format depends on the message type. The carrier moves ciphertext only —
// keywords and keys never appear in any payload.
package carrier

import (
	"fmt"

	"github.com/i5heu/sealdex/pkg/types"
)

// MessageType defines the type of message exchanged between client and
// server.
type MessageType uint8

const (
	// MessageTypePutNode inserts an encrypted chain node.
	MessageTypePutNode MessageType = iota + 1
	// MessageTypeGetNode looks up an encrypted chain node by address.
	MessageTypeGetNode
	// MessageTypePutFile inserts an encrypted file record.
	MessageTypePutFile
	// MessageTypeGetFile looks up an encrypted file record by id.
	MessageTypeGetFile
	// MessageTypeStats requests row counts and sizes of both tables.
	MessageTypeStats
	// MessageTypeResponse carries a ResponsePayload back to the caller.
	MessageTypeResponse
)

// messageTypeNames maps MessageType values to their string representations.
var messageTypeNames = map[MessageType]string{
	MessageTypePutNode:  "PutNode",
	MessageTypeGetNode:  "GetNode",
	MessageTypePutFile:  "PutFile",
	MessageTypeGetFile:  "GetFile",
	MessageTypeStats:    "Stats",
	MessageTypeResponse: "Response",
}

// String returns the string representation of a MessageType.
func (mt MessageType) String() string {
	if name, ok := messageTypeNames[mt]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", mt)
}

// Message is one frame on the wire.
type Message struct {
	// Type identifies what kind of message this is and determines how
	// Payload is interpreted.
	Type MessageType

	// Payload is the gob-encoded request or response body.
	Payload []byte
}

// Status encodes the outcome of a store operation on the wire.
type Status int

const (
	StatusOK Status = 10 + iota
	StatusNotFound
	StatusCollision
	StatusInternal
)

// Err maps a wire status back onto the protocol's error sentinels.
func (s Status) Err(detail string) error {
	switch s {
	case StatusOK:
		return nil
	case StatusNotFound:
		return types.ErrNotFound
	case StatusCollision:
		return types.ErrCollision
	default:
		return fmt.Errorf("carrier: server error: %s", detail)
	}
}

// PutNodePayload carries one encrypted chain node to the server.
type PutNodePayload struct {
	Address    types.Address
	Nonce      types.Nonce
	Ciphertext []byte
}

// GetNodePayload requests the node stored at Address.
type GetNodePayload struct {
	Address types.Address
}

// NodeResponsePayload is the body of a successful GetNode response.
type NodeResponsePayload struct {
	Nonce      types.Nonce
	Ciphertext []byte
}

// PutFilePayload carries one encrypted file record to the server.
type PutFilePayload struct {
	ID     types.FileID
	Record types.FileRecord
}

// GetFilePayload requests the file record stored under ID.
type GetFilePayload struct {
	ID types.FileID
}

// FileResponsePayload is the body of a successful GetFile response.
type FileResponsePayload struct {
	Record types.FileRecord
}

// StatsResponsePayload is the body of a successful Stats response.
type StatsResponsePayload struct {
	NodeCount uint64
	NodeBytes uint64
	FileCount uint64
	FileBytes uint64
}

// ResponsePayload wraps every server reply: a status, an optional detail
// for internal errors, and the type-specific body.
type ResponsePayload struct {
	Status Status
	Detail string
	Body   []byte
}
