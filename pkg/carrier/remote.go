package carrier

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/i5heu/sealdex/pkg/server"
	"github.com/i5heu/sealdex/pkg/types"
)

// RemoteStore speaks the carrier protocol to a sealdex server over one
// connection. It satisfies the same store surface as the in-process
// server, so a client cannot tell the difference.
//
// Requests on one connection are serialized; the protocol has no frame
// multiplexing. Callers wanting parallel searches open several stores.
type RemoteStore struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to a sealdex server at addr.
func Dial(ctx context.Context, addr string) (*RemoteStore, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("carrier: dial %s: %w", addr, err)
	}
	return &RemoteStore{conn: conn}, nil
}

func (r *RemoteStore) Close() error {
	return r.conn.Close()
}

// roundTrip sends one request frame and reads the response frame. A nil
// payload sends a message with an empty Payload, for requests that carry
// no data.
func (r *RemoteStore) roundTrip(ctx context.Context, msgType MessageType, payload any) (ResponsePayload, error) {
	var data []byte
	if payload != nil {
		var err error
		data, err = Serialize(payload)
		if err != nil {
			return ResponsePayload{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		r.conn.SetDeadline(deadline)
		defer r.conn.SetDeadline(noDeadline)
	}

	if err := writeMessage(r.conn, Message{Type: msgType, Payload: data}); err != nil {
		return ResponsePayload{}, err
	}
	msg, err := readMessage(r.conn)
	if err != nil {
		return ResponsePayload{}, fmt.Errorf("carrier: read response: %w", err)
	}
	if msg.Type != MessageTypeResponse {
		return ResponsePayload{}, fmt.Errorf("carrier: unexpected message type %s", msg.Type)
	}
	return Deserialize[ResponsePayload](msg.Payload)
}

func (r *RemoteStore) PutNode(ctx context.Context, addr types.Address, nonce types.Nonce, ciphertext []byte) error {
	resp, err := r.roundTrip(ctx, MessageTypePutNode, PutNodePayload{
		Address:    addr,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return err
	}
	return resp.Status.Err(resp.Detail)
}

func (r *RemoteStore) GetNode(ctx context.Context, addr types.Address) (types.Nonce, []byte, error) {
	resp, err := r.roundTrip(ctx, MessageTypeGetNode, GetNodePayload{Address: addr})
	if err != nil {
		return types.Nonce{}, nil, err
	}
	if err := resp.Status.Err(resp.Detail); err != nil {
		return types.Nonce{}, nil, err
	}
	body, err := Deserialize[NodeResponsePayload](resp.Body)
	if err != nil {
		return types.Nonce{}, nil, err
	}
	return body.Nonce, body.Ciphertext, nil
}

func (r *RemoteStore) PutFile(ctx context.Context, id types.FileID, rec types.FileRecord) error {
	resp, err := r.roundTrip(ctx, MessageTypePutFile, PutFilePayload{ID: id, Record: rec})
	if err != nil {
		return err
	}
	return resp.Status.Err(resp.Detail)
}

func (r *RemoteStore) GetFile(ctx context.Context, id types.FileID) (types.FileRecord, error) {
	resp, err := r.roundTrip(ctx, MessageTypeGetFile, GetFilePayload{ID: id})
	if err != nil {
		return types.FileRecord{}, err
	}
	if err := resp.Status.Err(resp.Detail); err != nil {
		return types.FileRecord{}, err
	}
	body, err := Deserialize[FileResponsePayload](resp.Body)
	if err != nil {
		return types.FileRecord{}, err
	}
	return body.Record, nil
}

// Stats queries the server's table statistics.
func (r *RemoteStore) Stats(ctx context.Context) (server.Stats, error) {
	resp, err := r.roundTrip(ctx, MessageTypeStats, nil)
	if err != nil {
		return server.Stats{}, err
	}
	if err := resp.Status.Err(resp.Detail); err != nil {
		return server.Stats{}, err
	}
	body, err := Deserialize[StatsResponsePayload](resp.Body)
	if err != nil {
		return server.Stats{}, err
	}
	return server.Stats(body), nil
}

// noDeadline clears a connection deadline.
var noDeadline = time.Time{}
