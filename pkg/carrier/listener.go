package carrier

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/sealdex/pkg/server"
	"github.com/i5heu/sealdex/pkg/types"
)

// Store is the storage surface the listener serves. pkg/server.Server
// satisfies it.
type Store interface {
	PutNode(ctx context.Context, addr types.Address, nonce types.Nonce, ciphertext []byte) error
	GetNode(ctx context.Context, addr types.Address) (types.Nonce, []byte, error)
	PutFile(ctx context.Context, id types.FileID, rec types.FileRecord) error
	GetFile(ctx context.Context, id types.FileID) (types.FileRecord, error)
	Stats(ctx context.Context) (server.Stats, error)
}

// Serve accepts connections on ln and answers store requests until ctx is
// canceled or the listener fails. Each connection is handled on its own
// goroutine; the store's own linearizability makes that safe.
func Serve(ctx context.Context, ln net.Listener, store Store, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go handleConn(ctx, conn, store, log)
	}
}

func handleConn(ctx context.Context, conn net.Conn, store Store, log *logrus.Logger) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log.WithField("remote", remote).Debug("connection opened")

	for {
		msg, err := readMessage(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.WithField("remote", remote).WithError(err).Warn("read failed")
			}
			return
		}

		resp := dispatch(ctx, store, msg)
		if err := writeMessage(conn, resp); err != nil {
			log.WithField("remote", remote).WithError(err).Warn("write failed")
			return
		}
	}
}

func dispatch(ctx context.Context, store Store, msg Message) Message {
	var resp ResponsePayload

	switch msg.Type {
	case MessageTypePutNode:
		req, err := Deserialize[PutNodePayload](msg.Payload)
		if err != nil {
			resp = errorResponse(err)
			break
		}
		resp = statusOf(store.PutNode(ctx, req.Address, req.Nonce, req.Ciphertext))

	case MessageTypeGetNode:
		req, err := Deserialize[GetNodePayload](msg.Payload)
		if err != nil {
			resp = errorResponse(err)
			break
		}
		nonce, ciphertext, err := store.GetNode(ctx, req.Address)
		if err != nil {
			resp = statusOf(err)
			break
		}
		resp = bodyResponse(NodeResponsePayload{Nonce: nonce, Ciphertext: ciphertext})

	case MessageTypePutFile:
		req, err := Deserialize[PutFilePayload](msg.Payload)
		if err != nil {
			resp = errorResponse(err)
			break
		}
		resp = statusOf(store.PutFile(ctx, req.ID, req.Record))

	case MessageTypeGetFile:
		req, err := Deserialize[GetFilePayload](msg.Payload)
		if err != nil {
			resp = errorResponse(err)
			break
		}
		rec, err := store.GetFile(ctx, req.ID)
		if err != nil {
			resp = statusOf(err)
			break
		}
		resp = bodyResponse(FileResponsePayload{Record: rec})

	case MessageTypeStats:
		st, err := store.Stats(ctx)
		if err != nil {
			resp = statusOf(err)
			break
		}
		resp = bodyResponse(StatsResponsePayload(st))

	default:
		resp = ResponsePayload{Status: StatusInternal, Detail: "unknown message type " + msg.Type.String()}
	}

	payload, err := Serialize(resp)
	if err != nil {
		payload, _ = Serialize(ResponsePayload{Status: StatusInternal, Detail: err.Error()})
	}
	return Message{Type: MessageTypeResponse, Payload: payload}
}

func statusOf(err error) ResponsePayload {
	switch {
	case err == nil:
		return ResponsePayload{Status: StatusOK}
	case errors.Is(err, types.ErrNotFound):
		return ResponsePayload{Status: StatusNotFound}
	case errors.Is(err, types.ErrCollision):
		return ResponsePayload{Status: StatusCollision}
	default:
		return errorResponse(err)
	}
}

func errorResponse(err error) ResponsePayload {
	return ResponsePayload{Status: StatusInternal, Detail: err.Error()}
}

func bodyResponse[T any](body T) ResponsePayload {
	data, err := Serialize(body)
	if err != nil {
		return errorResponse(err)
	}
	return ResponsePayload{Status: StatusOK, Body: data}
}
