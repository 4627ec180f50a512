package carrier

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame. File payloads dominate frame size;
// anything larger than this is rejected before allocation.
const maxFrameSize = 256 << 20

// writeMessage writes one length-prefixed frame: a big-endian uint32
// length followed by the gob-encoded message.
func writeMessage(w io.Writer, msg Message) error {
	data, err := Serialize(msg)
	if err != nil {
		return err
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("carrier: frame of %d bytes exceeds limit", len(data))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("carrier: write frame header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("carrier: write frame body: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed frame.
func readMessage(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return Message{}, fmt.Errorf("carrier: frame of %d bytes exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Message{}, fmt.Errorf("carrier: read frame body: %w", err)
	}
	return Deserialize[Message](data)
}
