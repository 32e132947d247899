package perception

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	opPersons = "persons"
	opFace    = "face"
	opHands   = "hands"
	opPose    = "pose"
)

// maxReplySize guards against reading garbage as a length header.
const maxReplySize = 1 << 20

type request struct {
	Op    string `msgpack:"op"`
	Frame []byte `msgpack:"frame"`
}

type reply struct {
	OK    bool   `msgpack:"ok"`
	Count int    `msgpack:"count"`
	Found bool   `msgpack:"found"`
	Error string `msgpack:"error"`
}

// writeMessage frames v as [uint32 big-endian length][msgpack body].
func writeMessage(w io.Writer, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(body))); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func readMessage(r io.Reader, v any) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	size := binary.BigEndian.Uint32(header)
	if size > maxReplySize {
		return fmt.Errorf("reply too large: %d bytes", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
