package transport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/finestructure/historyview/internal/protocol"
)

// MaxFrameSize bounds a single frame on the wire.
const MaxFrameSize = 10 * 1024 * 1024

var ErrFrameTooLarge = errors.New("transport: frame too large")

// length-prefixed JSON codec: [u32 len][json bytes]

func Encode(f protocol.Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	if len(b) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, len(b))
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(b))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(r *bufio.Reader) (protocol.Frame, error) {
	var f protocol.Frame
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return f, err
	}
	if n > MaxFrameSize {
		return f, fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return f, err
	}
	if err := json.Unmarshal(buf, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
