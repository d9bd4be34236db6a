package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds how much memory a single frame may claim. A hostile
// or corrupt length prefix beyond this terminates the connection.
const MaxFrameSize = 4096

// Framing errors. Any of these means the stream is no longer trustworthy
// and the connection must be closed.
var (
	ErrFrameTooLarge   = errors.New("frame length exceeds maximum")
	ErrEmptyFrame      = errors.New("frame length must be positive")
	ErrMessageTooLarge = errors.New("encoded message exceeds maximum frame size")
)

// WriteFrame writes a 4-byte big-endian length prefix followed by payload
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > MaxFrameSize {
		return ErrMessageTooLarge
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. It returns io.EOF on a clean
// close before a prefix; any short read or length violation is an error
// and the caller must drop the connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
