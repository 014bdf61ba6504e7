// Package wire implements the two envelopes spoken by roomshare peers: a
// length-prefixed JSON stream for the TCP room/file authority and one JSON
// object per datagram for the UDP presence authority.
package wire

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	headerSize = 4

	// envelopeOverhead is headroom for the JSON fields around a base64 payload.
	envelopeOverhead = 64 << 10
)

var (
	// ErrEmptyFrame is returned for a zero length prefix. It ends the session.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrFrameTooLarge is returned when a prefix exceeds the reader's limit.
	// The oversized payload has already been drained from the stream.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrMalformedFrame is returned when a payload is not a JSON object.
	ErrMalformedFrame = errors.New("malformed frame")
)

// MaxFrameFor returns the largest frame needed to carry a file of maxFileSize
// bytes as base64 inside a JSON envelope.
func MaxFrameFor(maxFileSize int64) uint32 {
	size := int64(base64.StdEncoding.EncodedLen(int(maxFileSize))) + envelopeOverhead
	if size > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(size)
}

// WriteFrame encodes v as JSON and writes it behind a 4-byte big-endian length.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(payload)))
	copy(frame[headerSize:], payload)
	_, err = w.Write(frame)
	return err
}

// ReadFrame blocks until one whole frame is available and returns its payload.
// A stream that ends mid-frame yields io.ErrUnexpectedEOF; a stream that ends
// cleanly between frames yields io.EOF. Frames longer than limit are discarded
// and reported as ErrFrameTooLarge so the caller can keep reading. A zero limit
// disables the check.
func ReadFrame(r io.Reader, limit uint32) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if limit > 0 && length > limit {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, limit)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Decode parses a frame or datagram payload into out.
func Decode(payload []byte, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// EncodeDatagram renders one datagram payload.
func EncodeDatagram(v any) ([]byte, error) {
	return json.Marshal(v)
}
