package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// maxFrameSize bounds a single frame the way franz-go's maxBrokerReadBytes
// bounds a Kafka response: a length prefix that implies an implausibly large
// body is treated as a protocol error rather than an allocation of that size.
const maxFrameSize = 16 << 20

// ErrFrameTooLarge is returned by ReadFrame when the length prefix exceeds
// maxFrameSize.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ReadFrame reads one length-delimited frame in full: a 4-byte big-endian
// length prefix followed by that many payload bytes. This is the broker's
// read-whole-frame primitive (spec.md §6).
func ReadFrame(r io.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes payload as one length-delimited frame: a 4-byte
// big-endian length prefix followed by payload. This is the broker's
// write-whole-frame primitive (spec.md §6).
func WriteFrame(w io.Writer, payload []byte) error {
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// EncodeName serializes a protocol name registration: raw UTF-8 bytes, no
// framing metadata beyond the length prefix (spec.md §6).
func EncodeName(name string) []byte { return []byte(name) }

// DecodeName parses a protocol name registration frame.
func DecodeName(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("wire: protocol name is not valid UTF-8")
	}
	return string(b), nil
}

// EncodeAppMetadata is the broker's serialize-T primitive for AppMetadata.
func EncodeAppMetadata(m AppMetadata) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("wire: encode app metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeAppMetadata is the broker's parse-as-T primitive for AppMetadata.
func DecodeAppMetadata(b []byte) (AppMetadata, error) {
	var m AppMetadata
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&m); err != nil {
		return AppMetadata{}, fmt.Errorf("wire: decode app metadata: %w", err)
	}
	if m.Name == "" {
		return AppMetadata{}, fmt.Errorf("wire: app metadata missing name")
	}
	return m, nil
}

// EncodeRequest is the broker's serialize-T primitive for Request.
func EncodeRequest(r Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("wire: encode request: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRequest is the broker's parse-as-T primitive for Request.
func DecodeRequest(b []byte) (Request, error) {
	var r Request
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return Request{}, fmt.Errorf("wire: decode request: %w", err)
	}
	return r, nil
}

// EncodeResponse is the broker's serialize-T primitive for Response.
func EncodeResponse(r Response) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("wire: encode response: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeResponse is the broker's parse-as-T primitive for Response.
func DecodeResponse(b []byte) (Response, error) {
	var r Response
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return Response{}, fmt.Errorf("wire: decode response: %w", err)
	}
	return r, nil
}
