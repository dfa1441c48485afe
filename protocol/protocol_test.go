// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/protocol_test.go
// Summary: Exercises frame encoding to ensure the wire header remains reliable.
// Usage: Executed during `go test` to guard against regressions.

package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	payload := []byte{1, 0, 0, 0, 2, 0, 0, 0}

	buf := &bytes.Buffer{}
	if err := WriteMessage(buf, 7, 3, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(payload) {
		t.Fatalf("unexpected frame length %d", buf.Len())
	}

	msg, err := ReadMessage(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Header.Sender != 7 || msg.Header.Opcode != 3 || msg.Header.Size != 16 {
		t.Fatalf("header mismatch: %+v", msg.Header)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Fatalf("payload mismatch: %v vs %v", msg.Payload, payload)
	}
}

func TestHeaderLayoutIsNativeEndian(t *testing.T) {
	b := make([]byte, HeaderSize)
	EncodeHeader(b, Header{Sender: 1, Opcode: 2, Size: 12})
	if hostOrder.Uint32(b[0:4]) != 1 || hostOrder.Uint16(b[4:6]) != 2 || hostOrder.Uint16(b[6:8]) != 12 {
		t.Fatalf("unexpected header bytes %v", b)
	}
	hdr, err := DecodeHeader(b)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if hdr != (Header{Sender: 1, Opcode: 2, Size: 12}) {
		t.Fatalf("decoded %+v", hdr)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, 5)); !errors.Is(err, ErrHeaderShort) {
		t.Fatalf("expected ErrHeaderShort, got %v", err)
	}
}

func TestHeaderValidate(t *testing.T) {
	cases := []struct {
		size uint16
		want error
	}{
		{8, nil},
		{4096, nil},
		{4, ErrSizeOutOfRange},
		{0, ErrSizeOutOfRange},
		{4100, ErrSizeOutOfRange},
		{10, ErrSizeUnaligned},
	}
	for _, tc := range cases {
		err := Header{Size: tc.size}.Validate()
		if !errors.Is(err, tc.want) {
			t.Fatalf("size %d: expected %v, got %v", tc.size, tc.want, err)
		}
	}
}

func TestEncodeMessageRejectsOversize(t *testing.T) {
	if _, err := EncodeMessage(1, 0, make([]byte, MaxMessageSize)); !errors.Is(err, ErrSizeOutOfRange) {
		t.Fatalf("expected ErrSizeOutOfRange, got %v", err)
	}
	if _, err := EncodeMessage(1, 0, make([]byte, 3)); !errors.Is(err, ErrSizeUnaligned) {
		t.Fatalf("expected ErrSizeUnaligned, got %v", err)
	}
}

func TestShortPayload(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteMessage(buf, 1, 0, make([]byte, 8)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	truncated := buf.Bytes()[:HeaderSize+2]
	if _, err := ReadMessage(bytes.NewReader(truncated)); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected short payload error, got %v", err)
	}
}

func TestReadMessageRejectsBadSize(t *testing.T) {
	b := make([]byte, HeaderSize)
	EncodeHeader(b, Header{Sender: 1, Size: 2})
	if _, err := ReadMessage(bytes.NewReader(b)); !errors.Is(err, ErrSizeOutOfRange) {
		t.Fatalf("expected ErrSizeOutOfRange, got %v", err)
	}
}
