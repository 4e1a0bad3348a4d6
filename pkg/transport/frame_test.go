package transport

import (
	"bytes"
	"testing"
)

func TestReadWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"id":"01","kind":"request","message":{"type":"CredentialGetRequest"}}`)
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if buf.Len() != 4+len(payload) {
		t.Fatalf("expected %d bytes on the wire, got %d", 4+len(payload), buf.Len())
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %s, want %s", got, payload)
	}
}

func TestReadFrameRejectsEmpty(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	if _, err := ReadFrame(buf); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x01, 0x00, 0x10, 0x00}) // 1 MiB + 1
	if _, err := ReadFrame(buf); err == nil {
		t.Error("expected error for oversized frame")
	}
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, MaxFrameSize+1)); err == nil {
		t.Error("expected error for oversized payload")
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %d bytes", buf.Len())
	}
}

func TestReadFrameTruncated(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x05, 0x00, 0x00, 0x00, 'a', 'b'})
	if _, err := ReadFrame(buf); err == nil {
		t.Error("expected error for truncated payload")
	}
}
