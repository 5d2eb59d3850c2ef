package eatransport

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"ticket": 123, "pnl": 45.6})
	env := Envelope{Type: TypeTradeResult, Data: data, Timestamp: time.Now().Truncate(time.Second)}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, env); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if got.Type != env.Type {
		t.Fatalf("expected type %s, got %s", env.Type, got.Type)
	}
	if !got.Timestamp.Equal(env.Timestamp) {
		t.Fatalf("expected timestamp %v, got %v", env.Timestamp, got.Timestamp)
	}
	if !bytes.Equal(got.Data, env.Data) {
		t.Fatalf("expected data %s, got %s", env.Data, got.Data)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	lenBuf[0] = 0xFF // absurdly large length prefix
	buf.Write(lenBuf)

	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected error for oversize frame")
	}
}

func TestReadFrameEOF(t *testing.T) {
	var buf bytes.Buffer
	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected EOF on empty reader")
	}
}
