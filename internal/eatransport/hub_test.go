package eatransport

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHubDispatchesInboundEnvelope(t *testing.T) {
	received := make(chan Envelope, 1)
	hub := NewHub(func(connID string, env Envelope) {
		received <- env
	}, zerolog.Nop())

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Accept(ctx, "ACC-1", serverConn)

	data, _ := json.Marshal(map[string]string{"status": "open"})
	env := Envelope{Type: TypeTradeResult, Data: data, Timestamp: time.Now()}
	if err := WriteFrame(clientConn, env); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != TypeTradeResult {
			t.Fatalf("expected TRADE_RESULT, got %s", got.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched envelope")
	}
}

func TestHubSendToUnknownConnFails(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	ok := hub.Send("missing", Envelope{Type: TypeHeartbeat})
	if ok {
		t.Fatal("expected Send to unknown connection to fail")
	}
}
