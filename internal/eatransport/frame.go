// Package eatransport implements the EA wire protocol: a length-prefixed
// TCP stream of JSON envelopes, one connection per expert advisor.
package eatransport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"genx-signal-engine/internal/errs"
)

// MaxFrameBytes bounds a single message body to guard against a
// malformed or hostile length prefix exhausting memory.
const MaxFrameBytes = 1 << 20 // 1 MiB

// MessageType enumerates the EA protocol's message kinds.
type MessageType string

const (
	TypeTradeResult    MessageType = "TRADE_RESULT"
	TypeAccountStatus  MessageType = "ACCOUNT_STATUS"
	TypeHeartbeat      MessageType = "HEARTBEAT"
	TypeError          MessageType = "ERROR"
	TypeEAInfo         MessageType = "EA_INFO"
	TypeSignal         MessageType = "SIGNAL"
)

// Envelope is the wire body: {"type","data","timestamp"}.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EncodeFrame serializes an envelope as [4-byte big-endian length][JSON
// body].
func EncodeFrame(env Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, errs.Wrap(errs.ProtocolViolation, "eatransport: marshal envelope", err)
	}
	if len(body) > MaxFrameBytes {
		return nil, errs.New(errs.ProtocolViolation, "eatransport: frame exceeds maximum size")
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)
	return frame, nil
}

// WriteFrame writes one framed envelope to w.
func WriteFrame(w io.Writer, env Envelope) error {
	frame, err := EncodeFrame(env)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return errs.Wrap(errs.TransientIO, "eatransport: write frame", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed envelope from r.
func ReadFrame(r io.Reader) (Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Envelope{}, err
		}
		return Envelope{}, errs.Wrap(errs.TransientIO, "eatransport: read length prefix", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return Envelope{}, errs.New(errs.ProtocolViolation, fmt.Sprintf("eatransport: frame length %d exceeds maximum", n))
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, errs.Wrap(errs.TransientIO, "eatransport: read frame body", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, errs.Wrap(errs.ProtocolViolation, "eatransport: unmarshal envelope", err)
	}
	return env, nil
}
