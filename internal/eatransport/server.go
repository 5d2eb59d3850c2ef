package eatransport

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genx-signal-engine/internal/brokercreds"
	"genx-signal-engine/internal/errs"
)

// CredentialResolver looks up the broker account a connecting EA claims,
// purely for handshake logging; satisfied by *brokercreds.Resolver.
type CredentialResolver interface {
	Resolve(ctx context.Context, accountID string) (*brokercreds.Credentials, error)
}

// Server listens for EA connections and performs the EA_INFO handshake
// before handing each connection to the Hub.
type Server struct {
	addr     string
	hub      *Hub
	signer   *TokenSigner
	creds    CredentialResolver
	log      zerolog.Logger
	listener net.Listener
}

// NewServer builds a Server bound to addr.
func NewServer(addr string, hub *Hub, signer *TokenSigner, log zerolog.Logger) *Server {
	return &Server{addr: addr, hub: hub, signer: signer, log: log}
}

// WithCredentialResolver attaches a broker-credential resolver consulted
// after a successful handshake, purely to enrich the connect log line
// with the account's known broker name.
func (s *Server) WithCredentialResolver(r CredentialResolver) *Server {
	s.creds = r
	return s
}

// ListenAndServe binds the listener and accepts connections until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errs.Wrap(errs.TransientIO, "eatransport: listen", err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handshake(ctx, conn)
	}
}

// handshake reads the first frame from a new connection, expects it to
// be EA_INFO, verifies its token, and registers the connection with the
// hub on success.
func (s *Server) handshake(ctx context.Context, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	env, err := ReadFrame(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("handshake read failed")
		conn.Close()
		return
	}
	if env.Type != TypeEAInfo {
		s.log.Warn().Str("type", string(env.Type)).Msg("expected EA_INFO as first frame")
		conn.Close()
		return
	}

	var info EAInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		s.log.Warn().Err(err).Msg("malformed EA_INFO payload")
		conn.Close()
		return
	}
	if s.signer != nil {
		if err := s.signer.Verify(info.AccountID, info.Token); err != nil {
			s.log.Warn().Str("account", info.AccountID).Msg("handshake token verification failed")
			conn.Close()
			return
		}
	}

	id := info.AccountID
	if id == "" {
		id = uuid.NewString()
	}
	conn.SetReadDeadline(time.Time{})
	s.hub.Accept(ctx, id, conn)

	broker := info.Broker
	if s.creds != nil {
		if c, err := s.creds.Resolve(ctx, id); err == nil {
			broker = c.Broker
		}
	}
	s.log.Info().Str("account", id).Str("broker", broker).Msg("EA connected")
}
