// Package brokercreds resolves per-account broker credentials (the MT4/
// MT5 login, password, and server of an EA account; the EA transport
// looks them up after an EA_INFO handshake only to log the broker name)
// from HashiCorp Vault, with an in-memory
// cache and a disabled-vault fallback for local development. Adapted
// from internal/vault/client.go's StoreAPIKey/GetAPIKey pattern, swapping
// exchange API keys for broker account credentials.
package brokercreds

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"genx-signal-engine/internal/errs"
)

// Credentials is the broker login data for one EA account.
type Credentials struct {
	AccountID string `json:"account_id"`
	Login     string `json:"login"`
	Password  string `json:"password"`
	Server    string `json:"server"`
	Broker    string `json:"broker"`
}

// Config tunes the Vault connection.
type Config struct {
	Enabled   bool
	Address   string
	Token     string
	MountPath string
	SecretPath string
}

// Resolver fetches and caches broker credentials by account ID.
type Resolver struct {
	client *api.Client
	cfg    Config
	mu     sync.RWMutex
	cache  map[string]*Credentials
}

// NewResolver builds a Resolver. When cfg.Enabled is false, it operates
// purely out of its in-memory cache (populated via Store), a
// local-development fallback with no Vault dependency.
func NewResolver(cfg Config) (*Resolver, error) {
	r := &Resolver{cfg: cfg, cache: make(map[string]*Credentials)}
	if !cfg.Enabled {
		return r, nil
	}

	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address
	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "brokercreds: create vault client", err)
	}
	client.SetToken(cfg.Token)
	r.client = client
	return r, nil
}

func (r *Resolver) path(accountID string) string {
	return fmt.Sprintf("%s/data/%s/%s", r.cfg.MountPath, r.cfg.SecretPath, accountID)
}

// Store writes credentials for accountID, to Vault when enabled and
// always to the in-memory cache.
func (r *Resolver) Store(ctx context.Context, accountID string, creds Credentials) error {
	if r.cfg.Enabled {
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"login":    creds.Login,
				"password": creds.Password,
				"server":   creds.Server,
				"broker":   creds.Broker,
			},
		}
		if _, err := r.client.Logical().WriteWithContext(ctx, r.path(accountID), secretData); err != nil {
			return errs.Wrap(errs.TransientIO, "brokercreds: write to vault", err)
		}
	}
	r.mu.Lock()
	cp := creds
	r.cache[accountID] = &cp
	r.mu.Unlock()
	return nil
}

// Resolve returns credentials for accountID, consulting the cache
// first, then Vault.
func (r *Resolver) Resolve(ctx context.Context, accountID string) (*Credentials, error) {
	r.mu.RLock()
	if cached, ok := r.cache[accountID]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	if !r.cfg.Enabled {
		return nil, errs.New(errs.NotReady, "brokercreds: credentials not found and vault is disabled")
	}

	secret, err := r.client.Logical().ReadWithContext(ctx, r.path(accountID))
	if err != nil {
		return nil, errs.Wrap(errs.TransientIO, "brokercreds: read from vault", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, errs.New(errs.NotReady, "brokercreds: credentials not found")
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, errs.New(errs.DataQuality, "brokercreds: invalid secret format")
	}

	creds := &Credentials{
		AccountID: accountID,
		Login:     asString(data["login"]),
		Password:  asString(data["password"]),
		Server:    asString(data["server"]),
		Broker:    asString(data["broker"]),
	}
	r.mu.Lock()
	r.cache[accountID] = creds
	r.mu.Unlock()
	return creds, nil
}

// Forget removes accountID from the cache, forcing the next Resolve to
// hit Vault again.
func (r *Resolver) Forget(accountID string) {
	r.mu.Lock()
	delete(r.cache, accountID)
	r.mu.Unlock()
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
