package statusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"genx-signal-engine/internal/ledger"
	"genx-signal-engine/internal/signal"
)

type fakeSignalSource struct {
	signals []*signal.Signal
}

func (f *fakeSignalSource) ActiveSignals() []*signal.Signal { return f.signals }

func TestHealthzReturnsOK(t *testing.T) {
	s := New(Config{AuthDisabled: true}, &fakeSignalSource{}, ledger.New(), nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusRequiresAuthByDefault(t *testing.T) {
	s := New(Config{JWTSecret: "test-secret"}, &fakeSignalSource{}, ledger.New(), nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestLoginIssuesTokenUsableForAuthedRoutes(t *testing.T) {
	hash, err := HashAdminPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashAdminPassword failed: %v", err)
	}
	s := New(Config{
		JWTSecret:         "test-secret",
		AdminUsername:     "ops",
		AdminPasswordHash: hash,
	}, &fakeSignalSource{}, ledger.New(), nil, zerolog.Nop())

	body, _ := json.Marshal(loginRequest{Username: "ops", Password: "correct-horse"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from login, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected non-empty access token")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req2.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 using issued token, got %d", rec2.Code)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	hash, _ := HashAdminPassword("correct-horse")
	s := New(Config{
		JWTSecret:         "test-secret",
		AdminUsername:     "ops",
		AdminPasswordHash: hash,
	}, &fakeSignalSource{}, ledger.New(), nil, zerolog.Nop())

	body, _ := json.Marshal(loginRequest{Username: "ops", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

type fakeForcer struct {
	gotSymbols []string
}

func (f *fakeForcer) Tick(ctx context.Context, symbols ...string) map[string]error {
	f.gotSymbols = symbols
	results := make(map[string]error, len(symbols))
	for _, s := range symbols {
		results[s] = nil
	}
	return results
}

func TestForceGenerateWithoutForcerReturns501(t *testing.T) {
	s := New(Config{AuthDisabled: true}, &fakeSignalSource{}, ledger.New(), nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/api/signals/generate", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestForceGenerateDispatchesRequestedSymbols(t *testing.T) {
	forcer := &fakeForcer{}
	s := New(Config{AuthDisabled: true}, &fakeSignalSource{}, ledger.New(), forcer, zerolog.Nop())

	body, _ := json.Marshal(map[string][]string{"symbols": {"EURUSD", "GBPUSD"}})
	req := httptest.NewRequest(http.MethodPost, "/api/signals/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(forcer.gotSymbols) != 2 {
		t.Fatalf("expected forcer to receive 2 symbols, got %v", forcer.gotSymbols)
	}
}

func TestStatusWithAuthDisabled(t *testing.T) {
	s := New(Config{AuthDisabled: true}, &fakeSignalSource{}, ledger.New(), nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", rec.Code)
	}
}
