package brokercreds

import (
	"context"
	"testing"
)

func TestResolverDisabledUsesCacheOnly(t *testing.T) {
	r, err := NewResolver(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "ACC-1"); err == nil {
		t.Fatal("expected error for unknown account with vault disabled")
	}

	creds := Credentials{AccountID: "ACC-1", Login: "10001", Password: "secret", Server: "Broker-Live", Broker: "ExampleFX"}
	if err := r.Store(ctx, "ACC-1", creds); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := r.Resolve(ctx, "ACC-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Login != "10001" || got.Server != "Broker-Live" {
		t.Fatalf("unexpected credentials: %+v", got)
	}
}

func TestResolverForgetClearsCache(t *testing.T) {
	r, _ := NewResolver(Config{Enabled: false})
	ctx := context.Background()
	r.Store(ctx, "ACC-2", Credentials{AccountID: "ACC-2", Login: "1"})
	r.Forget("ACC-2")
	if _, err := r.Resolve(ctx, "ACC-2"); err == nil {
		t.Fatal("expected error after forgetting cached credentials")
	}
}
