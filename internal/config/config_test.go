package config_test

import (
	"testing"
	"time"

	"github.com/robertarktes/hotel-booking-payments/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/hotel?sslmode=disable")
	t.Setenv("STRIPE_TEST_KEY", "sk_test_123")
	t.Setenv("GATEWAY_TIMEOUT", "3s")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Currency != "sgd" {
		t.Errorf("expected default currency sgd, got %s", cfg.Currency)
	}
	if cfg.GatewayTimeout != 3*time.Second {
		t.Errorf("expected 3s gateway timeout, got %s", cfg.GatewayTimeout)
	}
	if cfg.MailFromName != "Ascenda Hotel Booking" {
		t.Errorf("unexpected sender identity %q", cfg.MailFromName)
	}
	if err := cfg.RequireAPI(); err != nil {
		t.Errorf("expected api settings to be complete, got %v", err)
	}
}

func TestRequireAPI(t *testing.T) {
	cfg := &config.Config{StripeSecretKey: "sk_test"}
	if err := cfg.RequireAPI(); err == nil {
		t.Error("expected error for missing CRDB_DSN")
	}
}
