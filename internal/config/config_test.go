package config

import "testing"

func TestDefaultsPopulatesTransportAndWorker(t *testing.T) {
	c := Defaults()
	if c.Transport.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected redis addr: %s", c.Transport.RedisAddr)
	}
	if c.Worker.Concurrency != 10 {
		t.Fatalf("unexpected concurrency: %d", c.Worker.Concurrency)
	}
}

func TestAPIConfigForFallsBackToDefault(t *testing.T) {
	c := Defaults()
	cfg := c.APIConfigFor("auth")
	if cfg.Validate != "both" {
		t.Fatalf("unexpected default validate: %s", cfg.Validate)
	}
}

func TestAPIConfigForReturnsOverride(t *testing.T) {
	c := Defaults()
	c.APIs["auth"] = APIConfig{Validate: "incoming"}
	cfg := c.APIConfigFor("auth")
	if cfg.Validate != "incoming" {
		t.Fatalf("expected override to apply, got %s", cfg.Validate)
	}
}
