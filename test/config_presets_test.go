package test

import (
	"testing"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
)

func TestDefaultConfigPresetValidates(t *testing.T) {
	cfg := goAdmin.DefaultConfig()

	if cfg.Renewal.Timeout != 15*time.Second {
		t.Fatalf("expected 15s renewal timeout, got %v", cfg.Renewal.Timeout)
	}
	if len(cfg.Transport.AuthFailureStatuses) != 1 || cfg.Transport.AuthFailureStatuses[0] != 401 {
		t.Fatalf("expected [401] auth failure statuses, got %v", cfg.Transport.AuthFailureStatuses)
	}
	if cfg.Session.Persist {
		t.Fatal("expected persistence disabled in preset baseline")
	}
	if cfg.Transport.FollowRedirects {
		t.Fatal("expected redirects not followed by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected preset to validate, got %v", err)
	}
}

func TestDefaultConfigPresetIsIsolated(t *testing.T) {
	a := goAdmin.DefaultConfig()
	a.Transport.AuthFailureStatuses[0] = 419

	b := goAdmin.DefaultConfig()
	if b.Transport.AuthFailureStatuses[0] != 401 {
		t.Fatal("expected each DefaultConfig call to return fresh slices")
	}
}
