package security

import (
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/clinicauth/internal/server"
)

func validConfig() *server.Config {
	c := server.DefaultConfig()
	c.JWT.AccessSecret = strings.Repeat("a", 32)
	c.JWT.RefreshSecret = strings.Repeat("b", 32)
	return &c
}

func hasWarning(r Report, substr string) bool {
	for _, w := range r.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestBuildReportDefaults(t *testing.T) {
	r, err := BuildReport(validConfig())
	if err != nil {
		t.Fatal(err)
	}
	if r.ProductionMode {
		t.Fatal("default env is not prod")
	}
	if r.AccessTTL != 24*time.Hour || r.LockoutThreshold != 5 || r.LockoutDuration != 2*time.Hour {
		t.Fatalf("unexpected defaults: %+v", r)
	}
	if !r.RateLimitingActive || r.RateLimitBackend != "memory" {
		t.Fatalf("rate limiting: %v %q", r.RateLimitingActive, r.RateLimitBackend)
	}
	if r.Argon2.Memory != 64*1024 {
		t.Fatalf("argon2 memory = %d", r.Argon2.Memory)
	}
	if !hasWarning(r, "no smtp host") {
		t.Fatalf("expected smtp warning, got %v", r.Warnings)
	}
	if hasWarning(r, "memory storage") {
		t.Fatal("storage warnings are prod only")
	}
}

func TestBuildReportProdWarnings(t *testing.T) {
	c := validConfig()
	c.App.Env = "prod"
	c.Rate.Enabled = false
	c.SMTP.Host = "smtp.example.com"

	r, err := BuildReport(c)
	if err != nil {
		t.Fatal(err)
	}
	if !r.ProductionMode || r.RateLimitingActive || r.RateLimitBackend != "" {
		t.Fatalf("unexpected report: %+v", r)
	}
	for _, w := range []string{"rate limiting is disabled", "memory storage"} {
		if !hasWarning(r, w) {
			t.Fatalf("missing warning %q in %v", w, r.Warnings)
		}
	}
	if hasWarning(r, "no smtp host") {
		t.Fatal("smtp is configured")
	}
}

func TestBuildReportRejectsUnknownRole(t *testing.T) {
	c := validConfig()
	c.Account.SelfRegisterRoles = []string{"janitor"}
	if _, err := BuildReport(c); err == nil {
		t.Fatal("expected error")
	}
}
