package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ADMIN_KEY", "admin-secret")
}

func TestNew_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("Expected default port '3000', got '%s'", cfg.Port)
	}
	if cfg.Addr() != ":3000" {
		t.Errorf("Expected addr ':3000', got '%s'", cfg.Addr())
	}
	if cfg.ServiceName != "VEO3 License API" {
		t.Errorf("Expected default service name, got '%s'", cfg.ServiceName)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("Expected memory store by default, got '%s'", cfg.StoreDriver)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origin, got %v", cfg.AllowedOrigins)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
	if cfg.StripeEnabled() {
		t.Errorf("Expected stripe disabled without webhook secret")
	}
	if cfg.EmailEnabled() {
		t.Errorf("Expected email disabled without SMTP settings")
	}
}

func TestNew_FromEnvironment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", "/tmp/licenses.db")
	t.Setenv("ALLOWED_ORIGINS", "https://veo3.app,https://www.veo3.app")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("SMTP_USERNAME", "user")
	t.Setenv("SMTP_PASSWORD", "pass")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Addr() != ":8080" {
		t.Errorf("Expected addr ':8080', got '%s'", cfg.Addr())
	}
	if cfg.StoreDriver != DriverSQLite || cfg.DatabasePath != "/tmp/licenses.db" {
		t.Errorf("Expected sqlite store at /tmp/licenses.db, got %s at %s", cfg.StoreDriver, cfg.DatabasePath)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 origins, got %v", cfg.AllowedOrigins)
	}
	if !cfg.StripeEnabled() {
		t.Errorf("Expected stripe enabled")
	}
	if !cfg.EmailEnabled() {
		t.Errorf("Expected email enabled")
	}
}

func TestNew_StripeNeedsOnlyWebhookSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STRIPE_SECRET", "sk_test_123")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.StripeEnabled() {
		t.Errorf("Expected stripe disabled without STRIPE_WEBHOOK_SECRET")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		expectedErr []string
	}{
		{
			name:        "missing admin key",
			env:         map[string]string{"ADMIN_KEY": ""},
			expectedErr: []string{"AdminKey"},
		},
		{
			name:        "unknown store driver",
			env:         map[string]string{"STORE_DRIVER": "mongo"},
			expectedErr: []string{"StoreDriver"},
		},
		{
			name:        "sqlite without path",
			env:         map[string]string{"STORE_DRIVER": "sqlite"},
			expectedErr: []string{"DATABASE_PATH"},
		},
		{
			name:        "redis without url",
			env:         map[string]string{"STORE_DRIVER": "redis"},
			expectedErr: []string{"REDIS_URL"},
		},
		{
			name:        "partial smtp",
			env:         map[string]string{"SMTP_HOST": "smtp.example.com"},
			expectedErr: []string{"SMTP_HOST"},
		},
		{
			name:        "non numeric port",
			env:         map[string]string{"PORT": "http"},
			expectedErr: []string{"Port"},
		},
		{
			name: "all problems reported together",
			env: map[string]string{
				"ADMIN_KEY":    "",
				"STORE_DRIVER": "file",
				"LOG_LEVEL":    "verbose",
			},
			expectedErr: []string{"AdminKey", "DATABASE_PATH", "LogLevel"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := New()
			if err == nil {
				t.Fatalf("Expected validation error")
			}
			for _, want := range tt.expectedErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Expected error to mention '%s', got: %v", want, err)
				}
			}
		})
	}
}
