package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LAGO_API_URL", "https://lago.example.com")
	t.Setenv("LAGO_API_KEY", "lago-key")
	t.Setenv("CF_ACCOUNT_ID", "acct")
	t.Setenv("CF_D1_DATABASE_ID", "db")
	t.Setenv("CF_API_TOKEN", "token")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreDriver != StoreD1 {
		t.Errorf("StoreDriver = %q, want d1", cfg.StoreDriver)
	}
	if cfg.FreeTierQuestions != 3 {
		t.Errorf("FreeTierQuestions = %d, want 3", cfg.FreeTierQuestions)
	}
	if cfg.PlanCodeDaily != "daily_9" || cfg.PlanCodeWeekly != "weekly_49" {
		t.Errorf("plan codes = %q/%q", cfg.PlanCodeDaily, cfg.PlanCodeWeekly)
	}
	if cfg.DedupTTL != 300*time.Second {
		t.Errorf("DedupTTL = %v", cfg.DedupTTL)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.WhatsApp.SendRate != 20 || cfg.WhatsApp.SendBurst != 40 {
		t.Errorf("send throttle = %v/%d", cfg.WhatsApp.SendRate, cfg.WhatsApp.SendBurst)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by default")
	}
	if cfg.Addr() != ":8000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadNestedKeys(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDRESSES", "r1:6379,r2:6379")
	t.Setenv("WA_VERIFY_TOKEN", "verify-me")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Redis.Enabled || len(cfg.Redis.Addresses) != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.WhatsApp.VerifyToken != "verify-me" {
		t.Errorf("VerifyToken = %q", cfg.WhatsApp.VerifyToken)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "postgres"}},
		{"openai without key", map[string]string{"AI_PROVIDER": "openai"}},
		{"negative free tier", map[string]string{"FREE_TIER_QUESTIONS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingLago(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("LAGO_API_URL", "")
	t.Setenv("LAGO_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without billing provider settings")
	}
}
