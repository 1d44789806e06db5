package config

import (
	"testing"
)

func validConfig() Config {
	cfg := Config{}
	cfg.HTTP.Port = 8080
	cfg.Database.Addrs = []string{"127.0.0.1:6379"}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.HTTP.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for invalid port")
		}
	})

	t.Run("missing addrs", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Addrs = nil
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing database addrs")
		}
	})

	t.Run("api key without model", func(t *testing.T) {
		cfg := validConfig()
		cfg.Embedding.APIKey = "sk-test"
		cfg.Embedding.Model = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error when api_key is set without a model")
		}
	})

	t.Run("no api key needs no model", func(t *testing.T) {
		cfg := validConfig()
		cfg.Embedding.APIKey = ""
		cfg.Embedding.Model = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("text search disabled config must validate, got %v", err)
		}
	})

	t.Run("default page size above max", func(t *testing.T) {
		cfg := validConfig()
		cfg.Query.DefaultPageSize = 200
		cfg.Query.MaxPageSize = 100
		if err := cfg.Validate(); err == nil {
			t.Error("expected error when default page size exceeds max")
		}
	})

	t.Run("export page size above truncation limit", func(t *testing.T) {
		cfg := validConfig()
		cfg.Export.PageSize = 20000
		cfg.Export.TruncationLimit = 10000
		if err := cfg.Validate(); err == nil {
			t.Error("expected error when export page size exceeds the truncation limit")
		}
	})
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Database.KeyPrefix != "colex:" {
		t.Errorf("expected default key prefix, got %q", cfg.Database.KeyPrefix)
	}
	if cfg.Query.DefaultPageSize != 20 || cfg.Query.MaxPageSize != 100 {
		t.Errorf("unexpected page size defaults: %d/%d",
			cfg.Query.DefaultPageSize, cfg.Query.MaxPageSize)
	}
	if cfg.Query.CountCacheTTLSec != 60 {
		t.Errorf("expected count cache TTL 60, got %d", cfg.Query.CountCacheTTLSec)
	}
	if cfg.Embedding.CacheTTLSec != 3600 {
		t.Errorf("expected embedding cache TTL 3600, got %d", cfg.Embedding.CacheTTLSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 120 {
		t.Errorf("expected write timeout 120, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Export.RequestTimeoutSec != 120 {
		t.Errorf("expected export timeout 120, got %d", cfg.Export.RequestTimeoutSec)
	}
	if cfg.Export.TruncationLimit != 10000 {
		t.Errorf("expected truncation limit 10000, got %d", cfg.Export.TruncationLimit)
	}
	if cfg.Export.PageSize != 1000 {
		t.Errorf("expected export page size 1000, got %d", cfg.Export.PageSize)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := Config{}
	cfg.Query.DefaultPageSize = 50
	cfg.Database.KeyPrefix = "other:"
	cfg.ApplyDefaults()

	if cfg.Query.DefaultPageSize != 50 {
		t.Errorf("explicit page size must survive, got %d", cfg.Query.DefaultPageSize)
	}
	if cfg.Database.KeyPrefix != "other:" {
		t.Errorf("explicit key prefix must survive, got %q", cfg.Database.KeyPrefix)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("COLEX_TEST_VAR", "hello")

	got := string(expandEnvVars([]byte("a: ${COLEX_TEST_VAR}")))
	if got != "a: hello" {
		t.Errorf("expected substitution, got %q", got)
	}

	got = string(expandEnvVars([]byte("a: ${COLEX_UNSET_VAR:-fallback}")))
	if got != "a: fallback" {
		t.Errorf("expected default value, got %q", got)
	}

	got = string(expandEnvVars([]byte("a: ${COLEX_UNSET_VAR}")))
	if got != "a: " {
		t.Errorf("expected empty substitution, got %q", got)
	}
}
