package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadRetrievalDefaults(t *testing.T) {
	clearEnv(t, "CONFIG_FILE", "TOP_K_CANDIDATES", "TOP_K_FINAL", "CLASSIFIER_LOW_CONFIDENCE", "SEARCH_BRANCH_TIMEOUT", "LLM_PROVIDER", "REDIS_ADDRS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TopKCandidates != 20 || cfg.TopKFinal != 5 {
		t.Fatalf("expected top-k 20/5, got %d/%d", cfg.TopKCandidates, cfg.TopKFinal)
	}
	if cfg.ClassifierLowConfidence != 0.6 {
		t.Fatalf("expected low confidence 0.6, got %v", cfg.ClassifierLowConfidence)
	}
	if cfg.BranchTimeout != 10*time.Second {
		t.Fatalf("expected branch timeout 10s, got %v", cfg.BranchTimeout)
	}
	if cfg.LLMProvider != "ollama" || cfg.RedisAddrs != nil {
		t.Fatalf("unexpected provider defaults %+v", cfg)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	clearEnv(t, "CONFIG_FILE", "LLM_PROVIDER")
	t.Setenv("TOP_K_CANDIDATES", "40")
	t.Setenv("TOP_K_FINAL", "8")
	t.Setenv("SEARCH_BRANCH_TIMEOUT", "2.5")
	t.Setenv("QUERY_TIMEOUT", "90s")
	t.Setenv("REDIS_ADDRS", "redis-a:6379, redis-b:6379")
	t.Setenv("API_RATE_LIMIT_RPS", "12.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TopKCandidates != 40 || cfg.TopKFinal != 8 {
		t.Fatalf("unexpected top-k %d/%d", cfg.TopKCandidates, cfg.TopKFinal)
	}
	if cfg.BranchTimeout != 2500*time.Millisecond || cfg.QueryTimeout != 90*time.Second {
		t.Fatalf("unexpected timeouts %v/%v", cfg.BranchTimeout, cfg.QueryTimeout)
	}
	if !reflect.DeepEqual(cfg.RedisAddrs, []string{"redis-a:6379", "redis-b:6379"}) {
		t.Fatalf("unexpected redis addrs %v", cfg.RedisAddrs)
	}
	if cfg.APIRateLimitRPS != 12.5 {
		t.Fatalf("unexpected rps %v", cfg.APIRateLimitRPS)
	}
}

func TestLoadFileOverlayEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "top_k_final: 3\nQDRANT_COLLECTION: lamps\nOPENAI_API_KEY: ${TEST_OPENAI_KEY}\nREDIS_ADDRS:\n  - r1:6379\n  - r2:6379\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	t.Setenv("QDRANT_COLLECTION", "from-env")
	clearEnv(t, "TOP_K_FINAL", "TOP_K_CANDIDATES", "OPENAI_API_KEY", "REDIS_ADDRS", "LLM_PROVIDER")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TopKFinal != 3 {
		t.Fatalf("expected file value 3, got %d", cfg.TopKFinal)
	}
	if cfg.QdrantCollection != "from-env" {
		t.Fatalf("expected env to win, got %q", cfg.QdrantCollection)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("expected ${VAR} expansion, got %q", cfg.OpenAIAPIKey)
	}
	if len(cfg.RedisAddrs) != 2 {
		t.Fatalf("expected list from yaml sequence, got %v", cfg.RedisAddrs)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidate(t *testing.T) {
	base := Config{LLMProvider: "ollama", TopKCandidates: 20, TopKFinal: 5, ClassifierLowConfidence: 0.6}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := base
	bad.TopKFinal = 30
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected top-k error")
	}
	bad = base
	bad.LLMProvider = "openai"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected missing key error")
	}
	bad = base
	bad.LLMProvider = "bedrock"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
