package canvasconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsWithNoFileOrOptions(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defaults := Defaults()
	if cfg.HTTPAddr != defaults.HTTPAddr || cfg.StoreKind != defaults.StoreKind || cfg.EmitterKind != defaults.EmitterKind || cfg.MaxConcurrentBatches != defaults.MaxConcurrentBatches {
		t.Errorf("expected bare Load to equal Defaults(), got %+v", cfg)
	}
}

func TestLoadAppliesYAMLFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("httpAddr: \":9090\"\nstoreKind: sqlite\nstoreDSN: /tmp/canvas.db\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("expected file's httpAddr to apply, got %q", cfg.HTTPAddr)
	}
	if cfg.StoreKind != StoreSQLite || cfg.StoreDSN != "/tmp/canvas.db" {
		t.Errorf("expected sqlite store config from file, got %+v", cfg)
	}
}

func TestLoadOptionsOverrideEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("httpAddr: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CANVASENGINE_HTTP_ADDR", ":7070")

	cfg, err := Load(path, WithHTTPAddr(":6060"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":6060" {
		t.Errorf("expected the passed Option to win over file and env, got %q", cfg.HTTPAddr)
	}
}

func TestLoadRejectsSQLiteWithoutDSN(t *testing.T) {
	_, err := Load("", WithStore(StoreSQLite, ""))
	if err == nil {
		t.Fatal("expected an error for sqlite with an empty DSN")
	}
}

func TestLoadRejectsUnknownEmitterKind(t *testing.T) {
	_, err := Load("", WithEmitter(EmitterKind("carrier-pigeon"), false))
	if err == nil {
		t.Fatal("expected an error for an unknown emitterKind")
	}
}

func TestWithDispatchLimitsIgnoresNonPositiveValues(t *testing.T) {
	cfg, err := Load("", WithDispatchLimits(0, -5))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defaults := Defaults()
	if cfg.MaxConcurrentBatches != defaults.MaxConcurrentBatches || cfg.MaxDispatchesPerSecond != defaults.MaxDispatchesPerSecond {
		t.Errorf("expected non-positive overrides to be ignored, got %+v", cfg)
	}
}

func TestWithLLMAPIKeySetsProviderOverride(t *testing.T) {
	cfg, err := Load("", WithLLMAPIKey("anthropic", "sk-test"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMAPIKeys["anthropic"] != "sk-test" {
		t.Errorf("expected anthropic key override, got %+v", cfg.LLMAPIKeys)
	}
}

func TestApplyEnvReadsPerProviderAPIKeys(t *testing.T) {
	t.Setenv("CANVASENGINE_OPENAI_API_KEY", "sk-openai-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMAPIKeys["openai"] != "sk-openai-test" {
		t.Errorf("expected openai key from environment, got %+v", cfg.LLMAPIKeys)
	}
}
