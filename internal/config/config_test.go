package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

func noEnvFile(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoad_Defaults(t *testing.T) {
	noEnvFile(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != ":8080" || cfg.QueryMode != "search" || cfg.DefaultSource != "ucmt" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.CKAN.BaseURL != ckan.DefaultBaseURL || cfg.CKAN.MaxAttempts != 4 || cfg.CKAN.Backoff.Cap != 8*time.Second {
		t.Fatalf("ckan=%+v", cfg.CKAN)
	}
	if cfg.QueryCacheTTL != 30*time.Minute || cfg.SchemaCacheTTL != time.Hour {
		t.Fatalf("ttl query=%s schema=%s", cfg.QueryCacheTTL, cfg.SchemaCacheTTL)
	}
	if cfg.Resources()["at"] != ckan.ResourceUCAT || cfg.Resources()["ucmt"] != ckan.ResourceUCMT {
		t.Fatalf("resources=%v", cfg.Resources())
	}
	if !cfg.ScoreEnabled || len(cfg.Warnings) != 0 {
		t.Fatalf("score=%v warnings=%v", cfg.ScoreEnabled, cfg.Warnings)
	}
}

func TestLoad_EnvOverridesAndWarnings(t *testing.T) {
	noEnvFile(t)
	t.Setenv("TOP_N", "50")
	t.Setenv("MIN_DEMAND_KW", "500")
	t.Setenv("FETCH_ATTEMPTS", "6")
	t.Setenv("HTTP_TIMEOUT", "45")
	t.Setenv("QUERY_CACHE_TTL", "10m")
	t.Setenv("PAGE_SIZE", "zero")
	t.Setenv("QUERY_MODE", "SQL")
	t.Setenv("SCORE_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TopN != 50 || cfg.MinDemandKW != 500 || cfg.CKAN.MaxAttempts != 6 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.CKAN.Timeout != 45*time.Second || cfg.QueryCacheTTL != 10*time.Minute {
		t.Fatalf("timeout=%s ttl=%s", cfg.CKAN.Timeout, cfg.QueryCacheTTL)
	}
	if cfg.PageSize != 1000 || len(cfg.Warnings) != 1 {
		t.Fatalf("page size=%d warnings=%v", cfg.PageSize, cfg.Warnings)
	}
	if cfg.QueryMode != "sql" || cfg.ScoreEnabled {
		t.Fatalf("mode=%s score=%v", cfg.QueryMode, cfg.ScoreEnabled)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("API_ADDRESS=:9999\nUSER_AGENT=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("API_ADDRESS", ":7070")
	// godotenv пишет в окружение процесса: Setenv вернёт старое значение после теста
	t.Setenv("USER_AGENT", "placeholder")
	os.Unsetenv("USER_AGENT")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Address != ":7070" {
		t.Fatalf("address=%s want :7070", cfg.Address)
	}
	if cfg.CKAN.UserAgent != "from-dotenv" {
		t.Fatalf("user agent=%s", cfg.CKAN.UserAgent)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	noEnvFile(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
candidates:
  demand: [dem_contratada_kw]
score:
  demand_weight: 60
  tier_points:
    AAA: 30
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Candidates[domain.RoleDemand]; len(got) < 2 || got[0] != "dem_contratada_kw" || got[1] != "dem_cont" {
		t.Fatalf("demand candidates=%v", got)
	}
	if cfg.Score.DemandWeight != 60 || cfg.Score.TierPoints[domain.TierAAA] != 30 {
		t.Fatalf("score=%+v", cfg.Score)
	}
	if cfg.Score.DemandCeilKW != 500000 {
		t.Fatalf("unset fields must keep defaults: %+v", cfg.Score)
	}

	if err := os.WriteFile(path, []byte("score:\n  demand_ceil_kw: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("want error for invalid score block")
	}
}

func TestLoad_BadScoreParamsFileFallsBack(t *testing.T) {
	noEnvFile(t)
	t.Setenv("SCORE_PARAMS_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Score.DemandWeight != 70 || len(cfg.Warnings) != 1 {
		t.Fatalf("score=%+v warnings=%v", cfg.Score, cfg.Warnings)
	}
}
