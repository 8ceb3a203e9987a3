package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/aggregate"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/derive"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/schema"
)

type Config struct {
	Address string

	CKAN         ckan.Config
	ResourceUCAT string
	ResourceUCMT string

	DefaultSource string
	QueryMode     string
	MinDemandKW   float64
	TopN          int
	PageSize      int
	MaxPages      int
	OverFetch     int

	QueryCacheTTL  time.Duration
	SchemaCacheTTL time.Duration

	DBPath        string
	LeadsSeedPath string

	ScoreEnabled    bool
	ScoreParamsPath string
	Score           derive.ScoreParams
	Candidates      schema.Candidates

	LogFile  string
	LogLevel string

	// Warnings collects non-fatal problems (bad score file, unparsable
	// values) so the caller can log them once a logger exists.
	Warnings []string
}

// fileConfig is the optional YAML document named by CONFIG_PATH.
type fileConfig struct {
	Candidates map[string][]string `yaml:"candidates"`
	Score      yaml.Node           `yaml:"score"`
}

// Resources maps source aliases to datastore resource ids.
func (c Config) Resources() map[string]string {
	return map[string]string{
		"ucat": c.ResourceUCAT,
		"at":   c.ResourceUCAT,
		"ucmt": c.ResourceUCMT,
		"mt":   c.ResourceUCMT,
	}
}

// Load reads .env (existing variables win), the optional YAML file, then the
// environment. Only an unreadable or invalid CONFIG_PATH is fatal.
func Load() (Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Config{
		Address:       getEnv("API_ADDRESS", ":8080"),
		ResourceUCAT:  getEnv("RESOURCE_UCAT", ckan.ResourceUCAT),
		ResourceUCMT:  getEnv("RESOURCE_UCMT", ckan.ResourceUCMT),
		DefaultSource: getEnv("DEFAULT_SOURCE", "ucmt"),
		QueryMode:     strings.ToLower(getEnv("QUERY_MODE", "search")),
		DBPath:        getEnv("DB_PATH", "data/leads.db"),
		LeadsSeedPath: getEnv("LEADS_SEED_PATH", ""),
		LogFile:       getEnv("LOG_FILE", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Candidates:    schema.DefaultCandidates(),
		Score:         derive.DefaultScoreParams(),
	}

	def := ckan.DefaultConfig()
	cfg.CKAN = ckan.Config{
		BaseURL:     getEnv("CKAN_BASE_URL", def.BaseURL),
		UserAgent:   getEnv("USER_AGENT", def.UserAgent),
		Timeout:     cfg.envDuration("HTTP_TIMEOUT", def.Timeout),
		MaxAttempts: cfg.envInt("FETCH_ATTEMPTS", def.MaxAttempts),
		Backoff: ckan.Backoff{
			Base: cfg.envFloat("BACKOFF_BASE", def.Backoff.Base),
			Unit: def.Backoff.Unit,
			Cap:  cfg.envDuration("BACKOFF_CAP", def.Backoff.Cap),
		},
	}

	cfg.MinDemandKW = cfg.envFloat("MIN_DEMAND_KW", 0)
	cfg.TopN = cfg.envInt("TOP_N", aggregate.DefaultTopN)
	cfg.PageSize = cfg.envInt("PAGE_SIZE", aggregate.DefaultPageSize)
	cfg.MaxPages = cfg.envInt("MAX_PAGES", aggregate.DefaultMaxPages)
	cfg.OverFetch = cfg.envInt("OVERFETCH", aggregate.DefaultOverFetch)
	cfg.QueryCacheTTL = cfg.envDuration("QUERY_CACHE_TTL", 30*time.Minute)
	cfg.SchemaCacheTTL = cfg.envDuration("SCHEMA_CACHE_TTL", time.Hour)
	cfg.ScoreEnabled = cfg.envBool("SCORE_ENABLED", true)

	if path := getEnv("CONFIG_PATH", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	// SCORE_PARAMS_PATH wins over the score block of CONFIG_PATH.
	cfg.ScoreParamsPath = getEnv("SCORE_PARAMS_PATH", "")
	if cfg.ScoreParamsPath != "" {
		p, err := derive.LoadScoreParamsFromFile(cfg.ScoreParamsPath)
		if err != nil {
			cfg.warn("use default score params (reason: %v)", err)
		}
		cfg.Score = p
	}

	if cfg.QueryMode != "sql" && cfg.QueryMode != "search" {
		cfg.warn("QUERY_MODE=%q not supported, using search", cfg.QueryMode)
		cfg.QueryMode = "search"
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("unmarshal config file: %w", err)
	}
	if len(fc.Candidates) > 0 {
		c.Candidates = c.Candidates.Merge(fc.Candidates)
	}
	if !fc.Score.IsZero() {
		p := derive.DefaultScoreParams()
		if err := fc.Score.Decode(&p); err != nil {
			return fmt.Errorf("decode score params in %s: %w", path, err)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid score params in %s: %w", path, err)
		}
		c.Score = p
	}
	return nil
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) envInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.warn("%s=%q is not a positive integer, using %d", key, v, def)
		return def
	}
	return n
}

func (c *Config) envFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		c.warn("%s=%q is not a non-negative number, using %v", key, v, def)
		return def
	}
	return f
}

func (c *Config) envBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.warn("%s=%q is not a boolean, using %v", key, v, def)
		return def
	}
	return b
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func (c *Config) envDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	c.warn("%s=%q is not a duration, using %s", key, v, def)
	return def
}
