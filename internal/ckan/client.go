package ckan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/metrics"
)

const (
	DefaultBaseURL   = "https://dadosabertos.aneel.gov.br/api/3/action"
	DefaultUserAgent = "grupoa-prospecting/1.0"

	maxDiagnostic = 300
)

// Query is one datastore request. A non-empty SQL selects the
// datastore_search_sql endpoint; otherwise ResourceID/Limit/Offset drive a
// plain datastore_search page with no server-side filter.
type Query struct {
	ResourceID string
	Limit      int
	Offset     int
	SQL        string
}

func (q Query) Mode() string {
	if q.SQL != "" {
		return "sql"
	}
	return "search"
}

type Field struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Result never carries an error: a call that exhausted its retries comes back
// with no records and a human-readable Diagnostic.
type Result struct {
	Records    []domain.RawRecord
	Fields     []Field
	Total      int
	Attempts   int
	Diagnostic string
}

func (r Result) Failed() bool { return r.Diagnostic != "" }

// Backoff computes the delay before retry n (0-based) as min(Cap, Unit*Base^n).
type Backoff struct {
	Base float64
	Unit time.Duration
	Cap  time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 1.6, Unit: time.Second, Cap: 8 * time.Second}
}

type Config struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     Backoff
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		UserAgent:   DefaultUserAgent,
		Timeout:     90 * time.Second,
		MaxAttempts: 4,
		Backoff:     DefaultBackoff(),
	}
}

type Client struct {
	cfg     Config
	h       *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, httpClient *http.Client, logger *slog.Logger, m *metrics.Metrics) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff.Base < 1 {
		cfg.Backoff.Base = def.Backoff.Base
	}
	if cfg.Backoff.Unit <= 0 {
		cfg.Backoff.Unit = def.Backoff.Unit
	}
	if cfg.Backoff.Cap <= 0 {
		cfg.Backoff.Cap = def.Backoff.Cap
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, h: httpClient, logger: logger, metrics: m}
}

var errDecode = errors.New("decode response")

// StatusError is a non-200 answer from the datastore.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// QueryError is a 200 answer whose body reports success=false.
type QueryError struct {
	Detail string
}

func (e *QueryError) Error() string { return "query failed: " + e.Detail }

type envelope struct {
	Success bool            `json:"success"`
	Error   json.RawMessage `json:"error"`
	Result  struct {
		Records []domain.RawRecord `json:"records"`
		Fields  []Field            `json:"fields"`
		Total   int                `json:"total"`
	} `json:"result"`
}

// Fetch runs q, retrying 429, 5xx, transport and decode failures, and
// success=false bodies up to MaxAttempts calls in total.
func (c *Client) Fetch(ctx context.Context, q Query) Result {
	u, err := c.endpoint(q)
	if err != nil {
		return Result{Diagnostic: truncate("EXC: " + err.Error())}
	}

	var out Result
	op := func() error {
		out.Attempts++
		env, err := c.do(ctx, u)
		if err != nil {
			c.metrics.FetchAttempt(outcome(err))
			return err
		}
		c.metrics.FetchAttempt("ok")
		out.Records = env.Result.Records
		out.Fields = env.Result.Fields
		out.Total = env.Result.Total
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.FetchRetry()
		c.logger.Warn("ckan_retry",
			"mode", q.Mode(),
			"resource", q.ResourceID,
			"attempt", out.Attempts,
			"wait", wait.String(),
			"error", truncate(err.Error()))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		c.metrics.FetchExhausted()
		diag := diagnostic(err)
		c.logger.Warn("ckan_query_failed",
			"mode", q.Mode(),
			"resource", q.ResourceID,
			"attempts", out.Attempts,
			"diagnostic", diag)
		return Result{Attempts: out.Attempts, Diagnostic: diag}
	}

	c.logger.Debug("ckan_query_ok",
		"mode", q.Mode(),
		"resource", q.ResourceID,
		"offset", q.Offset,
		"records", len(out.Records),
		"attempts", out.Attempts)
	return out
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Backoff.Unit
	b.Multiplier = c.cfg.Backoff.Base
	b.MaxInterval = c.cfg.Backoff.Cap
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Client) endpoint(q Query) (string, error) {
	vals := url.Values{}
	var path string
	if q.SQL != "" {
		path = "/datastore_search_sql"
		vals.Set("sql", q.SQL)
	} else {
		if strings.TrimSpace(q.ResourceID) == "" {
			return "", errors.New("missing resource id")
		}
		path = "/datastore_search"
		vals.Set("resource_id", q.ResourceID)
		if q.Limit > 0 {
			vals.Set("limit", strconv.Itoa(q.Limit))
		}
		if q.Offset > 0 {
			vals.Set("offset", strconv.Itoa(q.Offset))
		}
	}
	u, err := url.Parse(c.cfg.BaseURL + path)
	if err != nil {
		return "", err
	}
	u.RawQuery = vals.Encode()
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, u string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnostic))
		serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		if retryableStatus(resp.StatusCode) {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	var env envelope
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if !env.Success {
		detail := string(env.Error)
		if detail == "" {
			detail = "success=false"
		}
		return nil, &QueryError{Detail: detail}
	}
	return &env, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func outcome(err error) string {
	var serr *StatusError
	var qerr *QueryError
	switch {
	case errors.As(err, &serr):
		if retryableStatus(serr.Code) {
			return "retryable_status"
		}
		return "fatal_status"
	case errors.As(err, &qerr):
		return "query_failed"
	case errors.Is(err, errDecode):
		return "decode_error"
	default:
		return "transport_error"
	}
}

func diagnostic(err error) string {
	var serr *StatusError
	if errors.As(err, &serr) {
		return truncate(serr.Error())
	}
	return truncate("EXC: " + err.Error())
}

func truncate(s string) string {
	if len(s) <= maxDiagnostic {
		return s
	}
	return strings.ToValidUTF8(s[:maxDiagnostic], "")
}
