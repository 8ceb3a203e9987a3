package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/aggregate"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/config"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/derive"
	httpapi "github.com/denisok6893-rgb/grupoa-prospecting/internal/http"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/logging"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/metrics"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/prospect"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/schema"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		log.Fatalf("open log: %v", err)
	}
	defer logger.Close()
	for _, w := range cfg.Warnings {
		logger.Warn("config_warning", "detail", w)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("store_open_failed", "path", cfg.DBPath, "error", err.Error())
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New()
	client := ckan.New(cfg.CKAN, nil, logger.Logger, m)
	prober := schema.NewProber(client, cfg.Candidates, cfg.SchemaCacheTTL, m.CacheObserver("schema"), logger.Logger)
	engine := derive.NewEngine(cfg.Score, cfg.ScoreEnabled)
	collector := aggregate.New(client, engine, logger.Logger, m)
	svc := prospect.NewService(prober, collector, cfg.ScoreEnabled, prospect.Options{
		DefaultSource: cfg.DefaultSource,
		DefaultMode:   cfg.QueryMode,
		MinDemand:     cfg.MinDemandKW,
		TopN:          cfg.TopN,
		PageSize:      cfg.PageSize,
		MaxPages:      cfg.MaxPages,
		OverFetch:     cfg.OverFetch,
		CleanDemand:   true,
		CacheTTL:      cfg.QueryCacheTTL,
		CacheObserver: m.CacheObserver("query"),
		Resources:     cfg.Resources(),
	}, logger.Logger)

	srv := httpapi.NewServer(svc, &httpapi.SQLiteLeadsRepo{Store: store}, m, logger.Logger)
	srv.AccessLog = os.Stdout
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			defer f.Close()
			srv.AccessLog = io.MultiWriter(os.Stdout, f)
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.Address,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listening", "address", cfg.Address, "mode", cfg.QueryMode, "scoring", cfg.ScoreEnabled)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("api_stopped")
}

// openStore opens the lead database and seeds it once when empty.
func openStore(cfg config.Config, logger *logging.Logger) (*storage.SQLiteStore, error) {
	store, err := storage.Prepare(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	if cfg.LeadsSeedPath == "" {
		return store, nil
	}
	n, err := store.CountLeads()
	if err != nil || n > 0 {
		return store, err
	}
	leads, err := storage.LoadLeadsFromFile(cfg.LeadsSeedPath)
	if err != nil {
		logger.Warn("leads_seed_skipped", "reason", err.Error())
		return store, nil
	}
	if err := store.UpsertMany(leads); err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("leads_seeded", "count", len(leads))
	return store, nil
}
