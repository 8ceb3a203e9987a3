package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/aggregate"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/config"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/derive"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/logging"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/metrics"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/prospect"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/schema"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is what every subcommand needs once config is loaded.
type app struct {
	cfg    config.Config
	logger *logging.Logger
	svc    *prospect.Service
	out    io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out}
	var level string

	root := &cobra.Command{
		Use:           "prospect",
		Short:         "Rank Grupo A consumers from the ANEEL open data portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(errOut, level)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Close()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&level, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(newTopCmd(a), newProbeCmd(a), newLeadsCmd(a))
	return root
}

func (a *app) setup(errOut io.Writer, level string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if level == "" {
		level = cfg.LogLevel
	}
	logger, err := logging.NewTo(errOut, cfg.LogFile, level)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config_warning", "detail", w)
	}

	// CLI runs are one-shot; metrics only feed the shared code paths.
	m := metrics.New()
	client := ckan.New(cfg.CKAN, nil, logger.Logger, m)
	prober := schema.NewProber(client, cfg.Candidates, cfg.SchemaCacheTTL, m.CacheObserver("schema"), logger.Logger)
	engine := derive.NewEngine(cfg.Score, cfg.ScoreEnabled)
	collector := aggregate.New(client, engine, logger.Logger, m)

	a.cfg = cfg
	a.logger = logger
	a.svc = prospect.NewService(prober, collector, cfg.ScoreEnabled, prospect.Options{
		DefaultSource: cfg.DefaultSource,
		DefaultMode:   cfg.QueryMode,
		MinDemand:     cfg.MinDemandKW,
		TopN:          cfg.TopN,
		PageSize:      cfg.PageSize,
		MaxPages:      cfg.MaxPages,
		OverFetch:     cfg.OverFetch,
		CleanDemand:   true,
		CacheTTL:      cfg.QueryCacheTTL,
		Resources:     cfg.Resources(),
	}, logger.Logger)
	return nil
}
