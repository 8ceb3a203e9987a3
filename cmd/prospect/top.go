package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/export"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/prospect"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/storage"
)

type topFlags struct {
	source  string
	mode    string
	minKW   float64
	top     int
	page    int
	asc     bool
	regions []string
	tiers   []string
	sectors []string
	text    string
	csvPath string
	shpPath string
	save    bool
	note    string
}

func newTopCmd(a *app) *cobra.Command {
	var f topFlags
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Fetch, rank and print the top consumers of a source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTop(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.source, "source", "", "ucat, ucmt or a resource id (default from DEFAULT_SOURCE)")
	fl.StringVar(&f.mode, "mode", "", "search or sql (default from QUERY_MODE)")
	fl.Float64Var(&f.minKW, "min-kw", -1, "minimum contracted demand in kW (default from MIN_DEMAND_KW)")
	fl.IntVar(&f.top, "top", 0, "number of consumers to keep (default from TOP_N)")
	fl.IntVar(&f.page, "page", 0, "page number, sql mode only")
	fl.BoolVar(&f.asc, "asc", false, "ascending order")
	fl.StringSliceVar(&f.regions, "region", nil, "keep only these UFs")
	fl.StringSliceVar(&f.tiers, "tier", nil, "keep only these tiers")
	fl.StringSliceVar(&f.sectors, "sector", nil, "keep only these sectors")
	fl.StringVarP(&f.text, "query", "q", "", "substring match on CNAE, address, distributor or municipality")
	fl.StringVar(&f.csvPath, "csv", "", "write CSV to this file ('-' for stdout)")
	fl.StringVar(&f.shpPath, "shp", "", "write a point shapefile to this .shp path")
	fl.BoolVar(&f.save, "save", false, "save every listed consumer as a lead")
	fl.StringVar(&f.note, "note", "", "note attached to saved leads")
	return cmd
}

func (a *app) runTop(cmd *cobra.Command, f topFlags) error {
	req := prospect.Request{
		Source:     f.source,
		Mode:       f.mode,
		TopN:       f.top,
		Page:       f.page,
		Descending: !f.asc,
		Filter: prospect.Filter{
			Regions: f.regions,
			Sectors: f.sectors,
			Text:    f.text,
		},
	}
	if f.minKW >= 0 {
		req.MinDemand = &f.minKW
	}
	for _, t := range f.tiers {
		req.Filter.Tiers = append(req.Filter.Tiers, domain.Tier(strings.ToUpper(strings.TrimSpace(t))))
	}

	resp, err := a.svc.Query(cmd.Context(), req)
	if err != nil {
		return err
	}
	for _, d := range resp.Result.Diagnostics {
		a.logger.Warn("query_diagnostic", "detail", d)
	}
	if resp.Result.Failed() {
		return errors.New("query failed: " + strings.Join(resp.Result.Diagnostics, "; "))
	}

	a.logger.Info("top_ready",
		"resource", resp.ResourceID,
		"mode", resp.Mode,
		"fetched", humanize.Comma(int64(resp.Result.Stats.Fetched)),
		"kept", len(resp.Result.Records),
		"listed", len(resp.Items),
		"state", string(resp.Result.State))

	scored := a.cfg.ScoreEnabled
	switch {
	case f.csvPath == "-":
		if err := export.WriteCSV(a.out, resp.Items, scored); err != nil {
			return err
		}
	case f.csvPath != "":
		if err := writeCSVFile(f.csvPath, resp.Items, scored); err != nil {
			return err
		}
		a.logger.Info("csv_written", "path", f.csvPath, "rows", len(resp.Items))
	}
	if f.shpPath != "" {
		if err := export.WriteShapefile(f.shpPath, resp.Items); err != nil {
			return err
		}
		a.logger.Info("shapefile_written", "path", f.shpPath, "points", len(resp.Items))
	}
	if f.save {
		if err := a.saveLeads(resp.ResourceID, resp.Items, f.note); err != nil {
			return err
		}
	}

	if f.csvPath == "" {
		if w, ok := terminalWidth(a.out); ok {
			printTable(a.out, resp.Items, w)
			fmt.Fprintf(a.out, "\n%s of %s kept rows listed (state %s)\n",
				humanize.Comma(int64(len(resp.Items))),
				humanize.Comma(int64(len(resp.Result.Records))),
				resp.Result.State)
			return nil
		}
		return export.WriteCSV(a.out, resp.Items, scored)
	}
	return nil
}

func writeCSVFile(path string, recs []domain.DerivedRecord, scored bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteCSV(f, recs, scored); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (a *app) saveLeads(resourceID string, recs []domain.DerivedRecord, note string) error {
	st, err := storage.Prepare(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	leads := make([]domain.Lead, 0, len(recs))
	for _, r := range recs {
		leads = append(leads, domain.NewLead(resourceID, r, note))
	}
	before, _ := st.CountLeads()
	if err := st.UpsertMany(leads); err != nil {
		return err
	}
	after, _ := st.CountLeads()
	a.logger.Info("leads_saved", "db", a.cfg.DBPath, "new", after-before, "skipped", len(leads)-(after-before))
	return nil
}
