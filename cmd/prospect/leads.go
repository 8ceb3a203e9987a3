package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/derive"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/export"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/storage"
)

func newLeadsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Manage saved leads",
	}
	cmd.AddCommand(newLeadsListCmd(a), newLeadsAddCmd(a), newLeadsRmCmd(a))
	return cmd
}

func (a *app) withStore(fn func(*storage.SQLiteStore) error) error {
	st, err := storage.Prepare(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newLeadsListCmd(a *app) *cobra.Command {
	var f storage.LeadFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved leads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(st *storage.SQLiteStore) error {
				items, total, err := st.ListLeadsFiltered(f)
				if err != nil {
					return err
				}
				for _, l := range items {
					score := "-"
					if l.Score != nil {
						score = fmt.Sprintf("%.1f", *l.Score)
					}
					fmt.Fprintf(a.out, "%-36s | %-2s | %-3s | %12s | %5s | %-20s | %s\n",
						l.ID, l.Region, l.Tier, export.FormatKW(l.DemandKW), score,
						clip(l.ConsumerID, 20), humanize.Time(l.CreatedAt))
				}
				fmt.Fprintf(a.out, "%d of %s leads\n", len(items), humanize.Comma(int64(total)))
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.Limit, "limit", 20, "page size")
	fl.IntVar(&f.Offset, "offset", 0, "rows to skip")
	fl.StringVar(&f.Region, "region", "", "UF filter")
	fl.StringVar(&f.Tier, "tier", "", "tier filter")
	fl.Float64Var(&f.MinDemand, "min-kw", 0, "minimum demand in kW")
	fl.StringVar(&f.Sort, "sort", "", "demand_desc, demand_asc or score_desc (default newest first)")
	return cmd
}

func newLeadsAddCmd(a *app) *cobra.Command {
	var (
		l   domain.Lead
		mun int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a consumer by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(l.ResourceID) == "" {
				l.ResourceID = a.cfg.Resources()[strings.ToLower(a.cfg.DefaultSource)]
			}
			if l.DemandKW < 0 {
				return errors.New("demand must not be negative")
			}
			if cmd.Flags().Changed("municipality") {
				l.MunicipalityCode = &mun
			}
			if l.Tier == "" {
				l.Tier = derive.TierFor(l.DemandKW)
			}
			if l.Region == "" {
				l.Region = derive.Region(l.MunicipalityCode)
			}
			return a.withStore(func(st *storage.SQLiteStore) error {
				saved, err := st.CreateLead(l)
				if errors.Is(err, storage.ErrDuplicateLead) {
					return fmt.Errorf("consumer %s already saved for %s", l.ConsumerID, l.ResourceID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, saved.ID)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&l.ResourceID, "resource", "", "resource id (default: DEFAULT_SOURCE)")
	fl.StringVar(&l.ConsumerID, "consumer", "", "consumer unit id")
	fl.Float64Var(&l.DemandKW, "demand-kw", 0, "contracted demand in kW")
	fl.Float64Var(&l.Latitude, "lat", 0, "latitude")
	fl.Float64Var(&l.Longitude, "lon", 0, "longitude")
	fl.IntVar(&mun, "municipality", 0, "IBGE municipality code")
	fl.StringVar(&l.Address, "address", "", "street address")
	fl.StringVar(&l.Sector, "sector", "", "sector label")
	fl.StringVar(&l.Note, "note", "", "free text")
	return cmd
}

func newLeadsRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete saved leads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(st *storage.SQLiteStore) error {
				for _, id := range args {
					ok, err := st.DeleteLead(id)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("lead %s not found", id)
					}
				}
				return nil
			})
		},
	}
}
