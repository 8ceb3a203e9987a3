package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [source]",
		Short: "Show the columns of a source and the role each one maps to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := ""
			if len(args) == 1 {
				src = args[0]
			}
			pr, err := a.svc.Columns(cmd.Context(), src)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "resource %s (%d columns)\n", pr.ResourceID, len(pr.Columns))
			for _, c := range pr.Columns {
				fmt.Fprintf(a.out, "  %s\n", c)
			}

			m := pr.Mapping.AsMap()
			roles := make([]string, 0, len(m))
			for r := range m {
				roles = append(roles, r)
			}
			sort.Strings(roles)
			fmt.Fprintln(a.out, "mapping:")
			for _, r := range roles {
				fmt.Fprintf(a.out, "  %-14s -> %s\n", r, m[r])
			}
			return nil
		},
	}
}
