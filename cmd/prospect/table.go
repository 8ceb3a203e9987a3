package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/export"
)

// terminalWidth reports the column count when w is an interactive terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 100, true
	}
	return width, true
}

const fixedCols = 4 + 3 + 2 + 3 + 4 + 3 + 12 + 3 + 6 + 3 + 18 + 3

// printTable renders one line per record, giving what is left of the
// terminal width to the address.
func printTable(w io.Writer, recs []domain.DerivedRecord, width int) {
	addrW := width - fixedCols
	if addrW < 20 {
		addrW = 20
	}
	fmt.Fprintf(w, "%4s | %-2s | %-4s | %12s | %6s | %-18s | %s\n", "#", "UF", "TIER", "DEMAND kW", "SCORE", "SECTOR", "ADDRESS")
	fmt.Fprintln(w, strings.Repeat("-", fixedCols+addrW))
	for i, r := range recs {
		score := "-"
		if r.Score != nil {
			score = fmt.Sprintf("%.1f", r.Score.Total)
		}
		fmt.Fprintf(w, "%4d | %-2s | %-4s | %12s | %6s | %-18s | %s\n",
			i+1, r.Region, r.Tier, export.FormatKW(r.DemandKW), score,
			clip(r.Sector, 18), clip(r.Address(), addrW))
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-1]) + "…"
}
