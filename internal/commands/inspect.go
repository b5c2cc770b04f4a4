package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"marketstructure/internal/history"
	"marketstructure/internal/keylevel"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var inspectHistory string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a per-day summary of a history document",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := history.FileStore{Path: inspectHistory}.Load(context.Background())
		if err != nil {
			return err
		}
		return printHistory(cmd.OutOrStdout(), h)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectHistory, "history", "history.json", "history document to read")
	rootCmd.AddCommand(inspectCmd)
}

func printHistory(w io.Writer, h *history.History) error {
	sum := h.Summary()
	if _, err := fmt.Fprintf(w, "sessions=%d days=%d key_levels=%d fvgs=%d\n",
		sum.Sessions, sum.Days, sum.KeyLevels, sum.FVGs); err != nil {
		return err
	}

	for i, levels := range h.DailyKeyLevels {
		fvgs := 0
		if i < len(h.DailyConfluences) {
			fvgs = h.DailyConfluences[i].Count()
		}
		fmt.Fprintf(w, "day %3d  pdh=%-10s pdl=%-10s h1=%d/%d h4=%d/%d fvgs=%d\n",
			i+1, levelPrice(levels.PrevDayHigh), levelPrice(levels.PrevDayLow),
			len(levels.Hour1High), len(levels.Hour1Low),
			len(levels.Hour4High), len(levels.Hour4Low), fvgs)
	}

	for _, s := range h.Sessions {
		var opened, closed string
		if s.State.OpenUTC != nil {
			opened = s.State.OpenUTC.Format(time.RFC3339)
		}
		if s.State.CloseUTC != nil {
			closed = s.State.CloseUTC.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "session %-8s %s -> %s high=%s low=%s\n",
			s.Metadata.Name, opened, closed, nullPrice(s.State.High), nullPrice(s.State.Low))
	}
	return nil
}

func nullPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func levelPrice(l *keylevel.KeyLevel) string {
	if l == nil {
		return "-"
	}
	return l.Price.String()
}
