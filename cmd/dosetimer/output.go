package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/tbourn/go-dose-timer/internal/codec"
	"github.com/tbourn/go-dose-timer/internal/dosing"
	"github.com/tbourn/go-dose-timer/internal/services"
	"github.com/tbourn/go-dose-timer/internal/ui"
)

const shortIDLen = 8

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printEntryTable(w io.Writer, entries []services.Entry, total int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("No doses recorded."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tDAY\tAMOUNT\tINTERVAL\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Display,
			e.DayLabel,
			formatAmount(e.Amount),
			e.Interval,
			shortID(e.ID),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d doses (%d total)\n", len(entries), total)
}

// statusLine renders the one-line timer view, colored by state.
func statusLine(st services.Status) string {
	if st.State == dosing.StateIdle || st.LastDose == nil {
		return ui.RenderState(dosing.StateIdle, "No dose recorded yet.")
	}
	label := "safe"
	if st.State == dosing.StateWarning {
		label = "too soon"
	}
	return fmt.Sprintf("%s since last dose (%s, %s)  %s",
		ui.RenderState(st.State, st.Elapsed),
		formatAmount(st.LastDose.Amount),
		st.LastDose.Display,
		ui.RenderState(st.State, label),
	)
}

func formatAmount(a float64) string {
	return codec.FormatAmount(a)
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}
