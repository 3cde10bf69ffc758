package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/babelfeed/pipeline"
)

func newStatusCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stage counts and the last run",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = cc.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
		st, err := r.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	})
	return cmd
}

func printStatus(w io.Writer, st *pipeline.Status) {
	fmt.Fprintf(w, "Raw captures: %d\n\n", st.Raw)

	rows := make([][]string, 0, len(st.Sites))
	for _, s := range st.Sites {
		rows = append(rows, []string{
			s.Site,
			strconv.Itoa(s.Formatted),
			strconv.Itoa(s.Translated),
			strconv.Itoa(s.Published),
			strconv.Itoa(s.Archived),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Site", "Formatted", "Translated", "Published", "Archived weeks"},
		rows,
		[]text.Align{text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignRight},
	))

	if st.LastRun == nil {
		fmt.Fprintln(w, "\nNo runs recorded.")
		return
	}
	run := st.LastRun
	fmt.Fprintf(w, "\nLast run %s (%s): %s, started %s", run.ID, run.Stages, run.Status, run.StartedAt.Format(time.RFC3339))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, ", took %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	if len(st.Fetches) == 0 {
		return
	}
	rows = rows[:0]
	for _, f := range st.Fetches {
		rows = append(rows, []string{
			f.SourceID,
			f.URL,
			f.Status,
			strconv.Itoa(f.Records),
			strconv.Itoa(f.Captured),
			f.Error,
		})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable(
		[]string{"Source", "URL", "Status", "Records", "Captured", "Error"},
		rows,
		[]text.Align{text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignLeft},
	))
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	headerRow := make(table.Row, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	tw.AppendHeader(headerRow)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(aligns))
	for i, a := range aligns {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: a, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
