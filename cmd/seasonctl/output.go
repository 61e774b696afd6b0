package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lysyi3m/season-rank/app/refresh"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func printResults(cmd *cobra.Command, asJSON bool, results []refresh.Result) error {
	if asJSON {
		return writeJSON(cmd, results)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderResults(results, shouldColorize(out)))

	updated, skipped, failed := refresh.Count(results)
	fmt.Fprintf(out, "%d updated, %d skipped, %d failed\n", updated, skipped, failed)
	return nil
}

func printSeasons(cmd *cobra.Command, asJSON bool, statuses []refresh.SeasonStatus) error {
	if asJSON {
		return writeJSON(cmd, statuses)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSeasons(statuses))
	return nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

func renderResults(results []refresh.Result, colorize bool) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"Season", "Index", "Status", "Reason", "Subjects", "Failed", "Message"})

	for _, result := range results {
		tw.AppendRow(table.Row{
			result.Season.Key(),
			result.Season.ID,
			resultStatus(result, colorize),
			string(result.Summary.Reason),
			result.Summary.SubjectCount,
			result.Summary.Failed,
			result.Message,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})

	return tw.Render()
}

func resultStatus(result refresh.Result, colorize bool) string {
	label, color := "FAILED", text.FgRed
	switch {
	case result.Success:
		label, color = "OK", text.FgGreen
	case result.Skipped:
		label, color = "SKIPPED", text.FgYellow
	}
	if !colorize {
		return label
	}
	return color.Sprint(label)
}

func renderSeasons(statuses []refresh.SeasonStatus) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"Season", "Index", "Title", "Listed", "Cached", "Subjects", "Last update"})

	for _, status := range statuses {
		cached := yesNo(status.Cached)
		if status.Cached && !status.Readable {
			cached = "unreadable"
		}
		tw.AppendRow(table.Row{
			status.Key,
			status.IndexID,
			status.Title,
			yesNo(status.Listed),
			cached,
			strconv.Itoa(status.SubjectCount),
			status.LastUpdateTime,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
	})

	return tw.Render()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
