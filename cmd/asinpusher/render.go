package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"asinpusher/exporter"
	"asinpusher/identifiers"
	"asinpusher/queue"
	"asinpusher/verification"
)

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderParseResult(out io.Writer, res *identifiers.Result) {
	fmt.Fprintf(out, "%s %d unique, %d duplicate, %d invalid\n",
		titleStyle.Render("Identifiers:"), len(res.Records), res.Duplicates, len(res.Errors))
	for _, fe := range res.Errors {
		fmt.Fprintln(out, warningStyle.Render("  skipped "+fe.Error()))
	}
}

func renderPushResult(out io.Writer, name string, res queue.PushResult) {
	total := "unknown"
	if res.Total >= 0 {
		total = strconv.FormatInt(res.Total, 10)
	}
	rows := [][]string{
		{"pushed", strconv.Itoa(res.Pushed)},
		{"newly added", strconv.Itoa(res.Added)},
		{"already queued", strconv.Itoa(res.Duplicates)},
		{"queue size", total},
	}
	fmt.Fprintln(out, titleStyle.Render("Push to "+name))
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func renderReport(out io.Writer, report *verification.Report) {
	headers := append([]string{"Site", "ASIN", "State"}, report.Backends...)
	headers = append(headers, "Reason")

	rows := make([][]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		row := []string{o.Record.Site, o.Record.ID, o.State.String()}
		for _, name := range report.Backends {
			row = append(row, backendCell(o.Backend(name)))
		}
		reason := o.Reason
		if o.ReasonBackend != "" {
			reason = o.ReasonBackend + ": " + reason
		}
		row = append(row, reason)
		rows = append(rows, row)
	}

	fmt.Fprintln(out, titleStyle.Render("Verification run "+report.RunID))
	fmt.Fprintln(out, renderTable(headers, rows, nil))

	summary := fmt.Sprintf("verified %d, partially verified %d, failed %d, pending %d (%d ticks, %s)",
		report.Verified, report.PartiallyVerified, report.Failed, report.Pending, report.Ticks, report.Elapsed)
	switch {
	case report.AllVerified():
		fmt.Fprintln(out, successStyle.Render(summary))
	case report.Cancelled:
		fmt.Fprintln(out, warningStyle.Render(summary+", cancelled"))
	default:
		fmt.Fprintln(out, errorStyle.Render(summary))
	}
	if report.Export != nil {
		renderExportSummary(out, *report.Export)
	}
}

func backendCell(b *verification.BackendState) string {
	if b == nil {
		return ""
	}
	switch {
	case b.Found:
		return "found"
	case b.Exhausted:
		return fmt.Sprintf("error x%d", b.Errors)
	case b.Expired:
		return "timed out"
	case b.Checks == 0:
		return "-"
	default:
		return b.Last.String()
	}
}

func renderExportSummary(out io.Writer, summary exporter.Summary) {
	fmt.Fprintf(out, "%s %d written, %d missing, %d failed\n",
		titleStyle.Render("Export:"), len(summary.Written), len(summary.Missing), len(summary.Failed))
	for _, path := range summary.Written {
		fmt.Fprintln(out, infoStyle.Render("  "+path))
	}
	if len(summary.Missing) > 0 {
		missing := make([]string, 0, len(summary.Missing))
		for _, rec := range summary.Missing {
			missing = append(missing, rec.String())
		}
		fmt.Fprintln(out, warningStyle.Render("  no database row: "+strings.Join(missing, ", ")))
	}
}
