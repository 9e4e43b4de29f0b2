package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"afdata/autofocus"
	"afdata/core"
	"afdata/enrich"
	"afdata/search"
	"afdata/sink"
	"afdata/storage"
	"afdata/util"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// printSection prints a section header with underline
func printSection(w io.Writer, title string) {
	fmt.Fprintln(w)
	headerColor.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// printField prints a labeled field
func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%-18s %v\n", label+":", value)
}

func formatQuota(b core.BucketInfo) string {
	return fmt.Sprintf("%s minute / %s daily points",
		humanize.Comma(int64(b.MinutePointsRemaining)), humanize.Comma(int64(b.DailyPointsRemaining)))
}

// progressLine renders one poll of a running search
func progressLine(p search.Progress) string {
	elapsed := p.Elapsed.Round(time.Second)
	if p.State == search.StateQueued {
		return fmt.Sprintf("poll %d: search queued, elapsed %s", p.Poll, elapsed)
	}
	return fmt.Sprintf("poll %d: %s of %s hits processed (+%d), %d%% complete, quota %s, elapsed %s",
		p.Poll,
		humanize.Comma(int64(p.Processed)),
		humanize.Comma(int64(p.Total)),
		p.NewHits,
		p.CompletePercentage,
		formatQuota(p.Bucket),
		elapsed)
}

func (a *app) printProgress(p search.Progress) {
	a.printf(infoColor, "%s\n", progressLine(p))
}

// printChunk receives 1-based chunk numbers
func (a *app) printChunk(index, total, size int) {
	if total > 1 {
		a.printf(headerColor, "Chunk %d/%d (%s inputs)\n", index, total, humanize.Comma(int64(size)))
	}
}

func (a *app) printCoverageProgress(p enrich.CoverageProgress) {
	a.printf(infoColor, "coverage %d/%d %s, quota %s\n", p.Done, p.Total, p.SHA256, formatQuota(p.Bucket))
}

// writeSummary prints the quick statistics of a finished run
func writeSummary(w io.Writer, state *core.RunState, report *search.RunReport) {
	sum := state.Summarize()

	printSection(w, fmt.Sprintf("RUN %s (%s)", state.Tag, state.Kind))
	printField(w, "Records", humanize.Comma(int64(sum.Total)))
	printField(w, "Found", humanize.Comma(int64(sum.Found)))
	if sum.NotFound > 0 {
		printField(w, "Not found", humanize.Comma(int64(sum.NotFound)))
	}
	for _, v := range core.Verdicts() {
		if n := sum.Verdicts[v]; n > 0 {
			printField(w, "  "+string(v), humanize.Comma(int64(n)))
		}
	}
	if n := sum.Verdicts[core.VerdictUnknown]; n > 0 {
		warningColor.Fprintf(w, "%-18s %s\n", "  unknown:", humanize.Comma(int64(n)))
	}
	for _, s := range []core.SigState{core.SigActive, core.SigInactive, core.SigNone} {
		if n := sum.MalwareSigs[s]; n > 0 {
			printField(w, "  malware sig "+string(s), humanize.Comma(int64(n)))
		}
	}
	if report != nil {
		printField(w, "Searches", len(report.Chunks))
		printField(w, "Elapsed", report.Elapsed.Round(time.Second))
		if report.Stalled() {
			warningColor.Fprintln(w, "Search stalled before the server reported completion; results may be partial")
		}
	}
	if sum.Anomalies > 0 {
		warningColor.Fprintf(w, "%d records had anomalies, see the log\n", sum.Anomalies)
	}
}

// writeBulkCommand prints where the artifacts went and how to load them
func writeBulkCommand(w io.Writer, elastic, bulk, pretty string) {
	printField(w, "Bulk file", bulk)
	printField(w, "Snapshot", pretty)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Load into Elasticsearch with:")
	successColor.Fprintln(w, sink.BulkCommand(elastic, bulk))
}

// writeRemoteError prints the raw response of a failed AutoFocus request
func writeRemoteError(w io.Writer, err error) bool {
	re, ok := autofocus.AsRemoteRequestError(err)
	if !ok {
		return false
	}
	errorColor.Fprintf(w, "AutoFocus returned HTTP %d for %s\n", re.StatusCode, re.URL)
	if body := strings.TrimSpace(re.Body); body != "" {
		fmt.Fprintln(w, util.SanitizeString(body))
	}
	return true
}

// renderRunsTable lists ledger entries newest first
func renderRunsTable(w io.Writer, runs []storage.Run, now time.Time) {
	if len(runs) == 0 {
		warningColor.Fprintln(w, "No runs recorded")
		return
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Started", "Tag", "Kind", "Pass", "Found", "Not Found", "Duration", "Bulk File"})

	var found, notFound int
	for _, r := range runs {
		tag := r.Tag
		if r.Stalled {
			tag += " (stalled)"
		}
		tbl.AppendRow(table.Row{
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			tag,
			r.Kind,
			r.Pass,
			humanize.Comma(int64(r.Found)),
			humanize.Comma(int64(r.NotFound)),
			r.Duration().Round(time.Second),
			r.BulkPath,
		})
		found += r.Found
		notFound += r.NotFound
	}
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d runs", len(runs)), "", "", humanize.Comma(int64(found)), humanize.Comma(int64(notFound)), "", ""})
	tbl.Render()
}
