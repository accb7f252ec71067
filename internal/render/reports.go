package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/history"
	"github.com/dbsmedya/contentsync/internal/reconciler"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

// Report prints a diff report. Suggestions may be nil.
func (p *Printer) Report(collection string, report *differ.Report, suggestions map[string]resolution.Resolution) {
	p.Header("Analysis: %s", collection)
	fmt.Fprintln(p.w)

	p.Section("Summary")
	fmt.Fprintf(p.w, "  Total differences:   %d\n", report.TotalDifferences)
	for _, k := range differ.Kinds {
		fmt.Fprintf(p.w, "  %-20s %d\n", string(k)+":", report.ByType[k])
	}
	if report.TotalDifferences == 0 {
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, "  "+p.paint(color.Green, "Collections are in sync."))
		return
	}

	fmt.Fprintln(p.w)
	p.Section("Differences")
	headers := []string{"#", "KIND", "KEY", "LABEL", "FIELDS"}
	if suggestions != nil {
		headers = append(headers, "SUGGESTED")
	}
	rows := make([][]string, 0, len(report.Differences))
	for i, d := range report.Differences {
		row := []string{strconv.Itoa(i + 1), string(d.Kind), d.Key, d.Label, fieldList(d)}
		if suggestions != nil {
			row = append(row, string(suggestions[d.Key]))
		}
		rows = append(rows, row)
	}
	p.Table(headers, rows)

	var mismatches []differ.Difference
	for _, d := range report.Differences {
		if d.Kind == differ.Mismatch {
			mismatches = append(mismatches, d)
		}
	}
	if len(mismatches) == 0 {
		return
	}
	fmt.Fprintln(p.w)
	p.Section("Field Differences")
	for _, d := range mismatches {
		fmt.Fprintf(p.w, "  %s (%s)\n", d.Label, d.Key)
		for _, fd := range d.FieldDiffs {
			fmt.Fprintf(p.w, "    %s: %s %s %s\n",
				fd.Field,
				p.paint(color.Yellow, cell(FormatValue(fd.FrontendValue))),
				"->",
				p.paint(color.Magenta, cell(FormatValue(fd.BackendValue))),
			)
		}
	}
}

func fieldList(d differ.Difference) string {
	if len(d.FieldDiffs) == 0 {
		return "-"
	}
	names := make([]string, len(d.FieldDiffs))
	for i, fd := range d.FieldDiffs {
		names[i] = fd.Field
	}
	return strings.Join(names, ",")
}

// Plan prints the backend calls a batch would make.
func (p *Printer) Plan(collection string, items []reconciler.PlannedItem) {
	p.Header("Sync Plan: %s", collection)
	fmt.Fprintln(p.w)

	if len(items) == 0 {
		fmt.Fprintln(p.w, "  Nothing to apply.")
		return
	}

	rows := make([][]string, 0, len(items))
	calls := 0
	for i, it := range items {
		action := string(it.Mutation.Op)
		switch {
		case it.Err != nil:
			action = "invalid: " + it.Err.Error()
		case it.Mutation.Op == resolution.OpUpdate:
			action = fmt.Sprintf("update %s (%s)", it.Mutation.ID, strings.Join(sortedKeys(it.Mutation.Fields), ","))
			calls++
		case it.Mutation.Op == resolution.OpCreate:
			action = fmt.Sprintf("create (%d fields)", len(it.Mutation.Fields))
			calls++
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), it.Difference.Key, it.Difference.Label, string(it.Resolution), action})
	}
	p.Table([]string{"#", "KEY", "LABEL", "RESOLUTION", "BACKEND CALL"}, rows)
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "  %d items, %d backend calls\n", len(items), calls)
}

// Batch prints per-item outcomes of a batch.
func (p *Printer) Batch(result *reconciler.BatchResult) {
	p.Section("Batch")
	if len(result.Results) == 0 {
		fmt.Fprintln(p.w, "  No resolutions given.")
	}
	for _, item := range result.Results {
		mark := p.paint(color.Green, "ok  ")
		detail := string(item.Op)
		if item.ID != "" {
			detail += " " + item.ID
		}
		if !item.Success {
			mark = p.paint(color.Red, "FAIL")
			detail = item.Error
		}
		fmt.Fprintf(p.w, "  %s %s %s %s\n", mark, runewidthPad(item.Name, 24), runewidthPad(string(item.Resolution), 20), detail)
	}
	fmt.Fprintln(p.w)
	status := p.paint(color.Green, result.Message)
	if !result.Success {
		status = p.paint(color.Red, result.Message)
	}
	fmt.Fprintf(p.w, "  %s (%s)\n", status, result.Duration.Round(time.Millisecond))
}

// Sync prints a full sync result.
func (p *Printer) Sync(result *reconciler.SyncResult) {
	p.Header("Sync: %s", result.Collection)
	fmt.Fprintln(p.w)
	if result.Before != nil {
		fmt.Fprintf(p.w, "  Differences before: %d\n", result.Before.TotalDifferences)
	}
	if result.After != nil {
		fmt.Fprintf(p.w, "  Differences after:  %d\n", result.After.TotalDifferences)
	}
	fmt.Fprintln(p.w)
	if result.Batch != nil {
		p.Batch(result.Batch)
	}
	if v := result.Verification; v != nil {
		fmt.Fprintln(p.w)
		p.Section("Verification")
		fmt.Fprintf(p.w, "  Method: %s  keys: %d  converged: %d  unchanged: %d  failed: %d\n",
			v.Method, v.KeysVerified, v.Converged, v.Unchanged, v.Failed)
	}
	fmt.Fprintln(p.w)
	if result.Success {
		fmt.Fprintln(p.w, "  "+p.paint(color.Green, "Sync converged."))
	} else {
		fmt.Fprintln(p.w, "  "+p.paint(color.Red, "Sync did not converge."))
	}
}

// Runs prints recorded sync runs.
func (p *Printer) Runs(collection string, runs []history.Run) {
	p.Header("History: %s", collection)
	fmt.Fprintln(p.w)
	if len(runs) == 0 {
		fmt.Fprintln(p.w, "  No runs recorded.")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format(time.DateTime)
		}
		rows = append(rows, []string{
			r.RunID, string(r.Status), r.StartedAt.Format(time.DateTime), completed,
			strconv.Itoa(r.TotalDifferences), strconv.Itoa(r.Applied), strconv.Itoa(r.Failed),
		})
	}
	p.Table([]string{"RUN", "STATUS", "STARTED", "COMPLETED", "DIFFS", "APPLIED", "FAILED"}, rows)

	latest := runs[0]
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "  Latest run %s: %s\n", p.statusText(latest.Status), latest.Message)
}

// Items prints the recorded items of one run.
func (p *Printer) Items(items []history.Item) {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		outcome := "ok"
		if !it.Success {
			outcome = it.Error
		}
		rows = append(rows, []string{it.Key, it.Name, it.Resolution, it.Op, outcome})
	}
	p.Table([]string{"KEY", "NAME", "RESOLUTION", "OP", "OUTCOME"}, rows)
}

func (p *Printer) statusText(s history.RunStatus) string {
	switch s {
	case history.RunStatusSucceeded:
		return p.paint(color.Green, string(s))
	case history.RunStatusPartial:
		return p.paint(color.Yellow, string(s))
	case history.RunStatusFailed:
		return p.paint(color.Red, string(s))
	}
	return string(s)
}

func runewidthPad(s string, w int) string {
	return runewidth.FillRight(cell(s), w)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
