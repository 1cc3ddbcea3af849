// Package report prints run results for humans and exports them for tools.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/Ning0612/Tidyfs/internal/core/linecount"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/state"
)

// Printer writes summaries and tables to one output
type Printer struct {
	out io.Writer

	yellow *color.Color
	green  *color.Color
	red    *color.Color
	bold   *color.Color
}

// NewPrinter creates a Printer. Color is used only when out is a terminal
// and noColor is false.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	p := &Printer{
		out:    out,
		yellow: color.New(color.FgYellow),
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		bold:   color.New(color.Bold),
	}

	useColor := !noColor && isTerminal(out)
	for _, c := range []*color.Color{p.yellow, p.green, p.red, p.bold} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Summary prints the counts, the failed list and the elapsed time of a tally.
// verb names the per-file action ("renamed", "moved", ...).
func (p *Printer) Summary(verb string, t domain.Tally) {
	fmt.Fprintf(p.out, "%s files have been scanned.\n", p.yellow.Sprint(t.Scanned))
	fmt.Fprintf(p.out, "%s files were %s successfully.\n", p.green.Sprint(t.Successes), verb)
	if t.Renamed > 0 {
		fmt.Fprintf(p.out, "%s of them under a substitute name.\n", p.yellow.Sprint(t.Renamed))
	}
	if t.Skipped > 0 {
		fmt.Fprintf(p.out, "%s of them needed no change.\n", p.yellow.Sprint(t.Skipped))
	}
	fmt.Fprintf(p.out, "%s files failed to be %s.\n", p.red.Sprint(t.Failures), verb)

	if len(t.Failed) > 0 {
		p.red.Fprintln(p.out, "Failed files:")
		for _, f := range t.Failed {
			fmt.Fprintf(p.out, "    %s (%s)\n", f.Path, f.Reason)
		}
	}

	fmt.Fprintf(p.out, "Elapsed: %s\n", FormatElapsed(t.Elapsed))
}

// Errorf prints one red error line
func (p *Printer) Errorf(format string, args ...any) {
	p.red.Fprintf(p.out, "Error: "+format+"\n", args...)
}

// Linef prints a plain line
func (p *Printer) Linef(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// LineCounts prints per-file counts, per-directory subtotals and the total
func (p *Printer) LineCounts(r linecount.Result) error {
	p.bold.Fprintf(p.out, "Counting lines in %s\n", r.Root)

	files := make([][]string, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, []string{f.Path, strconv.Itoa(f.Lines)})
	}
	if err := p.table([]any{"File", "Lines"}, files); err != nil {
		return err
	}

	dirs := make([][]string, 0, len(r.Dirs)+1)
	var nFiles int
	for _, d := range r.Dirs {
		dirs = append(dirs, []string{d.Path + string(os.PathSeparator), strconv.Itoa(d.Files), humanize.Comma(int64(d.Lines))})
		nFiles += d.Files
	}
	dirs = append(dirs, []string{"Total", strconv.Itoa(nFiles), humanize.Comma(int64(r.TotalLines))})
	if err := p.table([]any{"Directory", "Files", "Lines"}, dirs); err != nil {
		return err
	}

	fmt.Fprintf(p.out, "Total: %s directories, %s files, %s lines\n",
		p.yellow.Sprint(len(r.Dirs)), p.yellow.Sprint(nFiles), p.green.Sprint(humanize.Comma(int64(r.TotalLines))))
	if r.Failures > 0 {
		fmt.Fprintf(p.out, "%s files could not be read and count as 0 lines.\n", p.red.Sprint(r.Failures))
	}
	return nil
}

// History prints recorded runs, newest first
func (p *Printer) History(records []state.RunRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(p.out, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.RunID,
			r.Tool,
			r.Root,
			humanize.Time(r.StartTime),
			string(r.Status),
			strconv.Itoa(r.Scanned),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
		})
	}
	return p.table([]any{"Run", "Tool", "Root", "Started", "Status", "Scanned", "OK", "Failed"}, rows)
}

// Failures prints the failed paths of one run
func (p *Printer) Failures(runID string, failures []domain.Failure) error {
	if len(failures) == 0 {
		fmt.Fprintf(p.out, "Run %s has no failed files.\n", runID)
		return nil
	}

	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{f.Path, f.Reason})
	}
	return p.table([]any{"Path", "Reason"}, rows)
}

func (p *Printer) table(header []any, rows [][]string) error {
	var table = tablewriter.NewWriter(p.out)
	table.Header(header...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("render table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

// FormatElapsed rounds a duration for display
func FormatElapsed(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Minute:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// Document is the exported form of one run
type Document struct {
	Tool     string    `yaml:"tool"`
	Root     string    `yaml:"root"`
	RunID    string    `yaml:"run_id,omitempty"`
	Started  time.Time `yaml:"started"`
	Status   string    `yaml:"status"`
	Elapsed  string    `yaml:"elapsed"`
	Scanned  int       `yaml:"scanned"`
	Success  int       `yaml:"successes"`
	Failures int       `yaml:"failures"`
	Renamed  int       `yaml:"renamed,omitempty"`
	Skipped  int       `yaml:"skipped,omitempty"`

	Failed []domain.Failure `yaml:"failed,omitempty"`

	// Details carries tool-specific results (moved files, line counts, ...)
	Details any `yaml:"details,omitempty"`
}

// NewDocument builds an export document from a tally
func NewDocument(tool, root, runID string, started time.Time, t domain.Tally, details any) Document {
	return Document{
		Tool:     tool,
		Root:     root,
		RunID:    runID,
		Started:  started,
		Status:   string(t.Status()),
		Elapsed:  FormatElapsed(t.Elapsed),
		Scanned:  t.Scanned,
		Success:  t.Successes,
		Failures: t.Failures,
		Renamed:  t.Renamed,
		Skipped:  t.Skipped,
		Failed:   t.Failed,
		Details:  details,
	}
}

// Encode writes the document as YAML
func (d Document) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the document as YAML to path, replacing any existing file
func (d Document) WriteFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := d.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
