package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Reporter receives progress of a batch operation.
// Implementations must be safe for concurrent use by batch workers.
type Reporter interface {
	// SetTotal sets the number of files (and bytes, when known) to process
	SetTotal(totalFiles int, totalBytes int64)
	// Start begins tracking a byte transfer for path
	Start(path string, totalBytes int64)
	// Update reports bytes transferred for the current transfer
	Update(bytesTransferred int64)
	// Complete marks the current transfer as complete
	Complete()
	// Error reports an error on the current transfer
	Error(err error)
	// Step marks one batch item as finished
	Step(path string, ok bool)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	CurrentFile    string
	CurrentBytes   int64
	CurrentTotal   int64
	FilesDone      int
	FilesFailed    int
	FilesTotal     int
	BytesCompleted int64
	BytesTotal     int64
	BytesPerSecond float64
	Error          error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
	UpdateStep
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback       Callback
	mu             sync.Mutex
	currentFile    string
	currentTotal   int64
	currentBytes   int64
	filesTotal     int
	bytesTotal     int64
	filesDone      int
	filesFailed    int
	bytesCompleted int64
	startTime      time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
	}
}

// snapshot builds an update from the current state; caller holds r.mu
func (r *CallbackReporter) snapshot(t UpdateType) Update {
	return Update{
		Type:           t,
		CurrentFile:    r.currentFile,
		CurrentBytes:   r.currentBytes,
		CurrentTotal:   r.currentTotal,
		FilesDone:      r.filesDone,
		FilesFailed:    r.filesFailed,
		FilesTotal:     r.filesTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
	}
}

// emit calls the callback outside the lock to prevent deadlock
func (r *CallbackReporter) emit(update Update, callback Callback) {
	if callback != nil {
		callback(update)
	}
}

// SetTotal sets the total number of files and bytes
func (r *CallbackReporter) SetTotal(totalFiles int, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filesTotal = totalFiles
	r.bytesTotal = totalBytes
}

// Start begins tracking a new transfer
func (r *CallbackReporter) Start(path string, totalBytes int64) {
	r.mu.Lock()
	r.currentFile = path
	r.currentTotal = totalBytes
	r.currentBytes = 0
	r.startTime = time.Now()
	update := r.snapshot(UpdateStart)
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// Update reports progress on the current transfer
func (r *CallbackReporter) Update(bytesTransferred int64) {
	r.mu.Lock()
	r.currentBytes = bytesTransferred
	update := r.snapshot(UpdateProgress)
	update.BytesCompleted = r.bytesCompleted + bytesTransferred
	if elapsed := time.Since(r.startTime).Seconds(); elapsed > 0 {
		update.BytesPerSecond = float64(bytesTransferred) / elapsed
	}
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// Complete marks the current transfer as complete
func (r *CallbackReporter) Complete() {
	r.mu.Lock()
	r.bytesCompleted += r.currentTotal
	r.currentBytes = r.currentTotal
	update := r.snapshot(UpdateComplete)
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// Error reports an error on the current transfer
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	update := r.snapshot(UpdateError)
	update.Error = err
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// Step marks one batch item as finished
func (r *CallbackReporter) Step(path string, ok bool) {
	r.mu.Lock()
	if ok {
		r.filesDone++
	} else {
		r.filesFailed++
	}
	update := r.snapshot(UpdateStep)
	update.CurrentFile = path
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// ProgressReader wraps an io.Reader to track read progress
type ProgressReader struct {
	reader      io.Reader
	reporter    Reporter
	transferred int64
}

// NewProgressReader creates a new progress-tracking reader
func NewProgressReader(r io.Reader, reporter Reporter) *ProgressReader {
	return &ProgressReader{
		reader:   r,
		reporter: reporter,
	}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
		if pr.reporter != nil {
			pr.reporter.Update(pr.transferred)
		}
	}
	return n, err
}

// ProgressWriter wraps an io.Writer to track write progress
type ProgressWriter struct {
	writer      io.Writer
	reporter    Reporter
	transferred int64
}

// NewProgressWriter creates a new progress-tracking writer
func NewProgressWriter(w io.Writer, reporter Reporter) *ProgressWriter {
	return &ProgressWriter{
		writer:   w,
		reporter: reporter,
	}
}

// Write implements io.Writer
func (pw *ProgressWriter) Write(p []byte) (n int, err error) {
	n, err = pw.writer.Write(p)
	if n > 0 {
		pw.transferred += int64(n)
		if pw.reporter != nil {
			pw.reporter.Update(pw.transferred)
		}
	}
	return n, err
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) SetTotal(totalFiles int, totalBytes int64) {}
func (NullReporter) Start(path string, totalBytes int64)       {}
func (NullReporter) Update(bytesTransferred int64)             {}
func (NullReporter) Complete()                                 {}
func (NullReporter) Error(err error)                           {}
func (NullReporter) Step(path string, ok bool)                 {}

// TerminalReporter draws a single-line progress bar
type TerminalReporter struct {
	*CallbackReporter
	out   io.Writer
	width int
	mu    sync.Mutex
	drawn bool
}

// NewTerminalReporter returns a bar on out, or a NullReporter when out is not a terminal
func NewTerminalReporter(out *os.File) Reporter {
	if out == nil || !IsTerminal(out) {
		return NullReporter{}
	}
	return newTerminalReporter(out, 30)
}

func newTerminalReporter(out io.Writer, width int) *TerminalReporter {
	t := &TerminalReporter{out: out, width: width}
	t.CallbackReporter = NewCallbackReporter(t.draw)
	return t
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (t *TerminalReporter) draw(u Update) {
	if u.FilesTotal == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	done := int64(u.FilesDone + u.FilesFailed)
	line := fmt.Sprintf("\r%s %d/%d files", FormatProgress(done, int64(u.FilesTotal), t.width), done, u.FilesTotal)
	if u.BytesTotal > 0 {
		line += fmt.Sprintf(" %s/%s", FormatBytes(u.BytesCompleted), FormatBytes(u.BytesTotal))
	}
	if u.FilesFailed > 0 {
		line += fmt.Sprintf(" (%d failed)", u.FilesFailed)
	}
	fmt.Fprint(t.out, line)
	t.drawn = true
}

// Finish ends the bar line so later output starts on a fresh line
func (t *TerminalReporter) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drawn {
		fmt.Fprintln(t.out)
		t.drawn = false
	}
}

// Finish ends a terminal bar if r is one
func Finish(r Reporter) {
	if t, ok := r.(*TerminalReporter); ok {
		t.Finish()
	}
}

// FormatBytes formats bytes into a human-readable IEC string
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			bar[i] = '='
		} else if i == filled {
			bar[i] = '>'
		} else {
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
