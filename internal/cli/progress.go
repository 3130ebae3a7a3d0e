package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/kirillkom/rag-document-assistant/internal/core/ports"
)

// newReporter returns a progress bar for interactive terminals and
// line-by-line output otherwise.
func newReporter(w io.Writer) ports.ProgressReporter {
	if os.Getenv("CI") != "" || w != io.Writer(os.Stderr) {
		return &lineReporter{out: w}
	}
	return &terminalReporter{out: w}
}

type terminalReporter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func (r *terminalReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription("Uploading"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *terminalReporter) Update(current int, message string) {
	if r.bar != nil {
		r.bar.Describe(message)
		_ = r.bar.Set(current)
	}
}

func (r *terminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

type lineReporter struct {
	out   io.Writer
	total int
}

func (r *lineReporter) Start(total int) {
	r.total = total
}

func (r *lineReporter) Update(current int, message string) {
	fmt.Fprintf(r.out, "[%d/%d] %s\n", current, r.total, message)
}

func (r *lineReporter) Finish() {}
