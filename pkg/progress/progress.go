// Package progress renders installation phases as a terminal progress bar.
// Setting AGPM_NO_PROGRESS (or the legacy CCPM_NO_PROGRESS) disables all
// rendering; operations behave identically either way.
package progress

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives phase and per-item updates from long-running
// operations. Implementations must be safe for concurrent Increment calls.
type Reporter interface {
	StartPhase(name string, total int)
	Increment(message string)
	Finish()
}

// Enabled reports whether progress rendering is allowed in this
// environment.
func Enabled() bool {
	if os.Getenv("AGPM_NO_PROGRESS") != "" || os.Getenv("CCPM_NO_PROGRESS") != "" {
		return false
	}
	return true
}

// New returns a terminal reporter, or a no-op one when progress is
// disabled.
func New() Reporter {
	if !Enabled() {
		return Noop{}
	}
	return &barReporter{}
}

// Noop is a Reporter that does nothing. Used in tests and when progress is
// disabled.
type Noop struct{}

// StartPhase implements Reporter.
func (Noop) StartPhase(string, int) {}

// Increment implements Reporter.
func (Noop) Increment(string) {}

// Finish implements Reporter.
func (Noop) Finish() {}

type barReporter struct {
	bar *progressbar.ProgressBar
}

func (r *barReporter) StartPhase(name string, total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
	)
}

func (r *barReporter) Increment(message string) {
	if r.bar == nil {
		return
	}
	if message != "" {
		r.bar.Describe(message)
	}
	_ = r.bar.Add(1)
}

func (r *barReporter) Finish() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.bar = nil
}
