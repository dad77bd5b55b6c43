// Package progress shows a progress bar while a batch of items is processed.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/ui"
)

// Bar wraps progressbar. A disabled Bar is a no-op that logs start and finish at debug level.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the number of items in the batch.
	Max int
	// Description is the prefix text shown before the bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
	// Disabled turns the bar off regardless of the terminal.
	Disabled bool
}

// New creates a progress bar. It is only drawn when Writer is a terminal,
// colors are enabled, and the logger is not at debug level.
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	b := &Bar{
		enabled: !opts.Disabled && shouldShowProgress(opts.Writer),
		desc:    opts.Description,
	}
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s started", opts.Description), logging.Count(opts.Max))
		return b
	}

	b.bar = progressbar.NewOptions(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)
	return b
}

// Enabled reports whether the bar is drawn.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Step advances the bar by one and shows label as the description.
func (b *Bar) Step(label string) {
	if !b.enabled {
		return
	}
	if label != "" {
		b.bar.Describe(fmt.Sprintf("%s %s", b.desc, label))
	}
	_ = b.bar.Add(1)
}

// Finish completes the bar.
func (b *Bar) Finish() error {
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// Clear removes the bar from the terminal.
func (b *Bar) Clear() error {
	if !b.enabled {
		return nil
	}
	return b.bar.Clear()
}

func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() || !ui.IsTerminal(w) {
		return false
	}
	// Debug output and a redrawn bar would interleave.
	return !logging.Default().Enabled(context.Background(), logging.LevelDebug)
}
