package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"

	"github.com/juanchiconsoli/email-monitor/stats"
)

// Bar shows a progress bar while mailbox messages are fetched.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	w       io.Writer
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a Bar. Debug logging would interleave with the bar, so it is
// only enabled for the quieter log levels.
func New(logLevel string) *Bar {
	return &Bar{
		w:       os.Stderr,
		enabled: logLevel != "debug",
	}
}

// WithWriter directs the bar to w.
func (b *Bar) WithWriter(w io.Writer) *Bar {
	b.w = w
	return b
}

// Start shows the bar for total messages.
func (b *Bar) Start(total int) {
	if !b.enabled || total == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.total = total
	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Fetching messages").
		WithWriter(b.w).
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		return
	}
	b.pb = pb
}

// Update advances the bar for each fetched message.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.UpdateTitle(fmt.Sprintf("Fetching UID %d", evt.UID))
	case stats.EventTypeFetched:
		b.pb.Increment()
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.WithWriter(b.w).Printfln("UID %d: %v", evt.UID, evt.Err)
		}
	}
}

// Stop removes the bar.
func (b *Bar) Stop() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}
	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
	b.pb = nil
}

// PrintSummary writes the run counters as a pterm section.
func PrintSummary(w io.Writer, summary stats.Summary) {
	info := pterm.Info.WithWriter(w)

	pterm.DefaultSection.WithWriter(w).Println("Summary Statistics")
	info.Printfln("Duration: %v", summary.Duration.Round(1e6))
	info.Printfln("Messages found: %d", summary.Scanned)
	info.Printfln("Backup notifications: %d", summary.Decoded)
	info.Printfln("Skipped (not a backup notification): %d", summary.Skipped)
	if summary.Issues > 0 {
		pterm.Warning.WithWriter(w).Printfln("Header problems: %d", summary.Issues)
	}
	if summary.LastError != nil {
		pterm.Error.WithWriter(w).Printfln("Last error: %v", summary.LastError)
	}
}
