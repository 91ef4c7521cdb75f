package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/juanchiconsoli/email-monitor/stats"
)

func TestPrintSummary(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	PrintSummary(&buf, stats.Summary{
		Scanned:   3,
		Decoded:   2,
		Skipped:   1,
		Issues:    1,
		Duration:  1500 * time.Millisecond,
		LastError: errors.New("connection reset"),
	})

	out := buf.String()
	for _, want := range []string{"Summary Statistics", "Messages found: 3", "Backup notifications: 2", "Header problems: 1", "connection reset"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestBar_DisabledForDebug(t *testing.T) {
	var buf bytes.Buffer
	b := New("debug").WithWriter(&buf)
	b.Start(10)
	b.Update(stats.Event{Type: stats.EventTypeFetched})
	b.Stop()

	if buf.Len() != 0 {
		t.Errorf("disabled bar wrote output: %q", buf.String())
	}
}

func TestBar_Lifecycle(t *testing.T) {
	var buf bytes.Buffer
	b := New("warn").WithWriter(&buf)

	b.Start(2)
	b.Update(stats.Event{Type: stats.EventTypeScanned, UID: 7})
	b.Update(stats.Event{Type: stats.EventTypeFetched, UID: 7})
	b.Stop()
	b.Stop()

	if b.pb != nil {
		t.Error("Stop() should release the bar")
	}
}
