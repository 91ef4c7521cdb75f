package status

import (
	"fmt"
	"strings"

	"github.com/juanchiconsoli/email-monitor/model"
)

// Verdict is the outcome of a backup as read from its notification subject.
type Verdict int

const (
	Failure Verdict = iota
	Warning
	Pass
	// Missing means no notification was received.
	Missing
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Warning:
		return "warning"
	case Failure:
		return "failure"
	case Missing:
		return "missing"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

var (
	DefaultPassKeywords    = []string{"success", "succès", "reusit"}
	DefaultWarningKeywords = []string{"warning", "avertissement", "partiel"}
)

// Options captures the keyword configuration. Empty lists select the defaults.
type Options struct {
	Pass    []string
	Warning []string
}

// Classifier holds normalized keyword sets.
type Classifier struct {
	pass    []string
	warning []string
}

// New creates a Classifier. A keyword listed as both pass and warning is rejected.
func New(opts Options) (*Classifier, error) {
	passList := opts.Pass
	if len(passList) == 0 {
		passList = DefaultPassKeywords
	}
	warningList := opts.Warning
	if len(warningList) == 0 {
		warningList = DefaultWarningKeywords
	}

	pass := normalize(passList)
	warning := normalize(warningList)
	if len(pass) == 0 {
		return nil, fmt.Errorf("no usable pass keyword")
	}

	for _, kw := range warning {
		if contains(pass, kw) {
			return nil, fmt.Errorf("keyword %q is both a pass and a warning keyword", kw)
		}
	}
	return &Classifier{pass: pass, warning: warning}, nil
}

// Default returns a Classifier using the default keyword sets.
func Default() *Classifier {
	c, _ := New(Options{})
	return c
}

// Classify checks pass keywords first, then warning keywords. Anything else
// is a Failure.
func (c *Classifier) Classify(rec model.BackupRecord) Verdict {
	subject := strings.ToLower(rec.Subject)
	if matchAny(c.pass, subject) {
		return Pass
	}
	if matchAny(c.warning, subject) {
		return Warning
	}
	return Failure
}

// Latest classifies the last record of an ascending list. An empty list is Missing.
func (c *Classifier) Latest(records []model.BackupRecord) (model.BackupRecord, Verdict) {
	if len(records) == 0 {
		return model.BackupRecord{}, Missing
	}
	rec := records[len(records)-1]
	return rec, c.Classify(rec)
}

// Row is the per-client line shown by tables and reports.
type Row struct {
	Client  model.Client
	Record  model.BackupRecord
	Verdict Verdict
}

// Found reports whether a notification was received for the client.
func (r Row) Found() bool {
	return r.Verdict != Missing
}

// Rows returns one Row per client, in client order.
func (c *Classifier) Rows(result model.Result, clients []model.Client) []Row {
	rows := make([]Row, 0, len(clients))
	for _, client := range clients {
		rec, verdict := c.Latest(result[client.Name])
		rows = append(rows, Row{Client: client, Record: rec, Verdict: verdict})
	}
	return rows
}

// Counts tallies rows by verdict.
func Counts(rows []Row) map[Verdict]int {
	counts := make(map[Verdict]int, 4)
	for _, row := range rows {
		counts[row.Verdict]++
	}
	return counts
}

func normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || contains(out, kw) {
			continue
		}
		out = append(out, kw)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func matchAny(keywords []string, text string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
