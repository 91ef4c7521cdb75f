package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/juanchiconsoli/email-monitor/model"
	"github.com/juanchiconsoli/email-monitor/status"
)

// DateLayout matches the terminal tables.
const DateLayout = "Monday, 02 January 2006 03:04 PM"

var header = []string{"Client", "Email", "Subject", "Date", "Status"}

// Line is one client entry of a report.
type Line struct {
	Client  string
	Email   string
	Subject string
	Date    string
	Status  string
	Verdict status.Verdict
}

// Report is the per-client backup status for one day.
type Report struct {
	Day   time.Time
	Lines []Line
	Pass  int
	Total int
}

// Build turns classified rows into a Report.
func Build(day time.Time, rows []status.Row) Report {
	r := Report{Day: day, Total: len(rows), Lines: make([]Line, 0, len(rows))}
	for _, row := range rows {
		line := Line{
			Client:  row.Client.Name,
			Email:   row.Client.Email,
			Status:  row.Verdict.String(),
			Verdict: row.Verdict,
		}
		if row.Found() {
			line.Subject = row.Record.Subject
			line.Date = formatDate(row.Record)
		}
		if row.Verdict == status.Pass {
			r.Pass++
		}
		r.Lines = append(r.Lines, line)
	}
	return r
}

// AllPassed reports whether every client has a passing backup.
func (r Report) AllPassed() bool {
	return r.Pass == r.Total
}

func formatDate(rec model.BackupRecord) string {
	if rec.HasDate() {
		return rec.Date.Local().Format(DateLayout)
	}
	return rec.RawDate
}

// CSV writes the report as comma separated values with a header row.
func CSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, l := range r.Lines {
		if err := cw.Write([]string{l.Client, l.Email, l.Subject, l.Date, l.Status}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVString is CSV rendered to a string.
func CSVString(r Report) (string, error) {
	var b strings.Builder
	if err := CSV(&b, r); err != nil {
		return "", err
	}
	return b.String(), nil
}

var colors = map[status.Verdict]string{
	status.Pass:    "#2e7d32",
	status.Warning: "#f9a825",
	status.Failure: "#c62828",
	status.Missing: "#c62828",
}

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"color": func(v status.Verdict) string { return colors[v] },
	"day":   func(t time.Time) string { return t.Format("Monday, 02 January 2006") },
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Backups {{day .Day}}</title></head>
<body style="font-family: sans-serif">
<h2>Backups of {{day .Day}}</h2>
<p>{{.Pass}} of {{.Total}} clients reported a successful backup.</p>
<table style="border-collapse: collapse" border="1" cellpadding="6">
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Lines}}
<tr>
<td>{{.Client}}</td>
<td>{{.Email}}</td>
<td style="color: {{color .Verdict}}">{{if .Subject}}{{.Subject}}{{else}}Missing{{end}}</td>
<td>{{.Date}}</td>
<td style="color: {{color .Verdict}}">{{.Status}}</td>
</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// HTML writes the report as a standalone HTML document.
func HTML(w io.Writer, r Report) error {
	data := struct {
		Report
		Header []string
	}{r, header}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

// HTMLString is HTML rendered to a string.
func HTMLString(r Report) (string, error) {
	var b strings.Builder
	if err := HTML(&b, r); err != nil {
		return "", err
	}
	return b.String(), nil
}
