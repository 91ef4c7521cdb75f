package render

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/juanchiconsoli/email-monitor/model"
	"github.com/juanchiconsoli/email-monitor/stats"
	"github.com/juanchiconsoli/email-monitor/status"
)

// DateLayout is used for every date shown to the user.
const DateLayout = "Monday, 02 January 2006 03:04 PM"

// FormatDate renders the record date, or the raw header when it could not be parsed.
func FormatDate(rec model.BackupRecord) string {
	if rec.HasDate() {
		return rec.Date.Local().Format(DateLayout)
	}
	if rec.RawDate == "" {
		return "-"
	}
	return rec.RawDate
}

// Icon returns the status marker shown next to a verdict.
func Icon(v status.Verdict) string {
	switch v {
	case status.Pass:
		return "✔"
	case status.Warning:
		return "⚠"
	case status.Failure:
		return "✘"
	default:
		return "?"
	}
}

// Styled colours text according to v.
func Styled(v status.Verdict, text string) string {
	switch v {
	case status.Pass:
		return pterm.Green(text)
	case status.Warning:
		return pterm.Yellow(text)
	default:
		return pterm.Red(text)
	}
}

func table(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// Clients prints the configured clients.
func Clients(w io.Writer, clients []model.Client) error {
	if len(clients) == 0 {
		pterm.Warning.WithWriter(w).Println("No clients configured")
		return nil
	}

	data := pterm.TableData{{"#", "Name", "Email"}}
	for i, c := range clients {
		data = append(data, []string{strconv.Itoa(i + 1), c.Name, c.Email})
	}
	return table(w, data)
}

// Emails prints every backup notification followed by the most frequent senders.
func Emails(w io.Writer, records []model.BackupRecord, topSenders int) error {
	if len(records) == 0 {
		pterm.Warning.WithWriter(w).Println("No backup notifications found")
		return nil
	}

	data := pterm.TableData{{"UID", "Sender", "Subject", "Date"}}
	senders := make(map[string]int)
	for _, rec := range records {
		data = append(data, []string{strconv.FormatUint(uint64(rec.UID), 10), rec.Sender, rec.Subject, FormatDate(rec)})
		senders[rec.Sender]++
	}
	if err := table(w, data); err != nil {
		return err
	}

	if topSenders <= 0 {
		return nil
	}
	pterm.DefaultSection.WithWriter(w).Println("Top senders")
	for i, c := range stats.Top(senders, topSenders) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, c.Key, c.Value)
	}
	return nil
}

// Backups prints one row per client for day with the latest notification and its verdict.
func Backups(w io.Writer, day time.Time, rows []status.Row) error {
	pterm.DefaultSection.WithWriter(w).Printfln("Backups of %s", day.Format("Monday, 02 January 2006"))

	if len(rows) == 0 {
		pterm.Warning.WithWriter(w).Println("No clients configured")
		return nil
	}

	data := pterm.TableData{{"Client", "Subject", "Date", "Status"}}
	for _, row := range rows {
		if !row.Found() {
			data = append(data, []string{row.Client.Name, pterm.Red("Missing"), "-", Icon(row.Verdict)})
			continue
		}
		data = append(data, []string{
			row.Client.Name,
			Styled(row.Verdict, row.Record.Subject),
			FormatDate(row.Record),
			Icon(row.Verdict),
		})
	}
	if err := table(w, data); err != nil {
		return err
	}

	counts := status.Counts(rows)
	summary := fmt.Sprintf("%d ok, %d warning, %d failed, %d missing",
		counts[status.Pass], counts[status.Warning], counts[status.Failure], counts[status.Missing])
	if counts[status.Pass] == len(rows) {
		pterm.Success.WithWriter(w).Println(summary)
	} else {
		pterm.Warning.WithWriter(w).Println(summary)
	}
	return nil
}
