package matcher

import (
	"sort"
	"strings"
	"time"

	"github.com/juanchiconsoli/email-monitor/model"
)

// Match groups records under every client whose name occurs in the subject.
//
// Records without a parsed date are dropped and the rest are ordered oldest
// first. A non-zero on keeps only records sent on that calendar day, read in
// the zone of each record's own Date header. Each client gets a key even when nothing matched, and a
// record is listed under every client whose name it contains.
func Match(records []model.BackupRecord, clients []model.Client, on time.Time) model.Result {
	result := make(model.Result, len(clients))
	if len(clients) == 0 {
		return result
	}

	sorted := Sorted(records)
	if !on.IsZero() {
		sorted = OnDay(sorted, on)
	}

	for _, client := range clients {
		matched := make([]model.BackupRecord, 0)
		for _, rec := range sorted {
			if strings.Contains(rec.Subject, client.Name) {
				matched = append(matched, rec)
			}
		}
		result[client.Name] = matched
	}
	return result
}

// Sorted returns the dated records in ascending date order. Equal dates keep
// their input order.
func Sorted(records []model.BackupRecord) []model.BackupRecord {
	out := make([]model.BackupRecord, 0, len(records))
	for _, rec := range records {
		if rec.HasDate() {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// OnDay keeps the records whose date falls on day's calendar date. Each
// record's day is read in the zone of its own Date header, as SENTON does.
func OnDay(records []model.BackupRecord, day time.Time) []model.BackupRecord {
	y, m, d := day.Date()

	out := make([]model.BackupRecord, 0, len(records))
	for _, rec := range records {
		ry, rm, rd := rec.Date.Date()
		if ry == y && rm == m && rd == d {
			out = append(out, rec)
		}
	}
	return out
}
