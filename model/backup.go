package model

import "time"

// Client is a monitored customer whose backup notifications are expected in the mailbox.
type Client struct {
	Name  string
	Email string
}

// BackupRecord is one backup notification extracted from the mailbox.
type BackupRecord struct {
	UID     uint32
	Subject string
	Sender  string
	// Date is zero when the Date header could not be parsed.
	Date    time.Time
	RawDate string
}

// HasDate reports whether the record carries a comparable timestamp.
func (r BackupRecord) HasDate() bool {
	return !r.Date.IsZero()
}

// Result maps every registered client name to its backup records, oldest first.
// Clients without any notification map to an empty slice.
type Result map[string][]BackupRecord

// Latest returns the most recent record for name.
func (r Result) Latest(name string) (BackupRecord, bool) {
	records := r[name]
	if len(records) == 0 {
		return BackupRecord{}, false
	}
	return records[len(records)-1], true
}
