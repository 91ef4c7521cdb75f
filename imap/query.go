package imap

import (
	"fmt"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
)

const searchDateLayout = "02-Jan-2006"

// Query selects messages in the selected folder. The zero Query matches every message.
type Query struct {
	// On restricts the search to messages sent on this calendar day.
	On time.Time
}

// String renders the query as an IMAP search expression.
func (q Query) String() string {
	if q.On.IsZero() {
		return "ALL"
	}
	return fmt.Sprintf(`(SENTON "%s")`, q.On.Format(searchDateLayout))
}

// criteria expresses SENTON as the equivalent SENTSINCE/SENTBEFORE pair.
func (q Query) criteria() *imapv2.SearchCriteria {
	if q.On.IsZero() {
		return &imapv2.SearchCriteria{}
	}
	day := time.Date(q.On.Year(), q.On.Month(), q.On.Day(), 0, 0, 0, 0, time.UTC)
	return &imapv2.SearchCriteria{
		SentSince:  day,
		SentBefore: day.AddDate(0, 0, 1),
	}
}
