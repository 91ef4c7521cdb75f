package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanchiconsoli/email-monitor/imap"
	"github.com/juanchiconsoli/email-monitor/mbox"
	"github.com/juanchiconsoli/email-monitor/model"
	"github.com/juanchiconsoli/email-monitor/stats"
)

type fakeMailbox struct {
	messages map[uint32][]byte
	order    []uint32
	queries  []imap.Query

	searchErr error
	fetchErr  map[uint32]error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{messages: map[uint32][]byte{}, fetchErr: map[uint32]error{}}
}

func (f *fakeMailbox) add(uid uint32, subject, date string) {
	raw := fmt.Sprintf("From: agent@example.com\r\nSubject: %s\r\n", subject)
	if date != "" {
		raw += "Date: " + date + "\r\n"
	}
	raw += "\r\nbody\r\n"
	f.messages[uid] = []byte(raw)
	f.order = append(f.order, uid)
}

func (f *fakeMailbox) Search(_ context.Context, q imap.Query) ([]uint32, error) {
	f.queries = append(f.queries, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]uint32(nil), f.order...), nil
}

func (f *fakeMailbox) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	if err := f.fetchErr[uid]; err != nil {
		return nil, err
	}
	return f.messages[uid], nil
}

type recordingArchiver struct {
	uids []uint32
	err  error
}

func (r *recordingArchiver) Archive(uid uint32, _ []byte) error {
	if r.err != nil {
		return r.err
	}
	r.uids = append(r.uids, uid)
	return nil
}

var acmeGlobex = []model.Client{{Name: "Acme", Email: "it@acme.example"}, {Name: "Globex", Email: "it@globex.example"}}

func TestGetBackups_AcmeGlobex(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(7, "Acme sauvegarde success", "Fri, 05 Jan 2024 22:15:00 +0000")
	mb.add(8, "Globex sauvegarde failed", "Fri, 05 Jan 2024 09:00:00 +0000")
	mb.add(9, "Newsletter", "Fri, 05 Jan 2024 10:00:00 +0000")

	collector := stats.NewCollector()
	svc, err := New(mb, Options{Clients: acmeGlobex, Stats: collector}, nil)
	require.NoError(t, err)

	target := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	result, err := svc.GetBackups(context.Background(), target)
	require.NoError(t, err)

	require.Len(t, result, 2)
	require.Len(t, result["Acme"], 1)
	assert.Equal(t, uint32(7), result["Acme"][0].UID)
	assert.Equal(t, "Acme sauvegarde success", result["Acme"][0].Subject)
	require.Len(t, result["Globex"], 1)
	assert.Equal(t, uint32(8), result["Globex"][0].UID)

	require.Len(t, mb.queries, 1)
	assert.Equal(t, `(SENTON "05-Jan-2024")`, mb.queries[0].String())

	s := svc.Summary()
	assert.Equal(t, 3, s.Scanned)
	assert.Equal(t, 2, s.Decoded)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 2, s.Matched)
}

func TestGetBackups_MalformedDate(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(1, "Acme sauvegarde success", "not-a-date")

	svc, err := New(mb, Options{Clients: acmeGlobex}, nil)
	require.NoError(t, err)

	result, err := svc.GetBackups(context.Background(), time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, result["Acme"])
	assert.Empty(t, result["Globex"])
	assert.Equal(t, 1, svc.Summary().Issues)

	emails, err := svc.ListEmails(context.Background())
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.False(t, emails[0].HasDate())
	assert.Equal(t, "not-a-date", emails[0].RawDate)
}

func TestGetBackups_ZeroTargetIsToday(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	mb := newFakeMailbox()
	mb.add(1, "Acme sauvegarde success", "Thu, 11 Jul 2024 00:30:00 +0100")
	mb.add(2, "Globex sauvegarde success", "Wed, 10 Jul 2024 23:30:00 +0000")

	svc, err := New(mb, Options{
		Clients: acmeGlobex,
		Now:     func() time.Time { return time.Date(2024, time.July, 11, 8, 0, 0, 0, loc) },
	}, nil)
	require.NoError(t, err)

	result, err := svc.GetBackups(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, result["Acme"], 1)
	assert.Empty(t, result["Globex"], "sent on the 10th as written in its Date header")
	assert.Equal(t, `(SENTON "11-Jul-2024")`, mb.queries[0].String())
}

func TestGetBackups_HeaderZoneDecidesTheDay(t *testing.T) {
	var buf bytes.Buffer
	archive := mbox.NewArchive(&buf, nil)
	require.NoError(t, archive.Archive(1, []byte("From: nas@acme.example\r\nSubject: Acme sauvegarde success\r\nDate: Fri, 05 Jan 2024 23:30:00 -0500\r\n\r\nok\r\n")))
	require.NoError(t, archive.Close())

	box, err := mbox.Load(&buf, nil)
	require.NoError(t, err)

	target := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	uids, err := box.Search(context.Background(), imap.Query{On: target})
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, uids)

	svc, err := New(box, Options{Clients: acmeGlobex}, nil)
	require.NoError(t, err)

	result, err := svc.GetBackups(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, result["Acme"], 1, "04:30 UTC on the 6th, but the 5th as written")
	assert.Equal(t, uint32(1), result["Acme"][0].UID)
	assert.Empty(t, result["Globex"])
}

func TestGetBackups_MatchedCountsMessagesOnce(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(1, "Acme Globex sauvegarde success", "Fri, 05 Jan 2024 10:00:00 +0000")
	mb.add(2, "Acme sauvegarde success", "Fri, 05 Jan 2024 11:00:00 +0000")

	svc, err := New(mb, Options{Clients: acmeGlobex}, nil)
	require.NoError(t, err)

	result, err := svc.GetBackups(context.Background(), time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, result["Acme"], 2)
	assert.Len(t, result["Globex"], 1)

	s := svc.Summary()
	assert.Equal(t, 2, s.Decoded)
	assert.Equal(t, 2, s.Matched)
}

func TestGetBackups_NoClients(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(1, "Acme sauvegarde success", "Fri, 05 Jan 2024 22:15:00 +0000")

	svc, err := New(mb, Options{}, nil)
	require.NoError(t, err)

	result, err := svc.GetBackups(context.Background(), time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestGetBackups_Errors(t *testing.T) {
	timeout := &imap.ConnectionError{Op: "fetch", Addr: "imap.example.com:993", Err: imap.ErrTimeout}

	t.Run("search", func(t *testing.T) {
		mb := newFakeMailbox()
		mb.searchErr = timeout
		svc, err := New(mb, Options{Clients: acmeGlobex}, nil)
		require.NoError(t, err)

		result, err := svc.GetBackups(context.Background(), time.Time{})
		assert.Nil(t, result)
		assert.True(t, imap.IsConnectionError(err))
		assert.ErrorIs(t, err, imap.ErrTimeout)
	})

	t.Run("fetch aborts the run", func(t *testing.T) {
		mb := newFakeMailbox()
		mb.add(1, "Acme sauvegarde success", "Fri, 05 Jan 2024 22:15:00 +0000")
		mb.add(2, "Globex sauvegarde success", "Fri, 05 Jan 2024 22:15:00 +0000")
		mb.fetchErr[2] = timeout
		svc, err := New(mb, Options{Clients: acmeGlobex}, nil)
		require.NoError(t, err)

		result, err := svc.GetBackups(context.Background(), time.Time{})
		assert.Nil(t, result)
		assert.ErrorIs(t, err, imap.ErrTimeout)
		assert.Equal(t, 1, svc.Summary().Errors)
	})

	t.Run("archive", func(t *testing.T) {
		mb := newFakeMailbox()
		mb.add(1, "Acme sauvegarde success", "Fri, 05 Jan 2024 22:15:00 +0000")
		diskFull := errors.New("disk full")
		svc, err := New(mb, Options{Clients: acmeGlobex, Archiver: &recordingArchiver{err: diskFull}}, nil)
		require.NoError(t, err)

		_, err = svc.ListEmails(context.Background())
		assert.ErrorIs(t, err, diskFull)
	})
}

func TestListEmails_OrderAndArchive(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(3, "Globex sauvegarde success", "Sat, 06 Jan 2024 01:00:00 +0000")
	mb.add(1, "Acme sauvegarde success", "Fri, 05 Jan 2024 01:00:00 +0000")
	mb.add(2, "Weekly newsletter", "Fri, 05 Jan 2024 02:00:00 +0000")
	mb.add(4, "Initech sauvegarde", "")

	archiver := &recordingArchiver{}
	svc, err := New(mb, Options{Archiver: archiver}, nil)
	require.NoError(t, err)

	records, err := svc.ListEmails(context.Background())
	require.NoError(t, err)

	var uids []uint32
	for _, rec := range records {
		uids = append(uids, rec.UID)
	}
	assert.Equal(t, []uint32{3, 1, 4}, uids)
	assert.Equal(t, []uint32{3, 1, 4}, archiver.uids)
	assert.Equal(t, "ALL", mb.queries[0].String())
}

func TestNew_NilMailbox(t *testing.T) {
	_, err := New(nil, Options{}, nil)
	assert.Error(t, err)
}

type recordingProgress struct {
	total   int
	fetched int
	stopped bool
}

func (p *recordingProgress) Start(total int) { p.total = total }

func (p *recordingProgress) Update(evt stats.Event) {
	if evt.Type == stats.EventTypeFetched {
		p.fetched++
	}
}

func (p *recordingProgress) Stop() { p.stopped = true }

func TestListEmails_ReportsProgress(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(1, "Acme sauvegarde success", "Fri, 05 Jan 2024 01:00:00 +0000")
	mb.add(2, "Weekly newsletter", "Fri, 05 Jan 2024 02:00:00 +0000")

	p := &recordingProgress{}
	svc, err := New(mb, Options{Progress: p}, nil)
	require.NoError(t, err)

	_, err = svc.ListEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.total)
	assert.Equal(t, 2, p.fetched)
	assert.True(t, p.stopped)
}
