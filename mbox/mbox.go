package mbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/juanchiconsoli/email-monitor/decode"
	"github.com/juanchiconsoli/email-monitor/imap"
)

const unknownSender = "MAILER-DAEMON"

// Archive appends raw messages to an mbox file.
type Archive struct {
	w      *mboxlib.Writer
	closer io.Closer
	logger *slog.Logger
	now    func() time.Time
	count  int
	closed bool
}

// Create truncates path and returns an Archive writing to it.
func Create(path string, logger *slog.Logger) (*Archive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create mbox: %w", err)
	}
	a := NewArchive(file, logger)
	a.closer = file
	return a, nil
}

// NewArchive returns an Archive writing to w. Closing it does not close w.
func NewArchive(w io.Writer, logger *slog.Logger) *Archive {
	return &Archive{
		w:      mboxlib.NewWriter(w),
		logger: logger,
		now:    time.Now,
	}
}

// Archive writes raw as one mbox entry. The separator line carries the From
// address and Date of the message when they can be read.
func (a *Archive) Archive(uid uint32, raw []byte) error {
	from, date := envelope(raw)
	if date.IsZero() {
		date = a.now()
	}

	mw, err := a.w.CreateMessage(from, date)
	if err != nil {
		return fmt.Errorf("mbox entry for UID %d: %w", uid, err)
	}
	if _, err := mw.Write(raw); err != nil {
		return fmt.Errorf("mbox write UID %d: %w", uid, err)
	}

	a.count++
	if a.logger != nil {
		a.logger.Debug("message archived", "uid", uid, "from", from, "size", len(raw))
	}
	return nil
}

// Count returns the number of archived messages.
func (a *Archive) Count() int {
	return a.count
}

// Close flushes the archive. Calling it again is a no-op.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	err := a.w.Close()
	if a.closer != nil {
		if cerr := a.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func envelope(raw []byte) (string, time.Time) {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return unknownSender, time.Time{}
	}
	h := mail.Header{Header: message.Header{Header: th}}

	from := unknownSender
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 && addrs[0].Address != "" {
		from = addrs[0].Address
	}

	date, _ := decode.ParseDate(h.Get("Date"))
	return from, date
}

type entry struct {
	raw  []byte
	date time.Time
}

// Mailbox serves the messages of an mbox file through the same search and
// fetch calls as an IMAP session. Message n of the file has UID n, starting at 1.
type Mailbox struct {
	path    string
	entries []entry
}

// Open reads every message of the mbox file at path.
func Open(path string, logger *slog.Logger) (*Mailbox, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	mb, err := Load(file, logger)
	if err != nil {
		return nil, err
	}
	mb.path = path
	return mb, nil
}

// Load reads every message from r. Unreadable messages are logged and skipped.
func Load(r io.Reader, logger *slog.Logger) (*Mailbox, error) {
	reader := mboxlib.NewReader(r)
	mb := &Mailbox{}

	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			if logger != nil {
				logger.Warn("mbox message unreadable", "index", idx, "err", err)
			}
			continue
		}

		_, date := envelope(raw)
		mb.entries = append(mb.entries, entry{raw: raw, date: date})
	}

	if logger != nil {
		logger.Debug("mbox loaded", "path", mb.path, "messages", len(mb.entries))
	}
	return mb, nil
}

// Len returns the number of messages.
func (m *Mailbox) Len() int {
	return len(m.entries)
}

// Search returns the UIDs matching q. A dated query compares the calendar day
// of each Date header in its own time zone, as SENTON does; messages without a
// readable date never match it.
func (m *Mailbox) Search(ctx context.Context, q imap.Query) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	y, mo, d := q.On.Date()
	uids := make([]uint32, 0, len(m.entries))
	for i, e := range m.entries {
		if !q.On.IsZero() {
			if e.date.IsZero() {
				continue
			}
			ey, emo, ed := e.date.Date()
			if ey != y || emo != mo || ed != d {
				continue
			}
		}
		uids = append(uids, uint32(i+1))
	}
	return uids, nil
}

// Fetch returns the raw message stored under uid.
func (m *Mailbox) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if uid == 0 || int(uid) > len(m.entries) {
		return nil, fmt.Errorf("fetch UID %d: message not found", uid)
	}
	return m.entries[uid-1].raw, nil
}
