package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/juanchiconsoli/email-monitor/decode"
	"github.com/juanchiconsoli/email-monitor/imap"
	"github.com/juanchiconsoli/email-monitor/matcher"
	"github.com/juanchiconsoli/email-monitor/model"
	"github.com/juanchiconsoli/email-monitor/stats"
)

// Mailbox is an open, folder-selected message store. *imap.Session and
// *mbox.Mailbox implement it.
type Mailbox interface {
	Search(ctx context.Context, q imap.Query) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
}

// Archiver receives the raw bytes of every accepted backup notification.
type Archiver interface {
	Archive(uid uint32, raw []byte) error
}

// Progress follows a scan. *progress.Bar implements it.
type Progress interface {
	Start(total int)
	Update(evt stats.Event)
	Stop()
}

type Options struct {
	Clients  []model.Client
	Decoder  *decode.Decoder
	Archiver Archiver
	Stats    *stats.Collector
	Progress Progress
	// Now defaults to time.Now. Its location decides what "today" is.
	Now func() time.Time
}

// Service runs the backup checks against one mailbox. It never connects or
// closes the mailbox itself.
type Service struct {
	mailbox  Mailbox
	clients  []model.Client
	decoder  *decode.Decoder
	archiver Archiver
	stats    *stats.Collector
	progress Progress
	now      func() time.Time
	logger   *slog.Logger
}

func New(mailbox Mailbox, opts Options, logger *slog.Logger) (*Service, error) {
	if mailbox == nil {
		return nil, errors.New("monitor: mailbox is nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		mailbox:  mailbox,
		clients:  opts.Clients,
		decoder:  opts.Decoder,
		archiver: opts.Archiver,
		stats:    opts.Stats,
		progress: opts.Progress,
		now:      opts.Now,
		logger:   logger,
	}
	if s.decoder == nil {
		s.decoder = decode.New("")
	}
	if s.stats == nil {
		s.stats = stats.NewCollector()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Service) Clients() []model.Client {
	return s.clients
}

// Today returns midnight of the current day in the clock's location.
func (s *Service) Today() time.Time {
	now := s.now()
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// GetBackups returns, for every client, the backup notifications sent on
// target. A zero target means today.
func (s *Service) GetBackups(ctx context.Context, target time.Time) (model.Result, error) {
	if target.IsZero() {
		target = s.Today()
	}
	started := time.Now()

	records, err := s.scan(ctx, imap.Query{On: target})
	if err != nil {
		s.logger.Error("backup check failed", "date", target.Format(time.DateOnly), "duration", time.Since(started), "err", err)
		return nil, err
	}

	result := matcher.Match(records, s.clients, target)
	matched := make(map[uint32]bool)
	for _, list := range result {
		for _, rec := range list {
			if matched[rec.UID] {
				continue
			}
			matched[rec.UID] = true
			s.stats.Emit(stats.Event{Type: stats.EventTypeMatched, UID: rec.UID})
		}
	}

	s.logger.Info("backup check completed", "date", target.Format(time.DateOnly), "clients", len(s.clients), "duration", time.Since(started))
	return result, nil
}

// ListEmails returns every backup notification of the mailbox in mailbox
// order, including those whose date could not be parsed.
func (s *Service) ListEmails(ctx context.Context) ([]model.BackupRecord, error) {
	started := time.Now()
	records, err := s.scan(ctx, imap.Query{})
	if err != nil {
		s.logger.Error("email listing failed", "duration", time.Since(started), "err", err)
		return nil, err
	}
	s.logger.Info("email listing completed", "records", len(records), "duration", time.Since(started))
	return records, nil
}

// Summary returns the counters collected so far.
func (s *Service) Summary() stats.Summary {
	return s.stats.Snapshot()
}

func (s *Service) emit(evt stats.Event) {
	s.stats.Emit(evt)
	if s.progress != nil {
		s.progress.Update(evt)
	}
}

func (s *Service) scan(ctx context.Context, q imap.Query) ([]model.BackupRecord, error) {
	uids, err := s.mailbox.Search(ctx, q)
	if err != nil {
		s.emit(stats.Event{Type: stats.EventTypeError, Err: err})
		return nil, fmt.Errorf("search %s: %w", q, err)
	}
	s.logger.Debug("messages found", "query", q.String(), "count", len(uids))

	if s.progress != nil {
		s.progress.Start(len(uids))
		defer s.progress.Stop()
	}

	records := make([]model.BackupRecord, 0, len(uids))
	for _, uid := range uids {
		s.emit(stats.Event{Type: stats.EventTypeScanned, UID: uid})

		raw, err := s.mailbox.Fetch(ctx, uid)
		if err != nil {
			s.emit(stats.Event{Type: stats.EventTypeError, UID: uid, Err: err})
			return nil, fmt.Errorf("fetch UID %d: %w", uid, err)
		}
		s.emit(stats.Event{Type: stats.EventTypeFetched, UID: uid})

		rec, issues, err := s.decoder.Decode(raw)
		if err != nil {
			if errors.Is(err, decode.ErrSkip) {
				s.emit(stats.Event{Type: stats.EventTypeSkipped, UID: uid, Detail: err.Error()})
				s.logger.Debug("message skipped", "uid", uid, "reason", err)
				continue
			}
			return nil, fmt.Errorf("decode UID %d: %w", uid, err)
		}
		for _, issue := range issues {
			s.emit(stats.Event{Type: stats.EventTypeIssue, UID: uid, Err: issue})
			s.logger.Warn("message header problem", "uid", uid, "field", issue.Field, "value", issue.Value, "err", issue.Err)
		}
		rec.UID = uid
		s.emit(stats.Event{Type: stats.EventTypeDecoded, UID: uid})

		if s.archiver != nil {
			if err := s.archiver.Archive(uid, raw); err != nil {
				s.emit(stats.Event{Type: stats.EventTypeError, UID: uid, Err: err})
				return nil, fmt.Errorf("archive UID %d: %w", uid, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
