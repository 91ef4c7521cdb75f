package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/juanchiconsoli/email-monitor/config"
	"github.com/juanchiconsoli/email-monitor/credential"
	"github.com/juanchiconsoli/email-monitor/decode"
	"github.com/juanchiconsoli/email-monitor/imap"
	"github.com/juanchiconsoli/email-monitor/mbox"
	"github.com/juanchiconsoli/email-monitor/monitor"
	"github.com/juanchiconsoli/email-monitor/progress"
	"github.com/juanchiconsoli/email-monitor/stats"
	"github.com/juanchiconsoli/email-monitor/status"
)

// DayLayout is the dd-mm-yyyy form accepted for target dates.
const DayLayout = "02-01-2006"

func keyringLookup(account string) (string, error) {
	store, err := credential.Open()
	if err != nil {
		return "", err
	}
	return store.Get(account)
}

func (a *App) loadFile() (*config.File, error) {
	f, err := config.Load(a.Options.ConfigPath, a.lookup)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug("configuration loaded", "path", f.Path(), "clients", len(f.Clients))
	return f, nil
}

// parseDay reads an optional dd-mm-yyyy argument. No argument means today.
func parseDay(args []string) (time.Time, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation(DayLayout, strings.TrimSpace(args[0]), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected dd-mm-yyyy", args[0])
	}
	return day, nil
}

// openMailbox connects to the configured IMAP folder, or loads the mbox
// archive given with --mbox. The returned function releases the mailbox.
func (a *App) openMailbox(ctx context.Context, f *config.File) (monitor.Mailbox, func(), error) {
	if a.Options.MboxPath != "" {
		mb, err := mbox.Open(a.Options.MboxPath, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		return mb, func() {}, nil
	}

	session, err := imap.NewSession(imap.Options{
		Host:               f.Email.Server,
		Port:               f.Email.Port,
		Username:           f.Email.Email,
		Password:           f.Email.Password,
		UseTLS:             f.Email.TLS,
		InsecureSkipVerify: f.Email.InsecureSkipVerify,
		Timeout:            a.Options.Timeout,
	}, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	if err := session.Connect(ctx); err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := session.Close(); err != nil {
			a.Logger.Warn("closing imap session", "err", err)
		}
	}
	if err := session.SelectFolder(ctx, f.Email.Folder); err != nil {
		closeFn()
		return nil, nil, err
	}
	return session, closeFn, nil
}

func (a *App) newService(mailbox monitor.Mailbox, f *config.File, archiver monitor.Archiver) (*monitor.Service, error) {
	opts := monitor.Options{
		Clients:  f.ClientList(),
		Decoder:  decode.New(f.Keywords.Backup),
		Archiver: archiver,
		Stats:    stats.NewCollector(),
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		opts.Progress = progress.New(a.Options.LogLevel)
	}
	return monitor.New(mailbox, opts, a.Logger)
}

func classifier(f *config.File) (*status.Classifier, error) {
	c, err := status.New(status.Options{Pass: f.Keywords.Pass, Warning: f.Keywords.Warning})
	if err != nil {
		return nil, fmt.Errorf("%w: keywords: %v", config.ErrInvalidConfig, err)
	}
	return c, nil
}

func (a *App) logSummary(svc *monitor.Service) {
	a.Logger.Info("run summary", svc.Summary().LogAttrs()...)
}
