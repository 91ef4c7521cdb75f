package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/juanchiconsoli/email-monitor/config"
	"github.com/juanchiconsoli/email-monitor/mailer"
	"github.com/juanchiconsoli/email-monitor/report"
	"github.com/juanchiconsoli/email-monitor/state"
)

type reportFlags struct {
	dryRun   bool
	htmlPath string
	to       []string
	schedule string
	stateDir string
	force    bool
}

// ledger opens the sent-report ledger when --state-dir is set.
func (f reportFlags) ledger() (state.Ledger, error) {
	if f.stateDir == "" {
		return nil, nil
	}
	return state.NewFileLedger(f.stateDir)
}

func newReportCommand(app *App) *cobra.Command {
	var flags reportFlags

	cmd := &cobra.Command{
		Use:   "report [dd-mm-yyyy]",
		Short: "Email the backup status of a day to the report recipients",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(args)
			if err != nil {
				return err
			}
			if flags.schedule != "" && len(args) > 0 {
				return fmt.Errorf("a date cannot be combined with --schedule")
			}
			ledger, err := flags.ledger()
			if err != nil {
				return err
			}
			if flags.schedule != "" {
				return app.scheduleReports(cmd.Context(), flags, ledger)
			}
			return app.runReport(cmd.Context(), day, flags, ledger)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the CSV report instead of sending it")
	cmd.Flags().StringVar(&flags.htmlPath, "html", "", "With --dry-run, also write the HTML report to this file")
	cmd.Flags().StringSliceVar(&flags.to, "to", nil, "Recipients overriding report.to")
	cmd.Flags().StringVar(&flags.schedule, "schedule", "", `Keep running and send the report on this cron schedule (e.g. "0 9 * * *")`)
	cmd.Flags().StringVar(&flags.stateDir, "state-dir", "", "Remember sent reports in this directory and send each day only once")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Send even if the ledger says the day was already reported")
	return cmd
}

func (a *App) runReport(ctx context.Context, day time.Time, flags reportFlags, ledger state.Ledger) error {
	f, err := a.loadFile()
	if err != nil {
		return err
	}

	if !flags.dryRun && ledger != nil && !flags.force {
		check := day
		if check.IsZero() {
			check = time.Now()
		}
		if ledger.AlreadySent(check) {
			a.Logger.Info("report already sent", "date", check.Format(time.DateOnly))
			pterm.Info.WithWriter(a.Out).Printfln("Report for %s was already sent (use --force to resend)", check.Format(DayLayout))
			return nil
		}
	}

	rows, target, _, err := a.collectRows(ctx, f, day)
	if err != nil {
		return err
	}
	r := report.Build(target, rows)

	if flags.dryRun {
		if err := report.CSV(a.Out, r); err != nil {
			return err
		}
		if flags.htmlPath != "" {
			html, err := report.HTMLString(r)
			if err != nil {
				return err
			}
			if err := os.WriteFile(flags.htmlPath, []byte(html), 0o644); err != nil {
				return fmt.Errorf("write html report: %w", err)
			}
		}
		return nil
	}

	to := f.Report.To
	if len(flags.to) > 0 {
		to = flags.to
	}
	if len(to) == 0 {
		return fmt.Errorf("%w: report.to has no recipients", config.ErrInvalidConfig)
	}

	m, err := mailer.New(mailer.Config{
		Host:     f.SMTP.Server,
		Port:     f.SMTP.Port,
		Username: f.SMTP.Username,
		Password: f.SMTP.Password,
		From:     f.SMTP.From,
		FromName: f.SMTP.FromName,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("%w: smtp: %v", config.ErrInvalidConfig, err)
	}

	if err := m.Send(ctx, to, f.Report.SubjectFor(target), r); err != nil {
		return err
	}
	if ledger != nil {
		if err := ledger.MarkSent(target, to); err != nil {
			a.Logger.Warn("recording sent report", "err", err)
		}
	}
	pterm.Success.WithWriter(a.Out).Printfln("Report for %s sent to %s (%d/%d ok)",
		target.Format(DayLayout), strings.Join(to, ", "), r.Pass, r.Total)
	return nil
}

// scheduleReports sends today's report on every tick of the schedule until ctx is
// cancelled. A failed run is logged and the schedule keeps going.
func (a *App) scheduleReports(ctx context.Context, flags reportFlags, ledger state.Ledger) error {
	c := newScheduler(a.Logger)
	id, err := c.AddFunc(flags.schedule, func() {
		if err := a.runReport(ctx, time.Time{}, flags, ledger); err != nil {
			a.Logger.Error("scheduled report failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", flags.schedule, err)
	}

	c.Start()
	a.Logger.Info("report scheduled", "schedule", flags.schedule, "next", c.Entry(id).Next)

	<-ctx.Done()
	<-c.Stop().Done()
	a.Logger.Info("report schedule stopped")
	return nil
}

// newScheduler returns a cron in local time that skips a tick while the
// previous report is still running and recovers from job panics.
func newScheduler(logger *slog.Logger) *cron.Cron {
	l := cronLogger{logger}
	return cron.New(
		cron.WithLocation(time.Local),
		cron.WithLogger(l),
		cron.WithChain(
			cron.SkipIfStillRunning(l),
			cron.Recover(l),
		),
	)
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
