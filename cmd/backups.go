package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/juanchiconsoli/email-monitor/config"
	"github.com/juanchiconsoli/email-monitor/progress"
	"github.com/juanchiconsoli/email-monitor/render"
	"github.com/juanchiconsoli/email-monitor/stats"
	"github.com/juanchiconsoli/email-monitor/status"
)

func newBackupsCommand(app *App) *cobra.Command {
	var showStats bool

	cmd := &cobra.Command{
		Use:   "backups [dd-mm-yyyy]",
		Short: "Show the backup status of every client for a day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(args)
			if err != nil {
				return err
			}

			f, err := app.loadFile()
			if err != nil {
				return err
			}

			rows, target, summary, err := app.collectRows(cmd.Context(), f, day)
			if err != nil {
				return err
			}

			if err := render.Backups(app.Out, target, rows); err != nil {
				return err
			}
			if showStats {
				progress.PrintSummary(app.Out, summary)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showStats, "stats", false, "Print scan statistics")
	return cmd
}

// collectRows runs one scan for day and classifies the latest record of
// every client. A zero day means today.
func (a *App) collectRows(ctx context.Context, f *config.File, day time.Time) ([]status.Row, time.Time, stats.Summary, error) {
	cls, err := classifier(f)
	if err != nil {
		return nil, time.Time{}, stats.Summary{}, err
	}

	mailbox, release, err := a.openMailbox(ctx, f)
	if err != nil {
		return nil, time.Time{}, stats.Summary{}, err
	}
	defer release()

	svc, err := a.newService(mailbox, f, nil)
	if err != nil {
		return nil, time.Time{}, stats.Summary{}, err
	}
	if day.IsZero() {
		day = svc.Today()
	}

	result, err := svc.GetBackups(ctx, day)
	if err != nil {
		return nil, time.Time{}, stats.Summary{}, err
	}
	a.logSummary(svc)

	return cls.Rows(result, svc.Clients()), day, svc.Summary(), nil
}
