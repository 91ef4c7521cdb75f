package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/juanchiconsoli/email-monitor/mbox"
	"github.com/juanchiconsoli/email-monitor/monitor"
	"github.com/juanchiconsoli/email-monitor/progress"
	"github.com/juanchiconsoli/email-monitor/render"
)

func newEmailsCommand(app *App) *cobra.Command {
	var (
		exportPath string
		top        int
		showStats  bool
	)

	cmd := &cobra.Command{
		Use:   "emails",
		Short: "List every backup notification in the mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := app.loadFile()
			if err != nil {
				return err
			}

			mailbox, release, err := app.openMailbox(ctx, f)
			if err != nil {
				return err
			}
			defer release()

			var archive *mbox.Archive
			var archiver monitor.Archiver
			if exportPath != "" {
				archive, err = mbox.Create(exportPath, app.Logger)
				if err != nil {
					return err
				}
				defer archive.Close()
				archiver = archive
			}

			svc, err := app.newService(mailbox, f, archiver)
			if err != nil {
				return err
			}

			records, err := svc.ListEmails(ctx)
			if err != nil {
				return err
			}
			defer app.logSummary(svc)

			if err := render.Emails(app.Out, records, top); err != nil {
				return err
			}

			if archive != nil {
				if err := archive.Close(); err != nil {
					return fmt.Errorf("close mbox archive: %w", err)
				}
				pterm.Success.WithWriter(app.Out).Printfln("Exported %d messages to %s", archive.Count(), exportPath)
			}
			if showStats {
				progress.PrintSummary(app.Out, svc.Summary())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&exportPath, "export", "", "Write the backup notifications to this mbox file")
	cmd.Flags().IntVarP(&top, "top", "t", 5, "Number of most frequent senders to display (0 disables)")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print scan statistics")
	return cmd
}
