package cmd

import (
	"github.com/spf13/cobra"

	"github.com/juanchiconsoli/email-monitor/render"
)

func newClientsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List the configured clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := app.loadFile()
			if err != nil {
				return err
			}
			return render.Clients(app.Out, f.ClientList())
		},
	}
}
