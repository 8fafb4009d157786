package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VlasiukRV/realtime-transcription/internal/session"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Control the server's transcription worker",
}

func workerAction(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), getConfig().RequestTimeout.Std())
			defer cancel()

			message, err := session.RunWorker(ctx, client, action)
			if err != nil {
				return fmt.Errorf("worker %s: %w", action, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}
}

func init() {
	workerCmd.AddCommand(workerAction(session.WorkerStart, "Start the worker"))
	workerCmd.AddCommand(workerAction(session.WorkerStop, "Stop the worker"))
	workerCmd.AddCommand(workerAction(session.WorkerState, "Show the worker state"))
}
