package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VlasiukRV/realtime-transcription/internal/session"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "Print the languages the server offers",
	Long: `Print the server's language catalog, one code per line.

When the catalog cannot be fetched the built-in list is printed and a
warning goes to stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), getConfig().RequestTimeout.Std())
		defer cancel()

		codes, err := client.Languages(ctx)
		if err == nil && len(codes) == 0 {
			err = fmt.Errorf("empty catalog")
		}
		out := cmd.OutOrStdout()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: language catalog unavailable (%v), using built-in list\n", err)
			for _, l := range session.DefaultLanguages {
				fmt.Fprintf(out, "%s\t%s\n", l.Code, l.Name)
			}
			return nil
		}
		for _, code := range codes {
			fmt.Fprintln(out, code)
		}
		return nil
	},
}
