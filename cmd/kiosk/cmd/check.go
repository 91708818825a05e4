package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that the configured record and blob stores are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := openService(cmd)
			if err != nil {
				return err
			}
			defer service.Close()

			if err := service.Check(cmd.Context()); err != nil {
				return fmt.Errorf("preflight failed: %w", err)
			}
			config := service.Config()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s records, %s blobs\n", config.Database.Type, config.Storage.Driver)
			return nil
		},
	}
}
