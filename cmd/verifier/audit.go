package main

import (
	"github.com/benmeehan/action-verifier/internal/state_managers"
	"github.com/spf13/cobra"
)

func newAuditCommand(opts *globalOptions) *cobra.Command {
	var correlationID string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded verification results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(opts)
			if err != nil {
				return err
			}

			audit, err := state_managers.NewAuditStateManager(rt.config.Audit.Path, rt.logger)
			if err != nil {
				return err
			}
			defer audit.Close()

			records, err := audit.List(correlationID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&correlationID, "correlation", "", "Only show records for this correlation ID")
	return cmd
}
