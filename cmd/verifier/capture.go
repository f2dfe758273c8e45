package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newCaptureCommand(opts *globalOptions) *cobra.Command {
	var (
		userID        string
		correlationID string
		label         string
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a screenshot from one of the user's devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if correlationID == "" {
				correlationID = uuid.NewString()
			}

			rt, err := loadRuntime(opts)
			if err != nil {
				return err
			}
			if err := rt.connectMQTT(); err != nil {
				return err
			}
			defer rt.close()

			components, err := rt.buildComponents()
			if err != nil {
				return err
			}
			defer components.Close()

			// Results only arrive while the relay is subscribed
			if components.Relay != nil {
				if err := components.Relay.Start(); err != nil {
					return err
				}
				defer components.Relay.Stop()
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			result := components.Screenshots.Capture(ctx, userID, correlationID, label)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User whose device takes the screenshot")
	cmd.Flags().StringVar(&correlationID, "correlation", "", "Correlation ID (generated when empty)")
	cmd.Flags().StringVarP(&label, "label", "l", "capture", "Label used in the stored object name")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall deadline for the capture")
	return cmd
}
