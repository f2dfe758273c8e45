package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/action-verifier/internal/service_registry"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Relay device traffic and process verification jobs over MQTT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			defer func() {
				if err := components.Close(); err != nil {
					rt.logger.Error().Err(err).Msg("Failed to close components")
				}
			}()

			registry := service_registry.NewServiceRegistry(rt.client(), rt.logger)
			if err := registry.RegisterServices(rt.config, components); err != nil {
				return err
			}
			if len(registry.Services()) == 0 {
				rt.logger.Warn().Msg("MQTT disabled, nothing to serve")
			}
			if err := registry.StartServices(); err != nil {
				return err
			}
			rt.logger.Info().Strs("services", registry.Services()).Msg("All services started successfully")

			// Handle graceful shutdown
			stopCh := make(chan os.Signal, 1)
			signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-stopCh:
			case <-cmd.Context().Done():
			}

			rt.logger.Info().Msg("Shutting down gracefully...")
			return registry.StopServices()
		},
	}
}
