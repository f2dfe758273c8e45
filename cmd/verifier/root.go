package main

import (
	"fmt"
	"os"

	"github.com/benmeehan/action-verifier/internal/service_registry"
	"github.com/benmeehan/action-verifier/internal/utils"
	"github.com/benmeehan/action-verifier/pkg/file"
	"github.com/benmeehan/action-verifier/pkg/mqtt"
	"github.com/benmeehan/action-verifier/pkg/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// globalOptions holds the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "verifier",
		Short:         "Remote action verification",
		Long:          "verifier dispatches commands to device agents, captures screenshots and grades them with vision models.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "Path to the configuration file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newCaptureCommand(opts))
	root.AddCommand(newVerifyCommand(opts))
	root.AddCommand(newAuditCommand(opts))
	return root
}

// runtime is the process-wide state built from the configuration.
type runtime struct {
	config *utils.Config
	logger zerolog.Logger
	mqtt   *mqtt.MqttService // nil when MQTT is disabled
}

func loadRuntime(opts *globalOptions) (*runtime, error) {
	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(opts.configPath, fileClient)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := newLogger(config.LogLevel, opts.debug)
	logger.Debug().Str("config", opts.configPath).Msg("Configuration loaded")

	return &runtime{config: config, logger: logger}, nil
}

func newLogger(level string, debug bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// connectMQTT opens the shared broker connection when MQTT is enabled.
func (rt *runtime) connectMQTT() error {
	if !rt.config.MQTT.Enabled {
		return nil
	}

	// Unique client ID per process so several verifiers can share a broker
	clientID := rt.config.MQTT.ClientID + "-" + uuid.NewString()
	rt.logger.Info().Str("client_id", clientID).Msg("Using MQTT client ID")

	client := mqtt.NewMqttService(file.NewFileService())
	err := client.Initialize(mqtt.ConnectionOptions{
		Broker:        rt.config.MQTT.Broker,
		ClientID:      clientID,
		CACertificate: rt.config.MQTT.CACertificate,
		Username:      rt.config.MQTT.Username,
		Password:      rt.config.MQTT.Password,
	})
	if err != nil {
		return fmt.Errorf("initialize MQTT connection: %w", err)
	}
	rt.mqtt = client
	return nil
}

// objectStorage connects to the screenshot bucket. A nil client keeps screenshots inline.
func (rt *runtime) objectStorage() s3.ObjectStorageClient {
	cfg := rt.config.Storage
	if cfg.Endpoint == "" {
		rt.logger.Warn().Msg("Object storage not configured, screenshots stay inline")
		return nil
	}

	storage := s3.NewObjectStorage(s3.Options{
		Region:        cfg.Region,
		URLExpiry:     cfg.URLExpiry,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err := storage.Connect(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.UseSSL); err != nil {
		rt.logger.Warn().Err(err).Str("endpoint", cfg.Endpoint).Msg("Object storage unavailable, screenshots stay inline")
		return nil
	}
	return storage
}

// client returns the broker connection, or a nil interface when not connected.
func (rt *runtime) client() mqtt.MQTTClient {
	if rt.mqtt == nil {
		return nil
	}
	return rt.mqtt
}

func (rt *runtime) buildComponents() (*service_registry.Components, error) {
	return service_registry.BuildComponents(rt.config, rt.client(), rt.objectStorage(), rt.logger)
}

func (rt *runtime) close() {
	if rt.mqtt != nil {
		rt.mqtt.Disconnect(250)
	}
}
