package service_registry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/benmeehan/action-verifier/internal/services"
	"github.com/benmeehan/action-verifier/internal/state_managers"
	"github.com/benmeehan/action-verifier/internal/store"
	"github.com/benmeehan/action-verifier/internal/utils"
	"github.com/benmeehan/action-verifier/pkg/mqtt"
	"github.com/benmeehan/action-verifier/pkg/s3"
	"github.com/benmeehan/action-verifier/pkg/vision"
	"github.com/rs/zerolog"
)

// Components is the wired verification pipeline.
type Components struct {
	Store        store.Store
	Relay        *services.RelayService // nil when MQTT is disabled
	Dispatcher   *services.DispatchService
	Screenshots  *services.ScreenshotService
	Verifier     *vision.Verifier
	Guard        *services.EvidenceGuard
	Audit        *state_managers.AuditStateManager // nil when auditing is disabled
	Orchestrator *services.Orchestrator
}

// BuildComponents wires every component from config. mqttClient is required only when
// config.MQTT.Enabled; storage may be nil, in which case screenshots stay inline.
func BuildComponents(config *utils.Config, mqttClient mqtt.MQTTClient, storage s3.ObjectStorageClient, logger zerolog.Logger) (*Components, error) {
	c := &Components{}
	clock := utils.NewRealClock()

	backing, err := OpenStore(config)
	if err != nil {
		return nil, err
	}
	c.Store = backing

	var commands store.CommandStore = backing
	var devices store.DeviceStore = backing
	if config.MQTT.Enabled {
		if mqttClient == nil {
			c.Close()
			return nil, fmt.Errorf("mqtt is enabled but no client was provided")
		}
		c.Relay = services.NewRelayService(
			config.Topics.Commands,
			config.Topics.Results,
			config.Topics.Heartbeats,
			config.MQTT.QOS,
			backing,
			mqttClient,
			logger.With().Str("service", "relay").Logger(),
		)
		commands = c.Relay
		devices = c.Relay
	}

	c.Dispatcher, err = services.NewDispatchService(
		devices,
		commands,
		clock,
		config.Dispatch.PollInterval,
		config.Dispatch.MaxWait,
		config.Dispatch.DeviceTTL,
		config.Dispatch.MinAgentVersion,
		logger.With().Str("service", "dispatch").Logger(),
	)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Screenshots = services.NewScreenshotService(
		c.Dispatcher,
		storage,
		config.Storage.Bucket,
		clock,
		logger.With().Str("service", "screenshot").Logger(),
	)

	c.Verifier, err = NewVisionVerifier(config, logger.With().Str("service", "vision").Logger())
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Guard = services.NewEvidenceGuard(config.Verification.Required)
	if !c.Guard.Required() {
		logger.Warn().Msg("Evidence guard disabled, successful results are not checked for evidence")
	}

	var audit services.AuditRecorder
	if config.Audit.Enabled {
		c.Audit, err = state_managers.NewAuditStateManager(config.Audit.Path, logger.With().Str("service", "audit").Logger())
		if err != nil {
			c.Close()
			return nil, err
		}
		audit = c.Audit
	}

	c.Orchestrator = services.NewOrchestrator(
		c.Screenshots,
		c.Verifier,
		c.Guard,
		audit,
		clock,
		services.OrchestratorOptions{
			MinConfidence:    config.Verification.MinConfidence,
			StrictConfidence: config.Verification.StrictConfidence,
		},
		logger.With().Str("service", "orchestrator").Logger(),
	)

	return c, nil
}

// OpenStore opens the configured command/device store backend.
func OpenStore(config *utils.Config) (store.Store, error) {
	switch config.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite", "":
		return store.NewSQLiteStore(config.Store.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
}

// NewVisionVerifier builds the provider chain in configured priority order.
func NewVisionVerifier(config *utils.Config, logger zerolog.Logger) (*vision.Verifier, error) {
	client := &http.Client{Timeout: config.Vision.Timeout}

	providers := make([]vision.Provider, 0, len(config.Vision.Providers))
	for _, pc := range config.Vision.Providers {
		provider, err := vision.NewProvider(vision.ProviderSettings{
			Name:        pc.Name,
			Kind:        pc.Kind,
			Endpoint:    pc.Endpoint,
			Model:       pc.Model,
			APIKeyEnv:   pc.APIKeyEnv,
			Temperature: config.Vision.Temperature,
			MaxTokens:   config.Vision.MaxTokens,
		}, client)
		if err != nil {
			return nil, fmt.Errorf("vision provider %q: %w", pc.Name, err)
		}
		if env, missing := vision.MissingAPIKey(provider); missing {
			logger.Warn().Str("provider", provider.Name()).Str("api_key_env", env).Msg("Vision provider has no API key, leaving it out of the chain")
			continue
		}
		providers = append(providers, provider)
	}
	if len(providers) == 0 {
		logger.Error().Int("configured", len(config.Vision.Providers)).Msg("No vision provider has an API key, every verification will degrade")
	}

	verifier := vision.NewVerifier(providers, vision.JSONVerdictParser{}, config.Vision.FallbackDepth, logger)
	logger.Info().Strs("providers", verifier.Providers()).Int("fallback_depth", config.Vision.FallbackDepth).Msg("Vision verifier ready")
	return verifier, nil
}

// Close releases the store and audit files.
func (c *Components) Close() error {
	var errs []error
	if c.Audit != nil {
		errs = append(errs, c.Audit.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
