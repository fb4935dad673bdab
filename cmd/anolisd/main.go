// Package main is the reference host entry point for anolisd: it loads
// configuration, composes the kernel, attaches providers behind the
// Provider Supervisor, and starts the ambient REST/WebSocket and MQTT
// adapters. None of this lives in the kernel packages themselves — the
// core never dials a broker or binds a socket (§1 Non-goals, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/nexus-edge/anolis/internal/config"
	"github.com/nexus-edge/anolis/internal/httpapi"
	"github.com/nexus-edge/anolis/internal/kernel"
	"github.com/nexus-edge/anolis/internal/kernel/automation"
	"github.com/nexus-edge/anolis/internal/kernel/emitter"
	"github.com/nexus-edge/anolis/internal/logging"
	"github.com/nexus-edge/anolis/internal/metrics"
	"github.com/nexus-edge/anolis/internal/providers/modbusprovider"
	"github.com/nexus-edge/anolis/internal/providers/opcuaprovider"
	"github.com/nexus-edge/anolis/internal/sink/mqttsink"
	"github.com/nexus-edge/anolis/internal/supervisor"
)

const (
	serviceName    = "anolisd"
	serviceVersion = "0.1.0"

	defaultMaxRestartAttempts = 5
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "anolisd: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format).With().
		Str("service", serviceName).
		Str("version", serviceVersion).
		Logger()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Info().Msgf(format, args...)
	})); err != nil {
		log.Warn().Err(err).Msg("failed to set GOMAXPROCS from cgroup quota")
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(0.9)); err != nil {
		log.Warn().Err(err).Msg("failed to set GOMEMLIMIT from cgroup limit")
	}

	log.Info().Msg("starting anolis control kernel")

	var metricsReg *metrics.Registry
	if cfg.Metrics.Enabled {
		metricsReg = metrics.NewRegistry()
	}

	k := kernel.New(kernel.Config{
		PollInterval:         cfg.Kernel.PollInterval(),
		AutomationEnabled:    cfg.Kernel.AutomationEnabled,
		TickRateHz:           cfg.Kernel.TickRateHz,
		ManualGatingPolicy:   cfg.Kernel.GatingPolicy(),
		InitialMode:          cfg.Kernel.Mode(),
		ParameterDefinitions: cfg.Kernel.ParameterDefinitions(),
		EventQueueDefault:    cfg.Kernel.EventQueueDefault,
		MaxSubscribers:       cfg.Kernel.MaxSubscribers,
	}, newIdleRoot(), metricsReg, log)

	super := supervisor.New(k.Emitter, cfg.Kernel.SupervisorPollInterval(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attached := attachProviders(ctx, cfg.Kernel.Providers, k, super, log)
	super.Start()
	k.Start()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.Port, log)
	}

	httpServer := httpapi.NewServer(httpapi.Config{Host: cfg.HTTP.Host, Port: cfg.HTTP.Port}, k, log)
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	mqttClient := mqttsink.NewClient(mqttsink.Config{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  cfg.MQTT.ClientID,
		Topic:     cfg.MQTT.Topic,
		QoS:       cfg.MQTT.QoS,
	}, log)
	var mqttForwarder *mqttsink.Forwarder
	if err := mqttClient.Connect(); err != nil {
		log.Error().Err(err).Msg("mqtt broker connect failed, telemetry republishing disabled")
	} else if sub, err := k.Emitter.Subscribe(emitter.Filter{}, cfg.Kernel.EventQueueDefault, "mqtt-forwarder"); err != nil {
		log.Error().Err(err).Msg("mqtt forwarder subscribe failed")
	} else {
		mqttForwarder = mqttsink.NewForwarder(mqttClient, sub, log)
		mqttForwarder.Start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received, draining in reverse startup order")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if mqttForwarder != nil {
		mqttForwarder.Stop()
	}
	mqttClient.Disconnect()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down metrics server")
		}
	}

	k.Stop()
	super.Stop()

	for _, p := range attached {
		p.disconnect(shutdownCtx)
	}

	log.Info().Msg("anolis control kernel stopped")
}

// idleRoot is the reference host's default behavior tree root: a no-op leaf
// reporting SUCCESS every tick. Building real trees out of the node
// primitives is outside the kernel's scope (§1 Non-goal "does not implement
// the behavior-tree node library, only its host"); deployments that enable
// automation supply their own Node built from their own node library.
type idleRoot struct{}

func newIdleRoot() automation.Node { return idleRoot{} }

func (idleRoot) Tick(ctx context.Context, tick *automation.TickContext) (automation.TickResult, error) {
	return automation.TickSuccess, nil
}

// attachedProvider pairs a provider ID with the means to tear its
// connection down during shutdown, since modbusprovider and opcuaprovider
// expose incompatible Disconnect signatures (one takes a context, one
// doesn't).
type attachedProvider struct {
	id         string
	disconnect func(ctx context.Context)
}

func attachProviders(ctx context.Context, providers []config.ProviderConfig, k *kernel.Kernel, super *supervisor.Supervisor, log zerolog.Logger) []attachedProvider {
	attached := make([]attachedProvider, 0, len(providers))
	for _, pc := range providers {
		plog := log.With().Str("provider_id", pc.ID).Str("kind", pc.Kind).Logger()

		var conn supervisor.Connector
		var disconnect func(ctx context.Context)

		switch pc.Kind {
		case "modbus":
			p := modbusprovider.New(pc.Endpoint, 1, 5*time.Second, nil, plog)
			if err := p.Connect(); err != nil {
				plog.Error().Err(err).Msg("initial modbus connect failed, provider stays unavailable")
			}
			conn = p
			disconnect = func(context.Context) { p.Disconnect() }
		case "opcua":
			p := opcuaprovider.New(pc.Endpoint, nil, plog)
			if err := p.Connect(ctx); err != nil {
				plog.Error().Err(err).Msg("initial opcua connect failed, provider stays unavailable")
			}
			conn = p
			disconnect = p.Disconnect
		default:
			plog.Error().Msg("unrecognized provider kind, skipping")
			continue
		}

		capability := super.Supervise(pc.ID, conn, defaultMaxRestartAttempts)
		if err := k.RegisterProvider(ctx, pc.ID, capability); err != nil {
			plog.Error().Err(err).Msg("provider discovery failed")
		}
		attached = append(attached, attachedProvider{id: pc.ID, disconnect: disconnect})
	}
	return attached
}

func startMetricsServer(port int, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Info().Int("port", port).Msg("starting metrics server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}
