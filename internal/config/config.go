// Package config loads the reference host's configuration, viper-backed the
// way the bridge and gateway teachers both load theirs.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
)

// ProviderConfig is one entry of the injected provider list (§6).
type ProviderConfig struct {
	ID       string `mapstructure:"id"`
	Kind     string `mapstructure:"kind"` // "modbus" | "opcua"
	Endpoint string `mapstructure:"endpoint"`
}

// ParameterConfig is one seed parameter definition from the config file.
type ParameterConfig struct {
	Name   string  `mapstructure:"name"`
	Type   string  `mapstructure:"type"`
	Value  float64 `mapstructure:"value"`
	ValueStr string `mapstructure:"value_str"`
	ValueBool bool  `mapstructure:"value_bool"`
	Min    *float64 `mapstructure:"min"`
	Max    *float64 `mapstructure:"max"`
}

// KernelConfig carries §6's injected configuration object fields plus the
// supervisor's health poll period.
type KernelConfig struct {
	Providers           []ProviderConfig  `mapstructure:"providers"`
	PollIntervalMs      int               `mapstructure:"poll_interval_ms"`
	AutomationEnabled   bool              `mapstructure:"automation_enabled"`
	BehaviorTreePath    string            `mapstructure:"behavior_tree_path"`
	TickRateHz          float64           `mapstructure:"tick_rate_hz"`
	ManualGatingPolicy  string            `mapstructure:"manual_gating_policy"`
	InitialMode         string            `mapstructure:"initial_mode"`
	Parameters          []ParameterConfig `mapstructure:"parameters"`
	EventQueueDefault   int               `mapstructure:"event_queue_default"`
	MaxSubscribers      int               `mapstructure:"max_subscribers"`
	SupervisorPollMs    int               `mapstructure:"supervisor_poll_ms"`
}

// HTTPConfig is the ambient REST/WebSocket adapter's listen configuration.
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MQTTConfig is the ambient telemetry sink's broker configuration.
type MQTTConfig struct {
	BrokerURL string `mapstructure:"broker_url"`
	ClientID  string `mapstructure:"client_id"`
	Topic     string `mapstructure:"topic"`
	QoS       byte   `mapstructure:"qos"`
}

// LoggingConfig is the ambient logger's level/format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig is the ambient Prometheus registry's listen configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Config is the reference host's complete, structured configuration.
type Config struct {
	Kernel  KernelConfig  `mapstructure:"kernel"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load reads the YAML file at path, overlaid with ANOLIS_-prefixed
// environment variables, the way the bridge teacher's
// internal/config/config.go layers viper. An empty path searches for a
// "config" file in . and ./config and falls back to defaults when none is
// found; a non-empty path that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ANOLIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kernel.poll_interval_ms", 500)
	v.SetDefault("kernel.automation_enabled", false)
	v.SetDefault("kernel.tick_rate_hz", 10.0)
	v.SetDefault("kernel.manual_gating_policy", "BLOCK")
	v.SetDefault("kernel.initial_mode", "MANUAL")
	v.SetDefault("kernel.event_queue_default", 64)
	v.SetDefault("kernel.max_subscribers", 32)
	v.SetDefault("kernel.supervisor_poll_ms", 2000)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)

	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "anolisd")
	v.SetDefault("mqtt.topic", "anolis/events")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// PollInterval converts the millisecond config field to a time.Duration.
func (k KernelConfig) PollInterval() time.Duration {
	return time.Duration(k.PollIntervalMs) * time.Millisecond
}

// SupervisorPollInterval converts the millisecond config field to a time.Duration.
func (k KernelConfig) SupervisorPollInterval() time.Duration {
	return time.Duration(k.SupervisorPollMs) * time.Millisecond
}

// GatingPolicy parses the configured manual gating policy, defaulting to
// BLOCK on an unrecognized value (the safer default per §4.4).
func (k KernelConfig) GatingPolicy() domain.GatingPolicy {
	if domain.GatingPolicy(k.ManualGatingPolicy) == domain.GatingOverride {
		return domain.GatingOverride
	}
	return domain.GatingBlock
}

// Mode parses the configured initial mode, defaulting to MANUAL on an
// unrecognized value.
func (k KernelConfig) Mode() domain.RuntimeMode {
	m, ok := domain.ParseMode(k.InitialMode)
	if !ok {
		return domain.ModeManual
	}
	return m
}

// ParameterDefinitions converts the config's parameter entries into kernel
// domain objects, ready for parameter.New.
func (k KernelConfig) ParameterDefinitions() []domain.ParameterDefinition {
	defs := make([]domain.ParameterDefinition, 0, len(k.Parameters))
	for _, p := range k.Parameters {
		var def domain.ParameterDefinition
		def.Name = p.Name
		switch strings.ToUpper(p.Type) {
		case "INT64":
			def.Type = domain.ParamInt64
			def.Value = domain.Int64Value(int64(p.Value))
			if p.Min != nil {
				v := domain.Int64Value(int64(*p.Min))
				def.Min = &v
			}
			if p.Max != nil {
				v := domain.Int64Value(int64(*p.Max))
				def.Max = &v
			}
		case "BOOL":
			def.Type = domain.ParamBool
			def.Value = domain.Bool(p.ValueBool)
		case "STRING":
			def.Type = domain.ParamString
			def.Value = domain.String(p.ValueStr)
		default:
			def.Type = domain.ParamDouble
			def.Value = domain.Double(p.Value)
			if p.Min != nil {
				v := domain.Double(*p.Min)
				def.Min = &v
			}
			if p.Max != nil {
				v := domain.Double(*p.Max)
				def.Max = &v
			}
		}
		defs = append(defs, def)
	}
	return defs
}
