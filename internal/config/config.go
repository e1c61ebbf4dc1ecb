package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-listener/internal/domain/access"
)

// Config holds the broker connection, topics, tokens and actions of the listener.
type Config struct {
	// MQTTHost is the broker host name or address.
	MQTTHost string `yaml:"mqtt_host" validate:"required"`
	// MQTTPort is the broker TCP port.
	MQTTPort int `yaml:"mqtt_port" validate:"required,min=1,max=65535"`
	// MQTTSSL enables TLS towards the broker. It must be set explicitly.
	MQTTSSL *bool `yaml:"mqtt_ssl" validate:"required"`
	// MQTTCACerts is an optional CA bundle used to verify the broker.
	MQTTCACerts string `yaml:"mqtt_ca_certs,omitempty"`
	// MQTTUsername is the optional broker user.
	MQTTUsername string `yaml:"mqtt_username,omitempty"`
	// MQTTPassword is the optional broker password.
	MQTTPassword string `yaml:"mqtt_password,omitempty"`
	// MQTTClientID overrides the generated client identifier.
	MQTTClientID string `yaml:"mqtt_client_id,omitempty"`

	// StateTopic carries alarm state changes from the panel.
	StateTopic string `yaml:"state_topic" validate:"required"`
	// CommandTopic receives the payloads of granted actions.
	CommandTopic string `yaml:"command_topic" validate:"required"`
	// RFIDAuthTopic carries authorization requests from the readers.
	RFIDAuthTopic string `yaml:"rfid_auth_topic" validate:"required"`
	// DisplayTopic receives the retained alarm state; per-reader responses go to DisplayTopic/<hostname>.
	DisplayTopic string `yaml:"display_topic" validate:"required"`

	// Tokens lists the authorized credentials.
	Tokens []Token `yaml:"tokens" validate:"required,dive"`
	// Actions maps an action name to the command payload sent on success.
	Actions map[string]string `yaml:"actions" validate:"required"`

	// CommandDelay is the pause between a granted decision and its command.
	CommandDelay time.Duration `yaml:"command_delay,omitempty" validate:"gte=0"`
	// StatusAddress is an optional listen address for the gRPC health endpoint.
	StatusAddress string `yaml:"status_addr,omitempty" validate:"omitempty,hostname_port"`
	// MetricsAddress is an optional listen address for the Prometheus endpoint.
	MetricsAddress string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
	// AuditDatabase is an optional SQLite file recording every access decision.
	AuditDatabase string `yaml:"audit_db,omitempty"`
}

// Token is the YAML record of one credential.
type Token struct {
	// Name is the display name of the holder.
	Name string `yaml:"name" validate:"required"`
	// UID is the hardware identifier of the RFID tag.
	UID string `yaml:"token_uid" validate:"required"`
	// AlarmCode is the PIN entered together with the tag.
	AlarmCode string `yaml:"alarmcode" validate:"required"`
	// TimeSlot is an optional HH:MM|HH:MM daily window.
	TimeSlot string `yaml:"timeslot,omitempty"`
	// DateSlot is an optional DD-MM-YYYY|DD-MM-YYYY date range.
	DateSlot string `yaml:"dateslot,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for listener settings.
	DefaultConfigFilename = "alarm-listener.yaml"

	// DefaultCommandDelay is the pause before a granted action's command is published.
	DefaultCommandDelay = 5 * time.Second

	// KeepAlive is the MQTT keepalive interval.
	KeepAlive = 60 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// errConfigIsNotSet is returned when a nil configuration is provided.
var errConfigIsNotSet = errors.New("configuration is not set")

// Load reads configuration from the provided path, resolves {key} references and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	return Parse(contents)
}

// Parse decodes YAML settings, resolves {key} references and validates the result.
func Parse(contents []byte) (*Config, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := resolveTemplates(&document); err != nil {
		return nil, fmt.Errorf("resolve settings: %w", err)
	}

	var cfg Config
	if err := document.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file holds alarm codes.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if err := validator.New().Struct(settings); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}

	if settings.CommandDelay == 0 {
		settings.CommandDelay = DefaultCommandDelay
	}

	return nil
}

// TLSEnabled reports whether the broker connection uses TLS.
func (c *Config) TLSEnabled() bool {
	return c.MQTTSSL != nil && *c.MQTTSSL
}

// AccessTokens converts the configured records into domain tokens.
func (c *Config) AccessTokens() ([]access.Token, error) {
	tokens := make([]access.Token, 0, len(c.Tokens))

	for i, record := range c.Tokens {
		token, err := access.NewToken(
			record.Name,
			record.UID,
			record.AlarmCode,
			access.WithTimeSlot(record.TimeSlot),
			access.WithDateSlot(record.DateSlot),
		)
		if err != nil {
			return nil, fmt.Errorf("token #%d: %w", i, err)
		}

		tokens = append(tokens, token)
	}

	return tokens, nil
}

// Registry builds a token registry from the configured records.
func (c *Config) Registry() (*access.Registry, error) {
	tokens, err := c.AccessTokens()
	if err != nil {
		return nil, err
	}

	return access.NewRegistry(tokens...), nil
}
