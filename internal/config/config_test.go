package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-listener/internal/domain/access"
)

const validSettings = `
base_topic: home/alarm
mqtt_host: broker.local
mqtt_port: 8883
mqtt_ssl: true
mqtt_username: listener
mqtt_password: secret
state_topic: "{base_topic}/state"
command_topic: "{base_topic}/set"
rfid_auth_topic: "{base_topic}/rfid"
display_topic: "{base_topic}/display"
tokens:
  - name: Alice
    token_uid: U1
    alarmcode: "1234"
  - name: Bob
    token_uid: U2
    alarmcode: "5678"
    timeslot: "08:00|18:00"
    dateslot: "01-01-2026|31-12-2026"
actions:
  open: DISARM
  close: ARM_AWAY
`

// TestParse_ValidSettings checks decoding, template resolution and defaults.
func TestParse_ValidSettings(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(validSettings))
	require.NoError(t, err)

	require.Equal(t, "broker.local", cfg.MQTTHost)
	require.Equal(t, 8883, cfg.MQTTPort)
	require.True(t, cfg.TLSEnabled())
	require.Equal(t, "home/alarm/state", cfg.StateTopic)
	require.Equal(t, "home/alarm/set", cfg.CommandTopic)
	require.Equal(t, "home/alarm/rfid", cfg.RFIDAuthTopic)
	require.Equal(t, "home/alarm/display", cfg.DisplayTopic)
	require.Len(t, cfg.Tokens, 2)
	require.Equal(t, "08:00|18:00", cfg.Tokens[1].TimeSlot)
	require.Equal(t, map[string]string{"open": "DISARM", "close": "ARM_AWAY"}, cfg.Actions)
	require.Equal(t, DefaultCommandDelay, cfg.CommandDelay)

	registry, err := cfg.Registry()
	require.NoError(t, err)
	require.Equal(t, 2, registry.Len())

	token, found := registry.FindByUID("U2")
	require.True(t, found)
	require.Equal(t, "Bob", token.Name())
}

// TestParse_MissingRequired verifies that every required key is enforced.
func TestParse_MissingRequired(t *testing.T) {
	t.Parallel()

	base := map[string]string{
		"mqtt_host":       "mqtt_host: broker.local\n",
		"mqtt_port":       "mqtt_port: 1883\n",
		"mqtt_ssl":        "mqtt_ssl: false\n",
		"state_topic":     "state_topic: s\n",
		"command_topic":   "command_topic: c\n",
		"rfid_auth_topic": "rfid_auth_topic: r\n",
		"display_topic":   "display_topic: d\n",
		"tokens":          "tokens:\n  - {name: A, token_uid: U1, alarmcode: \"1\"}\n",
		"actions":         "actions:\n  open: DISARM\n",
	}

	for missing := range base {
		var document string

		for key, line := range base {
			if key != missing {
				document += line
			}
		}

		_, err := Parse([]byte(document))
		require.Error(t, err, missing)
	}
}

// TestParse_InvalidToken verifies that a token without a required field fails at load time.
func TestParse_InvalidToken(t *testing.T) {
	t.Parallel()

	document := `
mqtt_host: broker.local
mqtt_port: 1883
mqtt_ssl: false
state_topic: s
command_topic: c
rfid_auth_topic: r
display_topic: d
tokens:
  - name: Alice
    token_uid: U1
    timeslot: always
actions: {}
`

	_, err := Parse([]byte(document))
	require.ErrorContains(t, err, "AlarmCode")
}

// TestParse_Templates covers typed results, escapes and unresolved references.
func TestParse_Templates(t *testing.T) {
	t.Parallel()

	document := `
port: 1884
mqtt_host: broker.local
mqtt_port: "{port}"
mqtt_ssl: false
state_topic: "literal/{{braces}}"
command_topic: c
rfid_auth_topic: r
display_topic: d
command_delay: 2s
tokens:
  - {name: A, token_uid: U1, alarmcode: "{port}"}
actions:
  open: "{port}"
`

	cfg, err := Parse([]byte(document))
	require.NoError(t, err)
	require.Equal(t, 1884, cfg.MQTTPort)
	require.Equal(t, "literal/{braces}", cfg.StateTopic)
	require.Equal(t, 2*time.Second, cfg.CommandDelay)
	// Only top-level values are resolved.
	require.Equal(t, "{port}", cfg.Tokens[0].AlarmCode)
	require.Equal(t, "{port}", cfg.Actions["open"])

	_, err = Parse([]byte("mqtt_host: \"{missing}.local\"\n"))
	require.ErrorIs(t, err, ErrUnresolvedReference)

	_, err = Parse([]byte("nested:\n  a: b\nmqtt_host: \"{nested}\"\n"))
	require.ErrorIs(t, err, ErrUnresolvedReference)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	tlsEnabled := false

	settings := &Config{
		MQTTHost:      "127.0.0.1",
		MQTTPort:      1883,
		MQTTSSL:       &tlsEnabled,
		StateTopic:    "alarm/state",
		CommandTopic:  "alarm/set",
		RFIDAuthTopic: "alarm/rfid",
		DisplayTopic:  "alarm/display",
		Tokens: []Token{
			{Name: "Alice", UID: "U1", AlarmCode: "1234", TimeSlot: access.Always},
		},
		Actions:        map[string]string{"open": "DISARM"},
		CommandDelay:   time.Second,
		MetricsAddress: "127.0.0.1:9100",
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	require.Error(t, Save(path, nil))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

// TestAccessTokens_RejectsEmptyFields checks conversion errors for records that bypassed validation.
func TestAccessTokens_RejectsEmptyFields(t *testing.T) {
	t.Parallel()

	cfg := &Config{Tokens: []Token{{Name: "Alice", UID: "U1"}}}

	_, err := cfg.AccessTokens()
	require.ErrorIs(t, err, access.ErrMissingField)
}
