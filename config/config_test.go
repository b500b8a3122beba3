package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ussd", c.Domain)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, []string{"CALL_PHONE"}, c.Permissions.Granted)
	assert.Equal(t, "CALL_PHONE", c.Permissions.Required)
	assert.Equal(t, DriverSim, c.Telephony.Driver)
	assert.Equal(t, []int{0}, c.Telephony.Sim.Subscriptions)
	assert.Equal(t, 30*time.Second, c.Telephony.Gateway.Timeout)
	assert.Equal(t, "ussd-gateway.request", c.Telephony.Gateway.Subject)
	assert.False(t, c.Nats.Enabled)
	assert.True(t, c.Rest.Enabled)
	assert.Equal(t, ":8080", c.Rest.Address)
	assert.Equal(t, "ussd", c.NatsService().Domain)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "ussd.yaml", `
domain: mobile
log:
  level: debug
telephony:
  driver: gateway
  gateway:
    subject: modem.one
    timeout: 5s
  sim:
    responses:
      "*100#": "BAL: 10.00"
    failures:
      "*999#": -2
    delay: 250ms
nats:
  enabled: true
  url: nats://nats:4222
rest:
  address: ":9090"
`)
	t.Setenv("USSD_REST_ENABLED", "false")
	t.Setenv("USSD_PERMISSIONS_GRANTED", "CALL_PHONE,READ_PHONE_STATE")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mobile", c.Domain)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, DriverGateway, c.Telephony.Driver)
	assert.Equal(t, "modem.one", c.Telephony.Gateway.Subject)
	assert.Equal(t, 5*time.Second, c.Telephony.Gateway.Timeout)
	assert.Equal(t, "BAL: 10.00", c.Telephony.Sim.Responses["*100#"])
	assert.Equal(t, -2, c.Telephony.Sim.Failures["*999#"])
	assert.Equal(t, 250*time.Millisecond, c.Telephony.Sim.Delay)
	assert.True(t, c.Nats.Enabled)
	assert.Equal(t, "nats://nats:4222", c.Nats.Url)
	assert.Equal(t, "mobile", c.Nats.Name)
	assert.False(t, c.Rest.Enabled)
	assert.Equal(t, ":9090", c.Rest.Address)
	assert.Equal(t, []string{"CALL_PHONE", "READ_PHONE_STATE"}, c.Permissions.Granted)
}

func TestValidate(t *testing.T) {
	c := Config{Telephony: TelephonyConfig{Driver: "modem"}}
	assert.Error(t, c.Validate())

	c = Config{Telephony: TelephonyConfig{Driver: DriverGateway}}
	assert.Error(t, c.Validate(), "gateway without nats")

	c = Config{}
	c.Log.Level = "loud"
	assert.Error(t, c.Validate())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateGatewaySubjectOutsideDomain(t *testing.T) {
	t.Setenv("USSD_TELEPHONY_DRIVER", "gateway")
	t.Setenv("USSD_NATS_ENABLED", "true")
	c, err := Load("")
	require.NoError(t, err)
	assert.False(t, inDomain(c.Domain, c.Telephony.Gateway.Subject))

	t.Setenv("USSD_TELEPHONY_GATEWAY_SUBJECT", "ussd.gateway")
	_, err = Load("")
	assert.Error(t, err)

	assert.True(t, inDomain("ussd", "ussd.gateway"))
	assert.False(t, inDomain("ussd", "ussd.gateway.request"))
	assert.False(t, inDomain("ussd", "ussd-gateway.request"))
	assert.False(t, inDomain("ussd", "ussd."))
	assert.False(t, inDomain("ussd", "gateway.ussd"))
}
