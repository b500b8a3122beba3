//Package config loads the service configuration from file and environment.
//
//Environment variables use prefix USSD_ and "_" for nesting, e.g.
//USSD_TELEPHONY_DRIVER=gateway or USSD_REST_ADDRESS=:9090.
package config

import (
	"strings"

	commsnats "bitbucket.org/vservices/ms-vservices-ussd/comms/nats"
	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	msnats "bitbucket.org/vservices/ms-vservices-ussd/ms/nats"
	"bitbucket.org/vservices/ms-vservices-ussd/ms/rest"
	"bitbucket.org/vservices/ms-vservices-ussd/telephony/gateway"
	"bitbucket.org/vservices/ms-vservices-ussd/telephony/sim"
	"bitbucket.org/vservices/ms-vservices-ussd/ussd"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DriverSim     = "sim"
	DriverGateway = "gateway"
)

type Config struct {
	Domain      string            `mapstructure:"domain" json:"domain" doc:"Service domain, NATS requests arrive on <domain>.* (default 'ussd')"`
	Log         logger.Config     `mapstructure:"log" json:"log"`
	Permissions PermissionsConfig `mapstructure:"permissions" json:"permissions"`
	Telephony   TelephonyConfig   `mapstructure:"telephony" json:"telephony"`
	Nats        NatsConfig        `mapstructure:"nats" json:"nats"`
	Rest        RestConfig        `mapstructure:"rest" json:"rest"`
}

type PermissionsConfig struct {
	Granted  []string `mapstructure:"granted" json:"granted" doc:"Privileges held by this service (default [CALL_PHONE])"`
	Required string   `mapstructure:"required" json:"required" doc:"Privilege checked before each request (default CALL_PHONE)"`
}

type TelephonyConfig struct {
	Driver  string         `mapstructure:"driver" json:"driver" doc:"sim|gateway (default sim)"`
	Sim     sim.Config     `mapstructure:"sim" json:"sim"`
	Gateway gateway.Config `mapstructure:"gateway" json:"gateway"`
}

type NatsConfig struct {
	Enabled          bool `mapstructure:"enabled" json:"enabled"`
	commsnats.Config `mapstructure:",squash"`
}

type RestConfig struct {
	Enabled     bool `mapstructure:"enabled" json:"enabled"`
	rest.Config `mapstructure:",squash"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Errorf("nil.Validate()")
	}
	if c.Domain == "" {
		c.Domain = "ussd"
	}
	if err := c.Log.Validate(); err != nil {
		return errors.Wrapf(err, "invalid log config")
	}
	if len(c.Permissions.Granted) == 0 {
		c.Permissions.Granted = []string{ussd.PermissionCallPhone}
	}
	if c.Permissions.Required == "" {
		c.Permissions.Required = ussd.PermissionCallPhone
	}
	switch c.Telephony.Driver {
	case "":
		c.Telephony.Driver = DriverSim
		fallthrough
	case DriverSim:
		if err := c.Telephony.Sim.Validate(); err != nil {
			return errors.Wrapf(err, "invalid telephony.sim config")
		}
	case DriverGateway:
		if !c.Nats.Enabled {
			return errors.Errorf("telephony.driver=gateway requires nats.enabled")
		}
	default:
		return errors.Errorf("invalid telephony.driver:\"%s\" (expecting sim|gateway)", c.Telephony.Driver)
	}
	if err := c.Telephony.Gateway.Validate(); err != nil {
		return errors.Wrapf(err, "invalid telephony.gateway config")
	}
	if c.Nats.Enabled {
		if inDomain(c.Domain, c.Telephony.Gateway.Subject) {
			return errors.Errorf("telephony.gateway.subject:\"%s\" would be received by the %s.* service subscription", c.Telephony.Gateway.Subject, c.Domain)
		}
		if c.Nats.Name == "" {
			c.Nats.Name = c.Domain
		}
		if err := c.Nats.Config.Validate(); err != nil {
			return errors.Wrapf(err, "invalid nats config")
		}
	}
	if c.Rest.Enabled {
		if err := c.Rest.Config.Validate(); err != nil {
			return errors.Wrapf(err, "invalid rest config")
		}
	}
	return nil
} //Config.Validate()

//inDomain is true when subject matches "<domain>.*"
func inDomain(domain, subject string) bool {
	method := strings.TrimPrefix(subject, domain+".")
	return method != subject && method != "" && !strings.Contains(method, ".")
}

//NatsService is the NATS transport config for the service domain
func (c Config) NatsService() msnats.Config {
	return msnats.Config{Domain: c.Domain}
}

//Load reads the optional file and applies environment overrides,
//then validates the result
func Load(file string) (Config, error) {
	v := viper.New()
	v.SetDefault("domain", "ussd")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("permissions.granted", []string{ussd.PermissionCallPhone})
	v.SetDefault("permissions.required", ussd.PermissionCallPhone)
	v.SetDefault("telephony.driver", DriverSim)
	v.SetDefault("telephony.gateway.subject", gateway.DefaultSubject)
	v.SetDefault("telephony.gateway.timeout", "30s")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("rest.enabled", true)
	v.SetDefault("rest.address", ":8080")
	v.SetDefault("rest.metrics", true)

	v.SetEnvPrefix("USSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrapf(err, "failed to decode config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config")
	}
	return c, nil
} //Load()
