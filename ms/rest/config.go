package rest

import (
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	Address string        `mapstructure:"address" json:"address" doc:"HTTP server address (default ':8080')"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" doc:"Max time to wait for a reply, 504 after that (default 0: wait for the reply)"`
	Metrics bool          `mapstructure:"metrics" json:"metrics" doc:"Serve prometheus metrics on /metrics"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Errorf("nil.Validate()")
	}
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.Timeout < 0 {
		return errors.Errorf("negative timeout:%v", c.Timeout)
	}
	return nil
}

//New() creates the HTTP transport, gatherer is only used when metrics are enabled
func (c Config) New(gatherer prometheus.Gatherer) (ms.Handler, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid rest config")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &handler{config: c, gatherer: gatherer}, nil
}
