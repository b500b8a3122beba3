package nats

import (
	"crypto/tls"
	"net/url"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type Config struct {
	Name               string        `mapstructure:"name" json:"name"`
	Url                string        `mapstructure:"url" json:"url"`
	Timeout            time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxReconnects      int           `mapstructure:"max_reconnects" json:"max_reconnects"`
	ReconnectWait      time.Duration `mapstructure:"reconnect_wait" json:"reconnect_wait"`
	ReconnectJitter    time.Duration `mapstructure:"reconnect_jitter" json:"reconnect_jitter"`
	ReconnectJitterTls time.Duration `mapstructure:"reconnect_jitter_tls" json:"reconnect_jitter_tls"`
	DontRandomize      bool          `mapstructure:"dont_randomize" json:"dont_randomize"`
	Username           string        `mapstructure:"username" json:"username"`
	Password           string        `mapstructure:"password" json:"password"`
	Token              string        `mapstructure:"token" json:"token"`
	Secure             bool          `mapstructure:"secure" json:"secure"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Errorf("nil.Validate()")
	}
	if len(c.Name) <= 0 {
		return errors.Errorf("missing name")
	}
	if len(c.Url) <= 0 {
		c.Url = nats.DefaultURL
	}
	if pu, err := url.ParseRequestURI(c.Url); err != nil {
		return errors.Wrapf(err, "invalid url:\"%s\"", c.Url)
	} else {
		if pu.Scheme != "nats" && pu.Scheme != "tls" {
			return errors.Errorf("url:\"%s\" must have scheme \"nats://...\", not \"%s://...\"", c.Url, pu.Scheme)
		}
	}
	if c.Timeout == 0 {
		c.Timeout = nats.DefaultTimeout
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = nats.DefaultMaxReconnect
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = nats.DefaultReconnectWait
	}
	if c.Timeout < 0 || c.ReconnectWait < 0 || c.ReconnectJitter < 0 || c.ReconnectJitterTls < 0 {
		return errors.Errorf("negative timeout or reconnect durations")
	}
	return nil
} //Config.Validate()

func (c Config) options() []nats.Option {
	var options []nats.Option
	options = append(options, nats.Name(c.Name))
	options = append(options, nats.Timeout(c.Timeout))
	options = append(options, nats.MaxReconnects(c.MaxReconnects))
	options = append(options, nats.ReconnectWait(c.ReconnectWait))
	options = append(options, nats.ReconnectJitter(c.ReconnectJitter, c.ReconnectJitterTls))
	options = append(options, nats.ReconnectHandler(func(conn *nats.Conn) {
		log.Errorf("Reconnected to %s", conn.ConnectedUrl())
	}))
	options = append(options, nats.DisconnectErrHandler(func(conn *nats.Conn, err error) {
		if err != nil {
			log.Errorf("Disconnected: %+v", err)
		}
	}))
	if c.DontRandomize {
		options = append(options, nats.DontRandomize())
	}
	if c.Username != "" {
		options = append(options, nats.UserInfo(c.Username, c.Password))
	}
	if c.Token != "" {
		options = append(options, nats.Token(c.Token))
	}
	if c.Secure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: c.InsecureSkipVerify}))
	}
	return options
} //Config.options()

func (c *Config) New() (comms.Handler, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid nats config")
	}
	conn, err := nats.Connect(c.Url, c.options()...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}
	h, err := newHandler(*c, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return h, nil
} //Config.New()
