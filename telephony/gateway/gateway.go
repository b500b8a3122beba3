//Package gateway reaches a modem in another process over NATS request/reply.
//
//Request:  {"subscription_id":0,"code":"*100#"}
//Reply:    {"response":"..."} or {"failure_code":-1}
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/ussd"
	"github.com/pkg/errors"
)

var log = logger.NewLogger()

type Request struct {
	SubscriptionID int    `json:"subscription_id"`
	Code           string `json:"code"`
}

type Reply struct {
	Response    *string `json:"response,omitempty"`
	FailureCode *int    `json:"failure_code,omitempty"`
}

//DefaultSubject is outside every "<domain>.*" pattern of a service front door
const DefaultSubject = "ussd-gateway.request"

type Config struct {
	Subject string        `mapstructure:"subject" json:"subject" doc:"NATS subject of the gateway (default 'ussd-gateway.request')"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" doc:"Max time to wait for the carrier (default 30s)"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Errorf("nil.Validate()")
	}
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Timeout < 0 {
		return errors.Errorf("negative timeout:%v", c.Timeout)
	}
	return nil
}

//New() creates a client that sends requests to the gateway
func (c Config) New(conn comms.Handler) (*Client, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid gateway config")
	}
	if conn == nil {
		return nil, errors.Errorf("cannot create gateway client with conn==nil")
	}
	return &Client{config: c, conn: conn}, nil
}

type Client struct {
	config Config
	conn   comms.Handler
}

func (c *Client) ForSubscription(subscriptionID int) (ussd.Sender, error) {
	return sender{client: c, subscriptionID: subscriptionID}, nil
}

type sender struct {
	client         *Client
	subscriptionID int
}

//SendUssdRequest returns once the request is encoded, the gateway
//is called in the background and the reply posted on ex
func (s sender) SendUssdRequest(code string, cb ussd.ResponseCallback, ex ussd.Executor) error {
	if cb == nil || ex == nil {
		return errors.Errorf("cannot send without callback and executor")
	}
	data, err := json.Marshal(Request{SubscriptionID: s.subscriptionID, Code: code})
	if err != nil {
		return errors.Wrapf(err, "failed to encode request")
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.client.config.Timeout)
		defer cancel()
		replyData, err := s.client.conn.Request(ctx, s.client.config.Subject, data)
		var fn func()
		if err != nil {
			log.Errorf("gateway(%s) request failed: %+v", s.client.config.Subject, err)
			fn = func() { cb.OnReceiveUssdResponseFailed(code, ussd.FailureServiceUnavailable) }
		} else {
			fn = replyFunc(code, replyData, cb)
		}
		if !ex.Post(fn) {
			log.Errorf("executor stopped, dropped gateway reply to %s", code)
		}
	}()
	return nil
} //sender.SendUssdRequest()

//replyFunc decodes a gateway reply into the callback branch to invoke
func replyFunc(code string, data []byte, cb ussd.ResponseCallback) func() {
	var reply Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		log.Errorf("cannot decode gateway reply \"%s\": %+v", data, err)
		return func() { cb.OnReceiveUssdResponseFailed(code, ussd.FailureReturnFailure) }
	}
	switch {
	case reply.FailureCode != nil:
		failureCode := *reply.FailureCode
		return func() { cb.OnReceiveUssdResponseFailed(code, failureCode) }
	case reply.Response != nil:
		response := *reply.Response
		return func() { cb.OnReceiveUssdResponse(code, response) }
	default:
		log.Errorf("gateway reply \"%s\" has neither response nor failure_code", data)
		return func() { cb.OnReceiveUssdResponseFailed(code, ussd.FailureReturnFailure) }
	}
} //replyFunc()
