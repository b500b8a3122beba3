//Package sim is an in-process modem with scripted carrier replies,
//used for development and in tests in place of a real handset.
package sim

import (
	"sort"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/ussd"
	"github.com/pkg/errors"
)

var log = logger.NewLogger()

type Config struct {
	Subscriptions []int             `mapstructure:"subscriptions" json:"subscriptions" doc:"Subscription ids with a SIM (default [0])"`
	Responses     map[string]string `mapstructure:"responses" json:"responses" doc:"Carrier response text per code"`
	Failures      map[string]int    `mapstructure:"failures" json:"failures" doc:"Failure code per code"`
	Delay         time.Duration     `mapstructure:"delay" json:"delay" doc:"Carrier delay before the callback (default 0)"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Errorf("nil.Validate()")
	}
	if len(c.Subscriptions) == 0 {
		c.Subscriptions = []int{0}
	}
	if c.Delay < 0 {
		return errors.Errorf("negative delay:%v", c.Delay)
	}
	for code := range c.Failures {
		if _, ok := c.Responses[code]; ok {
			return errors.Errorf("code(%s) has both a response and a failure", code)
		}
	}
	return nil
}

//New() creates the modem
func (c Config) New() (*Modem, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid sim config")
	}
	m := &Modem{
		config:        c,
		subscriptions: map[int]bool{},
	}
	for _, id := range c.Subscriptions {
		m.subscriptions[id] = true
	}
	return m, nil
}

type Modem struct {
	config        Config
	subscriptions map[int]bool
}

//ForSubscription never fails: sending on a subscription without SIM
//fails later with service unavailable, like a handset does
func (m *Modem) ForSubscription(subscriptionID int) (ussd.Sender, error) {
	return sender{modem: m, subscriptionID: subscriptionID}, nil
}

func (m *Modem) Subscriptions() []int {
	ids := make([]int, 0, len(m.subscriptions))
	for id := range m.subscriptions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

//Reply determines what the carrier answers for code on a subscription:
//the response text, or a failure code when ok is false
func (m *Modem) Reply(subscriptionID int, code string) (response string, failureCode int, ok bool) {
	if !m.subscriptions[subscriptionID] {
		return "", ussd.FailureServiceUnavailable, false
	}
	if failureCode, isFailure := m.config.Failures[code]; isFailure {
		return "", failureCode, false
	}
	if response, isResponse := m.config.Responses[code]; isResponse {
		return response, 0, true
	}
	return "", ussd.FailureReturnFailure, false
} //Modem.Reply()

type sender struct {
	modem          *Modem
	subscriptionID int
}

func (s sender) SendUssdRequest(code string, cb ussd.ResponseCallback, ex ussd.Executor) error {
	if cb == nil || ex == nil {
		return errors.Errorf("cannot send without callback and executor")
	}
	response, failureCode, ok := s.modem.Reply(s.subscriptionID, code)
	deliver := func() bool {
		return ex.Post(func() {
			if ok {
				cb.OnReceiveUssdResponse(code, response)
			} else {
				cb.OnReceiveUssdResponseFailed(code, failureCode)
			}
		})
	}
	log.Debugf("sim(%d) <- %s", s.subscriptionID, code)
	if s.modem.config.Delay > 0 {
		time.AfterFunc(s.modem.config.Delay, func() {
			if !deliver() {
				log.Errorf("executor stopped, dropped reply to %s on subscription %d", code, s.subscriptionID)
			}
		})
		return nil
	}
	if !deliver() {
		return errors.Errorf("executor stopped, cannot deliver reply to %s", code)
	}
	return nil
} //sender.SendUssdRequest()
