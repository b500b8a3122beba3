//Package service wires the bridge from configuration.
package service

import (
	"bitbucket.org/vservices/ms-vservices-ussd/channel"
	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/config"
	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/looper"
	"bitbucket.org/vservices/ms-vservices-ussd/metrics"
	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"bitbucket.org/vservices/ms-vservices-ussd/telephony"
	"bitbucket.org/vservices/ms-vservices-ussd/ussd"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var log = logger.NewLogger()

type Service struct {
	ms.Service
	Bridge *ussd.Bridge
	main   *looper.Looper
}

//New() creates the bridge with the configured telephony driver and registers
//makeRequest. conn is only needed for the gateway driver and reg may be nil
//to skip metrics.
func New(c config.Config, conn comms.Handler, reg prometheus.Registerer) (*Service, error) {
	tel, err := newTelephony(c.Telephony, conn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create telephony")
	}
	opts := []ussd.Option{ussd.WithPermission(c.Permissions.Required)}
	if reg != nil {
		collector, err := metrics.New(reg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create metrics")
		}
		opts = append(opts, ussd.WithObserver(collector))
	}
	mainLooper := looper.New("main")
	bridge, err := ussd.NewBridge(telephony.StaticPermissions(c.Permissions.Granted...), tel, mainLooper, opts...)
	if err != nil {
		mainLooper.Quit()
		return nil, errors.Wrapf(err, "failed to create bridge")
	}
	log.Infof("bridge using telephony.driver=%s", c.Telephony.Driver)
	return &Service{
		Service: channel.Register(ms.NewService(), bridge),
		Bridge:  bridge,
		main:    mainLooper,
	}, nil
} //New()

func newTelephony(c config.TelephonyConfig, conn comms.Handler) (ussd.Telephony, error) {
	switch c.Driver {
	case config.DriverSim:
		return c.Sim.New()
	case config.DriverGateway:
		return c.Gateway.New(conn)
	default:
		return nil, errors.Errorf("unknown telephony.driver:\"%s\"", c.Driver)
	}
}

//Close stops delivering callbacks after the queued ones ran
func (s *Service) Close() {
	s.main.Quit()
	s.main.Wait()
}
