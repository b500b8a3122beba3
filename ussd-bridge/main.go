package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/config"
	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"bitbucket.org/vservices/ms-vservices-ussd/service"
	"github.com/prometheus/client_golang/prometheus"
)

var log = logger.NewLogger()

func main() {
	configFile := flag.String("config", "", "Config file (yaml|json|toml), env USSD_* overrides it")
	flag.Parse()

	c, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("cannot load config: %+v", err))
	}
	if err := logger.Configure(c.Log); err != nil {
		panic(fmt.Sprintf("cannot configure logger: %+v", err))
	}
	defer log.Sync()

	var commsHandler comms.Handler
	if c.Nats.Enabled {
		commsHandler, err = c.Nats.Config.New()
		if err != nil {
			panic(fmt.Sprintf("cannot create comms handler: %+v", err))
		}
		defer commsHandler.Close()
	}

	s, err := service.New(c, commsHandler, prometheus.DefaultRegisterer)
	if err != nil {
		panic(fmt.Sprintf("cannot create service: %+v", err))
	}
	defer s.Close()

	handlers := []ms.Handler{}
	if c.Nats.Enabled {
		h, err := c.NatsService().New(commsHandler)
		if err != nil {
			panic(fmt.Sprintf("cannot create nats transport: %+v", err))
		}
		handlers = append(handlers, h)
	}
	if c.Rest.Enabled {
		h, err := c.Rest.Config.New(prometheus.DefaultGatherer)
		if err != nil {
			panic(fmt.Sprintf("cannot create rest transport: %+v", err))
		}
		handlers = append(handlers, h)
	}
	if len(handlers) == 0 {
		panic("neither nats nor rest is enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	//any transport failing stops all of them
	wg := sync.WaitGroup{}
	for _, h := range handlers {
		wg.Add(1)
		go func(h ms.Handler) {
			defer wg.Done()
			if err := h.Run(ctx, s.Service); err != nil {
				log.Errorf("transport failed: %+v", err)
				cancel()
			}
		}(h)
	}
	wg.Wait()
	log.Infof("terminated")
}
