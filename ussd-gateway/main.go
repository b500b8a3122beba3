package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/vservices/ms-vservices-ussd/config"
	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/looper"
	"bitbucket.org/vservices/ms-vservices-ussd/telephony/gateway"
)

var log = logger.NewLogger()

//serves the gateway protocol with the simulated modem from telephony.sim
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

	modem, err := c.Telephony.Sim.New()
	if err != nil {
		panic(fmt.Sprintf("cannot create modem: %+v", err))
	}

	nc := c.Nats.Config
	if nc.Name == "" {
		nc.Name = "ussd-gateway"
	}
	commsHandler, err := nc.New()
	if err != nil {
		panic(fmt.Sprintf("cannot create comms handler: %+v", err))
	}
	defer commsHandler.Close()

	modemLooper := looper.New("modem")
	defer func() {
		modemLooper.Quit()
		modemLooper.Wait()
	}()

	server, err := gateway.NewServer(c.Telephony.Gateway, commsHandler, modem, modemLooper)
	if err != nil {
		panic(fmt.Sprintf("cannot create gateway: %+v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	log.Infof("modem subscriptions %v", modem.Subscriptions())
	if err := server.Run(ctx); err != nil {
		log.Errorf("gateway failed: %+v", err)
	}
}
