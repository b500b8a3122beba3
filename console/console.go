package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/channel"
	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/config"
	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"bitbucket.org/vservices/ms-vservices-ussd/service"
	"github.com/pkg/errors"
)

var log = logger.NewLogger()

//dials codes through the makeRequest method, like a caller of the service would
func main() {
	configFile := flag.String("config", "", "Config file (yaml|json|toml), env USSD_* overrides it")
	subscriptionPtr := flag.Int("subscription", 0, "Subscription id of the SIM to use")
	timeoutPtr := flag.Duration("timeout", time.Minute, "Max time to wait for each response")
	flag.Parse()

	if *subscriptionPtr < 0 {
		panic(fmt.Sprintf("--subscription=%d must be >= 0", *subscriptionPtr))
	}
	c, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("cannot load config: %+v", err))
	}
	if err := logger.Configure(c.Log); err != nil {
		panic(fmt.Sprintf("cannot configure logger: %+v", err))
	}

	var commsHandler comms.Handler
	if c.Nats.Enabled {
		if commsHandler, err = c.Nats.Config.New(); err != nil {
			panic(fmt.Sprintf("cannot create comms handler: %+v", err))
		}
		defer commsHandler.Close()
	}
	s, err := service.New(c, commsHandler, nil)
	if err != nil {
		panic(fmt.Sprintf("cannot create service: %+v", err))
	}
	defer s.Close()

	//create a user input channel used for all console input
	//so we can constantly read the terminal
	userInputChan := make(chan string)
	go func(userInputChan chan string) {
		reader := bufio.NewReader(os.Stdin)
		for {
			input, err := reader.ReadString('\n')
			if err != nil {
				fmt.Fprintf(os.Stderr, "%+v\n", errors.Wrapf(err,
					"Error reading from stdin"))
				userInputChan <- "exit"
				return
			} // if err
			userInputChan <- strings.TrimSpace(input)
		}
	}(userInputChan)

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT) //<ctrl><C>
	go func() {
		<-signalChannel
		userInputChan <- "exit"
	}()

	requestNr := int64(0)
	for {
		requestNr++
		fmt.Fprintf(os.Stdout, "\n")
		fmt.Fprintf(os.Stdout, "===== U S S D - C O N S O L E =====\n")
		fmt.Fprintf(os.Stdout, "  ( subscription: %d, request: %d )\n", *subscriptionPtr, requestNr)
		fmt.Fprintf(os.Stdout, "-----------------------------------\n")

		code := ""
		for len(code) == 0 {
			fmt.Fprintf(os.Stdout, "USSD > ")
			code = <-userInputChan
		}
		if code == "exit" {
			fmt.Fprintf(os.Stdout, "Terminated.\n")
			break
		}
		if code[0] != '*' && code[0] != '#' {
			fmt.Fprintf(os.Stdout, "  ERROR: USSD must begin with '*' or '#'. Type exit to quit.\n")
			continue
		}
		dial(s.Service, *subscriptionPtr, code, *timeoutPtr)
	} //for each request
}

func dial(s ms.Service, subscriptionID int, code string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	reply := ms.NewReply()
	log.Debugf("dialing %s on subscription %d", code, subscriptionID)
	s.Dispatch(ctx, ms.Call{
		Method: channel.MethodMakeRequest,
		Args: map[string]interface{}{
			"subscriptionId": subscriptionID,
			"code":           code,
		},
	}, reply)
	select {
	case <-reply.Done():
	case <-ctx.Done():
		fmt.Fprintf(os.Stdout, "  ERROR: no response after %v\n", timeout)
		fmt.Fprintf(os.Stdout, "==========[ T I M E O U T ]========\n")
		return
	}
	switch reply.Status() {
	case ms.StatusSuccess:
		text := fmt.Sprint(reply.Value())
		fmt.Fprintf(os.Stdout, "\n%s\n", text)
		fmt.Fprintf(os.Stdout, "-------------------------(len:%3d)--\n", len(text))
		fmt.Fprintf(os.Stdout, "==========[ E N D ]================\n")
	default:
		fmt.Fprintf(os.Stdout, "  ERROR: %s\n", reply.Message())
		fmt.Fprintf(os.Stdout, "  (%s)\n", reply.Code())
		fmt.Fprintf(os.Stdout, "==========[ E R R O R ]============\n")
	}
} //dial()
