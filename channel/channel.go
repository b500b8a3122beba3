//Package channel exposes the USSD bridge as the makeRequest method of a dispatcher service.
package channel

import (
	"context"

	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"bitbucket.org/vservices/ms-vservices-ussd/ussd"
)

var log = logger.NewLogger()

//Name identifies the channel to callers of the service
const Name = "com.ktminnov.ussd_service/plugin_channel"

const MethodMakeRequest = "makeRequest"

type Bridge interface {
	Execute(req ussd.Request) (*ussd.Future, error)
}

//Register adds makeRequest to s
func Register(s ms.Service, bridge Bridge) ms.Service {
	return s.Handle(MethodMakeRequest, MakeRequest(bridge))
}

//MakeRequest validates the argument bag, executes the request and replies once:
//synchronously for invalid parameters and missing permission,
//otherwise when the carrier response (or failure) arrives
func MakeRequest(bridge Bridge) ms.HandlerFunc {
	return func(ctx context.Context, call ms.Call, res ms.Result) {
		req, err := ussd.ParseRequest(call.Args)
		if err != nil {
			replyError(res, err)
			return
		}
		future, err := bridge.Execute(req)
		if err != nil {
			replyError(res, err)
			return
		}
		future.Then(func(text string, err error) {
			if err != nil {
				replyError(res, err)
				return
			}
			res.Success(text)
		})
	}
} //MakeRequest()

func replyError(res ms.Result, err error) {
	code, message := ussd.Describe(err)
	log.Debugf("reply error %s: %s", code, message)
	res.Error(code, message, nil)
}
