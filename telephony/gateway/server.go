package gateway

import (
	"context"
	"encoding/json"

	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/ussd"
	"github.com/pkg/errors"
)

//Server answers gateway requests with a local modem
type Server struct {
	subject   string
	conn      comms.Handler
	telephony ussd.Telephony
	executor  ussd.Executor
}

func NewServer(c Config, conn comms.Handler, telephony ussd.Telephony, executor ussd.Executor) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid gateway config")
	}
	if conn == nil || telephony == nil || executor == nil {
		return nil, errors.Errorf("cannot create gateway server without conn, telephony and executor")
	}
	return &Server{subject: c.Subject, conn: conn, telephony: telephony, executor: executor}, nil
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.conn.Subscribe(s.subject, false, s.handleRequest); err != nil {
		return errors.Wrapf(err, "failed to subscribe to %s", s.subject)
	}
	log.Infof("gateway serving on %s...", s.subject)
	<-ctx.Done()
	log.Infof("gateway stopped")
	return nil
}

func (s *Server) handleRequest(data []byte, replyAddress string) {
	if replyAddress == "" {
		log.Errorf("discard gateway request without reply address: %s", data)
		return
	}
	r := replier{conn: s.conn, replyAddress: replyAddress}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil || req.Code == "" {
		log.Errorf("invalid gateway request \"%s\"", data)
		r.OnReceiveUssdResponseFailed(req.Code, ussd.FailureReturnFailure)
		return
	}
	sender, err := s.telephony.ForSubscription(req.SubscriptionID)
	if err != nil {
		log.Errorf("no modem for subscription %d: %+v", req.SubscriptionID, err)
		r.OnReceiveUssdResponseFailed(req.Code, ussd.FailureServiceUnavailable)
		return
	}
	if err := sender.SendUssdRequest(req.Code, r, s.executor); err != nil {
		log.Errorf("modem send failed: %+v", err)
		r.OnReceiveUssdResponseFailed(req.Code, ussd.FailureServiceUnavailable)
	}
} //Server.handleRequest()

//replier relays the modem callback to the waiting client
type replier struct {
	conn         comms.Handler
	replyAddress string
}

func (r replier) OnReceiveUssdResponse(request string, response string) {
	r.send(Reply{Response: &response})
}

func (r replier) OnReceiveUssdResponseFailed(request string, failureCode int) {
	r.send(Reply{FailureCode: &failureCode})
}

func (r replier) send(reply Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		log.Errorf("failed to encode gateway reply: %+v", err)
		return
	}
	if err := r.conn.Send(nil, r.replyAddress, data); err != nil {
		log.Errorf("failed to reply to %s: %+v", r.replyAddress, err)
	}
}
