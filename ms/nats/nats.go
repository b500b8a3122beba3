package nats

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"github.com/pkg/errors"
)

var log = logger.NewLogger()

type Config struct {
	Domain string `mapstructure:"domain" json:"domain" doc:"Requests are received on subjects <domain>.* (default 'ussd')"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Errorf("nil.Validate()")
	}
	if c.Domain == "" {
		c.Domain = "ussd"
	}
	if strings.ContainsAny(c.Domain, " *>") {
		return errors.Errorf("invalid domain:\"%s\"", c.Domain)
	}
	return nil
}

//New() creates a transport that receives calls over the comms connection
func (c Config) New(conn comms.Handler) (ms.Handler, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid nats config")
	}
	if conn == nil {
		return nil, errors.Errorf("cannot create nats transport with conn==nil")
	}
	return &handler{config: c, conn: conn}, nil
}

type handler struct {
	config  Config
	conn    comms.Handler
	ctx     context.Context
	service ms.Service
}

func (h *handler) Run(ctx context.Context, s ms.Service) error {
	h.ctx = ctx
	h.service = s //must set before subscription to have it in handleRequest
	if err := h.conn.Subscribe(h.config.Domain+".*", false, h.handleRequest); err != nil {
		return errors.Wrapf(err, "failed to subscribe to request subject")
	}
	log.Infof("NATS service(%s) running with methods %v...", h.config.Domain, s.Methods())
	<-ctx.Done()
	log.Infof("NATS service(%s) stopped", h.config.Domain)
	return nil
}

func (h *handler) handleRequest(data []byte, replyAddress string) {
	log.Debugf("Received %s", string(data))
	m, call, err := parseRequest(h.config.Domain, data)
	if replyAddress == "" {
		replyAddress = m.Header.ReplyAddress
	}
	r := &replier{Reply: ms.NewReply(), conn: h.conn, replyAddress: replyAddress, request: m}
	if err != nil {
		log.Errorf("discard request: %+v", err)
		r.Error(ms.CodeUnknownException, err.Error(), nil)
		return
	}
	h.service.Dispatch(h.ctx, call, r)
} //handler.handleRequest()

//parseRequest decodes a request message and determines the method
//from provider.name="/<domain>/<method>"
func parseRequest(domain string, data []byte) (ms.Message, ms.Call, error) {
	var m ms.Message
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&m); err != nil {
		return ms.Message{}, ms.Call{}, errors.Wrapf(err, "cannot unmarshal JSON")
	}
	if m.Header.Result != nil || m.Response != nil {
		return m, ms.Call{}, errors.Errorf("discard response message on request subject")
	}
	if m.Header.Provider == nil {
		return m, ms.Call{}, errors.Errorf("missing header.provider")
	}
	parts := strings.SplitN(m.Header.Provider.Name, "/", 3)
	if len(parts) != 3 || parts[0] != "" || parts[2] == "" {
		return m, ms.Call{}, errors.Errorf("provider.name=\"%s\" != \"/<domain>/<method>\"", m.Header.Provider.Name)
	}
	if parts[1] != domain {
		return m, ms.Call{}, errors.Errorf("provider.name=\"%s\" is not in domain %s", m.Header.Provider.Name, domain)
	}
	args := m.Request
	if args == nil {
		args = map[string]interface{}{}
	}
	return m, ms.Call{Method: parts[2], Args: args}, nil
} //parseRequest()

//replier sends the reply message as soon as the first reply is set
type replier struct {
	*ms.Reply
	conn         comms.Handler
	replyAddress string
	request      ms.Message
}

func (r *replier) Success(value interface{}) {
	r.Reply.Success(value)
	r.send()
}

func (r *replier) Error(code string, message string, details interface{}) {
	r.Reply.Error(code, message, details)
	r.send()
}

func (r *replier) NotImplemented() {
	r.Reply.NotImplemented()
	r.send()
}

func (r *replier) send() {
	resMessage := ms.Message{
		Header: ms.MessageHeader{
			Timestamp: time.Now().Local().Format(ms.TimestampFormat),
			Result:    r.HeaderResult(),
			Provider:  r.request.Header.Provider,
			Consumer:  r.request.Header.Consumer,
		},
		Response: r.Value(),
	}
	if r.request.Header.EchoRequest {
		resMessage.Request = r.request.Request
	}
	if r.replyAddress == "" {
		log.Errorf("no reply address, dropping %s reply", r.Status())
		return
	}
	jsonRes, err := json.Marshal(resMessage)
	if err != nil {
		log.Errorf("failed to encode reply: %+v", err)
		return
	}
	if err := r.conn.Send(nil, r.replyAddress, jsonRes); err != nil {
		log.Errorf("failed to reply to %s: %+v", r.replyAddress, err)
	}
} //replier.send()
