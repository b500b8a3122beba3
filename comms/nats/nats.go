package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

var log = logger.NewLogger()

//conn is the part of *nats.Conn used by the handler
type conn interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	PublishMsg(msg *nats.Msg) error
	HeadersSupported() bool
	Drain() error
}

type handler struct {
	config             Config
	conn               conn
	headersSupported   bool
	subscriptionsLock  sync.Mutex
	subscriptions      map[string]*nats.Subscription
	replySubjectPrefix string
	replySubscription  *nats.Subscription
	replyChannelsLock  sync.Mutex
	replyChannels      map[string]chan *nats.Msg
}

func newHandler(c Config, nc conn) (*handler, error) {
	h := &handler{
		config:             c,
		conn:               nc,
		subscriptions:      make(map[string]*nats.Subscription),
		replyChannels:      make(map[string]chan *nats.Msg, 100),
		replySubjectPrefix: nats.NewInbox() + ".",
	}
	h.headersSupported = nc.HeadersSupported()
	var err error
	h.replySubscription, err = nc.Subscribe(
		h.replySubjectPrefix+"*",
		h.handleReply)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to reply subject")
	}
	return h, nil
} //newHandler()

//Subscribe() to group queue (only one instance get the request) or broadcast
// queue (each instance get it)
func (h *handler) Subscribe(subject string, broadcast bool, callback comms.HandlerFunc) error {
	if h == nil {
		return errors.Errorf("nil.Subscribe()")
	}
	h.subscriptionsLock.Lock()
	defer h.subscriptionsLock.Unlock()
	if _, ok := h.subscriptions[subject]; ok {
		return nil //already subscribed, assuming with same callback
	}
	var subscription *nats.Subscription
	var err error
	if !broadcast {
		subscription, err = h.conn.QueueSubscribe(subject, queueName(subject), func(msg *nats.Msg) {
			callback(msg.Data, msg.Reply)
		})
		if err != nil {
			return errors.Wrapf(err, "queue subscribe(%s) failed", subject)
		}
	} else {
		subscription, err = h.conn.Subscribe(subject, func(msg *nats.Msg) {
			callback(msg.Data, msg.Reply)
		})
		if err != nil {
			return errors.Wrapf(err, "subscribe(%s) failed", subject)
		}
	}
	h.subscriptions[subject] = subscription
	return nil
} //handler.Subscribe()

//queueName drops wildcard tokens, e.g. "ussd.*" -> "Q.ussd"
func queueName(subject string) string {
	parts := []string{}
	for _, p := range strings.Split(subject, ".") {
		if p != "*" && p != ">" {
			parts = append(parts, p)
		}
	}
	return fmt.Sprintf("Q.%s", strings.Join(parts, "."))
}

//Send() sends a message to Nats on a given subject
func (h *handler) Send(header map[string]string, subject string, data []byte) error {
	if h == nil {
		return errors.Errorf("nil.Send()")
	}
	sendMsg := nats.NewMsg(subject)
	sendMsg.Data = data
	if h.headersSupported {
		for n, v := range header {
			sendMsg.Header.Set(n, v)
		}
	}
	if err := h.conn.PublishMsg(sendMsg); err != nil {
		return errors.Wrap(err, "failed to publish message")
	}
	return nil
} //handler.Send()

//Request() sends data on subject and waits for the reply on a private
//reply subject, until ctx is done
func (h *handler) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if h == nil {
		return nil, errors.Errorf("nil.Request()")
	}
	replySubject := h.replySubjectPrefix + uuid.New().String()

	//buffered so handleReply never blocks after we gave up waiting
	replyChan := make(chan *nats.Msg, 1)
	h.replyChannelsLock.Lock()
	h.replyChannels[replySubject] = replyChan
	h.replyChannelsLock.Unlock()
	defer func() {
		h.replyChannelsLock.Lock()
		delete(h.replyChannels, replySubject)
		h.replyChannelsLock.Unlock()
	}()

	sendMsg := nats.NewMsg(subject)
	sendMsg.Reply = replySubject
	sendMsg.Data = data
	if err := h.conn.PublishMsg(sendMsg); err != nil {
		return nil, errors.Wrapf(err, "failed to publish request on subject %s", subject)
	}

	log.Debugf("Waiting for reply on %s", replySubject)
	select {
	case replyMsg := <-replyChan:
		if len(replyMsg.Data) == 0 {
			//server status message (503) when nobody subscribed
			return nil, errors.Wrapf(comms.ErrNoResponders, "subject %s", subject)
		}
		return replyMsg.Data, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "no reply on subject %s", subject)
	}
} //handler.Request()

//handleReply() handles reply messages on our private reply subjects
func (h *handler) handleReply(msg *nats.Msg) {
	log.Debugf("Received reply \"%s\" on subject %s", msg.Data, msg.Subject)
	var replyChan chan *nats.Msg
	var ok bool
	key := msg.Subject
	h.replyChannelsLock.Lock()
	if replyChan, ok = h.replyChannels[key]; !ok {
		h.replyChannelsLock.Unlock()
		log.Errorf("%+v", errors.Errorf("reply key(%s) not found, discarding \"%s\"", key, msg.Data))
		return
	}
	delete(h.replyChannels, key)
	h.replyChannelsLock.Unlock()
	replyChan <- msg
	log.Debugf("Replied for %s", key)
} //handler.handleReply()

//Close() unsubscribes everything and closes the connection after pending
//messages were processed
func (h *handler) Close() error {
	if h == nil {
		return errors.Errorf("nil.Close()")
	}
	h.subscriptionsLock.Lock()
	h.subscriptions = make(map[string]*nats.Subscription)
	h.subscriptionsLock.Unlock()
	if err := h.conn.Drain(); err != nil {
		return errors.Wrapf(err, "failed to drain connection")
	}
	return nil
} //handler.Close()
