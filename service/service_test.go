package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/config"
	"bitbucket.org/vservices/ms-vservices-ussd/looper"
	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"bitbucket.org/vservices/ms-vservices-ussd/telephony/gateway"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	c := config.Config{}
	c.Telephony.Sim.Responses = map[string]string{"*100#": "BAL: 10.00"}
	require.NoError(t, c.Validate())
	return c
}

func TestNewSim(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := New(testConfig(t), nil, reg)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"makeRequest"}, s.Methods())

	reply := ms.NewReply()
	s.Dispatch(context.Background(), ms.Call{
		Method: "makeRequest",
		Args:   map[string]interface{}{"subscriptionId": 0, "code": "*100#"},
	}, reply)
	select {
	case <-reply.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
	assert.Equal(t, "BAL: 10.00", reply.Value())

	count, err := testutil.GatherAndCount(reg, "ussd_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewRequiredPermission(t *testing.T) {
	c := testConfig(t)
	c.Permissions.Required = "SEND_USSD"
	s, err := New(c, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	reply := ms.NewReply()
	s.Dispatch(context.Background(), ms.Call{
		Method: "makeRequest",
		Args:   map[string]interface{}{"subscriptionId": 0, "code": "*100#"},
	}, reply)
	assert.Equal(t, "SEND_USSD permission missing", reply.Message())
}

func TestNewGatewayNeedsConn(t *testing.T) {
	c := testConfig(t)
	c.Telephony.Driver = config.DriverGateway
	_, err := New(c, nil, nil)
	assert.Error(t, err)
}

func makeRequest(t *testing.T, s ms.Service) *ms.Reply {
	reply := ms.NewReply()
	s.Dispatch(context.Background(), ms.Call{
		Method: "makeRequest",
		Args:   map[string]interface{}{"subscriptionId": 0, "code": "*100#"},
	}, reply)
	select {
	case <-reply.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply (status=%s)", reply.Status())
	}
	return reply
}

func TestClosedServiceStillReplies(t *testing.T) {
	for _, delay := range []time.Duration{0, 10 * time.Millisecond} {
		c := testConfig(t)
		c.Telephony.Sim.Delay = delay
		s, err := New(c, nil, nil)
		require.NoError(t, err)
		s.Close()

		reply := makeRequest(t, s.Service)
		assert.Equal(t, ms.StatusError, reply.Status(), "delay %v", delay)
		assert.Equal(t, "unknown_exception", reply.Code(), "delay %v", delay)
	}
}

//bus delivers like a NATS server: every matching subscription gets the message
//and only the first reply reaches the requester
type bus struct {
	mutex   sync.Mutex
	subs    map[string]comms.HandlerFunc
	replies map[string]chan []byte
}

func newBus() *bus {
	return &bus{subs: map[string]comms.HandlerFunc{}, replies: map[string]chan []byte{}}
}

func subjectMatch(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	if len(p) != len(s) {
		return false
	}
	for i := range p {
		if p[i] != "*" && p[i] != s[i] {
			return false
		}
	}
	return true
}

func (b *bus) Subscribe(subject string, broadcast bool, cb comms.HandlerFunc) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.subs[subject] = cb
	return nil
}

func (b *bus) publish(subject string, data []byte, replyAddress string) int {
	b.mutex.Lock()
	matched := []comms.HandlerFunc{}
	for pattern, cb := range b.subs {
		if subjectMatch(pattern, subject) {
			matched = append(matched, cb)
		}
	}
	b.mutex.Unlock()
	for _, cb := range matched {
		go cb(data, replyAddress)
	}
	return len(matched)
}

func (b *bus) Send(header map[string]string, subject string, data []byte) error {
	b.mutex.Lock()
	replyChan, ok := b.replies[subject]
	b.mutex.Unlock()
	if ok {
		select {
		case replyChan <- data:
		default:
		}
		return nil
	}
	b.publish(subject, data, "")
	return nil
}

func (b *bus) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	replyAddress := "_INBOX." + uuid.New().String()
	replyChan := make(chan []byte, 1)
	b.mutex.Lock()
	b.replies[replyAddress] = replyChan
	b.mutex.Unlock()
	if b.publish(subject, data, replyAddress) == 0 {
		return nil, errors.Wrapf(comms.ErrNoResponders, "subject %s", subject)
	}
	select {
	case data := <-replyChan:
		return data, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "no reply on subject %s", subject)
	}
}

func (b *bus) Close() error { return nil }

func (b *bus) subscribed(subject string) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	_, ok := b.subs[subject]
	return ok
}

func TestGatewayBesideNatsFrontDoor(t *testing.T) {
	c := testConfig(t)
	c.Telephony.Driver = config.DriverGateway
	c.Nats.Enabled = true
	require.NoError(t, c.Validate())
	conn := newBus()
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	t.Cleanup(func() { cancel(); wg.Wait() })

	//modem side
	modem, err := c.Telephony.Sim.New()
	require.NoError(t, err)
	modemLooper := looper.New("modem")
	t.Cleanup(func() { modemLooper.Quit(); modemLooper.Wait() })
	server, err := gateway.NewServer(c.Telephony.Gateway, conn, modem, modemLooper)
	require.NoError(t, err)

	//bridge side
	s, err := New(c, conn, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	frontDoor, err := c.NatsService().New(conn)
	require.NoError(t, err)

	wg.Add(2)
	go func() { defer wg.Done(); assert.NoError(t, server.Run(ctx)) }()
	go func() { defer wg.Done(); assert.NoError(t, frontDoor.Run(ctx, s.Service)) }()
	require.Eventually(t, func() bool {
		return conn.subscribed(c.Telephony.Gateway.Subject) && conn.subscribed(c.Domain+".*")
	}, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		reply := makeRequest(t, s.Service)
		require.Equal(t, ms.StatusSuccess, reply.Status(), "%s: %s", reply.Code(), reply.Message())
		assert.Equal(t, "BAL: 10.00", reply.Value())
	}

	//and through the front door
	req, err := json.Marshal(ms.Message{
		Header:  ms.MessageHeader{Provider: &ms.ServiceAddress{Name: "/ussd/makeRequest"}},
		Request: map[string]interface{}{"subscriptionId": 0, "code": "*100#"},
	})
	require.NoError(t, err)
	data, err := conn.Request(ctx, "ussd.makeRequest", req)
	require.NoError(t, err)
	var res ms.Message
	require.NoError(t, json.Unmarshal(data, &res))
	require.NotNil(t, res.Header.Result)
	assert.Equal(t, ms.ResultCodeSuccess, res.Header.Result.Code, res.Header.Result.Details)
	assert.Equal(t, "BAL: 10.00", res.Response)
}
