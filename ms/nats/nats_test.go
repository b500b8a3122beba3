package nats

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/comms"
	"bitbucket.org/vservices/ms-vservices-ussd/ms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	subject string
	data    []byte
}

//fakeComms keeps the subscription and records every Send()
type fakeComms struct {
	mutex      sync.Mutex
	subject    string
	broadcast  bool
	callback   comms.HandlerFunc
	subscribed chan struct{}
	sent       chan sent
}

func newFakeComms() *fakeComms {
	return &fakeComms{subscribed: make(chan struct{}), sent: make(chan sent, 10)}
}

func (f *fakeComms) Subscribe(subject string, broadcast bool, cb comms.HandlerFunc) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.subject = subject
	f.broadcast = broadcast
	f.callback = cb
	close(f.subscribed)
	return nil
}

func (f *fakeComms) Send(header map[string]string, subject string, data []byte) error {
	f.sent <- sent{subject: subject, data: data}
	return nil
}

func (f *fakeComms) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	return nil, comms.ErrNoResponders
}

func (f *fakeComms) Close() error { return nil }

func (f *fakeComms) deliver(data string, replyAddress string) {
	f.mutex.Lock()
	cb := f.callback
	f.mutex.Unlock()
	cb([]byte(data), replyAddress)
}

func (f *fakeComms) nextReply(t *testing.T) (string, ms.Message) {
	select {
	case s := <-f.sent:
		var m ms.Message
		require.NoError(t, json.Unmarshal(s.data, &m))
		return s.subject, m
	case <-time.After(time.Second):
		t.Fatal("no reply sent")
	}
	return "", ms.Message{}
}

func runTransport(t *testing.T, s ms.Service) *fakeComms {
	fc := newFakeComms()
	h, err := Config{}.New(fc)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, s) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	select {
	case <-fc.subscribed:
	case <-time.After(time.Second):
		t.Fatal("not subscribed")
	}
	return fc
}

func TestConfigValidate(t *testing.T) {
	c := Config{}
	require.NoError(t, c.Validate())
	assert.Equal(t, "ussd", c.Domain)
	assert.Error(t, (&Config{Domain: "ussd.*"}).Validate())
	_, err := Config{}.New(nil)
	assert.Error(t, err)
}

func TestParseRequest(t *testing.T) {
	_, call, err := parseRequest("ussd", []byte(`{"header":{"provider":{"name":"/ussd/makeRequest"}},"request":{"subscriptionId":1,"code":"*100#"}}`))
	require.NoError(t, err)
	assert.Equal(t, "makeRequest", call.Method)
	assert.Equal(t, json.Number("1"), call.Args["subscriptionId"])
	assert.Equal(t, "*100#", call.Args["code"])

	_, call, err = parseRequest("ussd", []byte(`{"header":{"provider":{"name":"/ussd/ping"}}}`))
	require.NoError(t, err)
	assert.NotNil(t, call.Args)

	for _, bad := range []string{
		`not json`,
		`{"header":{}}`,
		`{"header":{"provider":{"name":"ussd/makeRequest"}}}`,
		`{"header":{"provider":{"name":"/other/makeRequest"}}}`,
		`{"header":{"provider":{"name":"/ussd/"}}}`,
		`{"header":{"provider":{"name":"/ussd/makeRequest"},"result":{"code":0}}}`,
	} {
		_, _, err := parseRequest("ussd", []byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestRequestSuccessReply(t *testing.T) {
	s := ms.NewService().Handle("makeRequest", func(ctx context.Context, call ms.Call, res ms.Result) {
		code, _ := call.Argument("code")
		res.Success("reply to " + code.(string))
	})
	fc := runTransport(t, s)
	assert.Equal(t, "ussd.*", fc.subject)
	assert.False(t, fc.broadcast)

	fc.deliver(`{"header":{"echo_request":true,"provider":{"name":"/ussd/makeRequest"}},"request":{"subscriptionId":0,"code":"*123#"}}`, "_INBOX.1")
	subject, m := fc.nextReply(t)
	assert.Equal(t, "_INBOX.1", subject)
	require.NotNil(t, m.Header.Result)
	assert.Equal(t, ms.ResultCodeSuccess, m.Header.Result.Code)
	assert.Equal(t, "reply to *123#", m.Response)
	assert.Equal(t, "*123#", m.Request["code"])
}

func TestRequestErrorReplyToHeaderAddress(t *testing.T) {
	s := ms.NewService().Handle("makeRequest", func(ctx context.Context, call ms.Call, res ms.Result) {
		go res.Error("ussd_plugin_ussd_execution_failure", "USSD_RETURN_FAILURE", nil)
	})
	fc := runTransport(t, s)

	fc.deliver(`{"header":{"reply_address":"replies.here","provider":{"name":"/ussd/makeRequest"}},"request":{}}`, "")
	subject, m := fc.nextReply(t)
	assert.Equal(t, "replies.here", subject)
	assert.Equal(t, &ms.MessageHeaderResult{
		Code:        ms.ResultCodeError,
		Description: "ussd_plugin_ussd_execution_failure",
		Details:     "USSD_RETURN_FAILURE",
	}, m.Header.Result)
	assert.Nil(t, m.Request)
}

func TestRequestNotImplementedAndMalformed(t *testing.T) {
	fc := runTransport(t, ms.NewService())

	fc.deliver(`{"header":{"provider":{"name":"/ussd/getBalance"}}}`, "r1")
	_, m := fc.nextReply(t)
	assert.Equal(t, ms.ResultCodeNotImplemented, m.Header.Result.Code)

	fc.deliver(`{{{`, "r2")
	subject, m := fc.nextReply(t)
	assert.Equal(t, "r2", subject)
	assert.Equal(t, ms.ResultCodeError, m.Header.Result.Code)
	assert.Equal(t, ms.CodeUnknownException, m.Header.Result.Description)
}
