package ms

import (
	"fmt"
	"sync"
)

//Result receives the one reply to a call
type Result interface {
	Success(value interface{})
	Error(code string, message string, details interface{})
	NotImplemented()
}

//Once wraps res so that only the first reply is forwarded;
//later replies are logged and dropped
func Once(method string, res Result) Result {
	if o, ok := res.(*onceResult); ok {
		return o
	}
	return &onceResult{method: method, res: res}
}

type onceResult struct {
	mutex   sync.Mutex
	replied string
	method  string
	res     Result
}

func (o *onceResult) first(kind string) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.replied != "" {
		log.Errorf("method(%s) already replied %s, dropping %s", o.method, o.replied, kind)
		return false
	}
	o.replied = kind
	return true
}

func (o *onceResult) Success(value interface{}) {
	if o.first("success") {
		o.res.Success(value)
	}
}

func (o *onceResult) Error(code string, message string, details interface{}) {
	if o.first("error(" + code + ")") {
		o.res.Error(code, message, details)
	}
}

func (o *onceResult) NotImplemented() {
	if o.first("not_implemented") {
		o.res.NotImplemented()
	}
}

type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
	StatusNotImplemented
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusNotImplemented:
		return "not_implemented"
	default:
		return fmt.Sprintf("unknown ms.Status(%d)", int(s))
	}
}

//Reply is a Result that keeps the first reply for a transport to send
type Reply struct {
	mutex   sync.Mutex
	done    chan struct{}
	status  Status
	value   interface{}
	code    string
	message string
	details interface{}
}

func NewReply() *Reply {
	return &Reply{done: make(chan struct{})}
}

func (r *Reply) set(status Status, value interface{}, code, message string, details interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.status != StatusPending {
		return
	}
	r.status = status
	r.value = value
	r.code = code
	r.message = message
	r.details = details
	close(r.done)
}

func (r *Reply) Success(value interface{}) {
	r.set(StatusSuccess, value, "", "", nil)
}

func (r *Reply) Error(code string, message string, details interface{}) {
	r.set(StatusError, nil, code, message, details)
}

func (r *Reply) NotImplemented() {
	r.set(StatusNotImplemented, nil, "", "", nil)
}

//Done is closed when the reply arrived
func (r *Reply) Done() <-chan struct{} { return r.done }

func (r *Reply) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status
}

func (r *Reply) Value() interface{} {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.value
}

func (r *Reply) Code() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.code
}

func (r *Reply) Message() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.message
}

func (r *Reply) Details() interface{} {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.details
}
