package ussd

import (
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var log = logger.NewLogger()

//PermissionCallPhone is the privilege required to place USSD requests
const PermissionCallPhone = "CALL_PHONE"

//platform failure codes passed to ResponseCallback.OnReceiveUssdResponseFailed()
const (
	FailureReturnFailure      = -1
	FailureServiceUnavailable = -2
)

//FailureReason maps a platform failure code to the reason reported to the caller
func FailureReason(failureCode int) string {
	switch failureCode {
	case FailureServiceUnavailable:
		return "USSD_ERROR_SERVICE_UNAVAIL"
	case FailureReturnFailure:
		return "USSD_RETURN_FAILURE"
	default:
		return "unknown error"
	}
}

type Permissions interface {
	Granted(permission string) bool
}

//Telephony gives access to the telephony service of one subscription
type Telephony interface {
	ForSubscription(subscriptionID int) (Sender, error)
}

//Sender submits a silent USSD request.
//It must return without waiting for the carrier and later invoke exactly
//one branch of cb exactly once, on ex. A non-nil error means nothing was sent
//and cb will never be invoked.
type Sender interface {
	SendUssdRequest(code string, cb ResponseCallback, ex Executor) error
}

type ResponseCallback interface {
	OnReceiveUssdResponse(request string, response string)
	OnReceiveUssdResponseFailed(request string, failureCode int)
}

//Executor is the context in which response callbacks are delivered
type Executor interface {
	Post(fn func()) bool
}

//Observer is told about every dispatched request and its outcome.
//Requests rejected before dispatch (permission missing, no telephony)
//complete without being dispatched.
type Observer interface {
	Dispatched(req Request)
	Completed(req Request, outcome string, duration time.Duration)
}

//outcomes given to Observer.Completed()
const (
	OutcomeSuccess           = "success"
	OutcomePermissionMissing = "permission_missing"
	OutcomeNoTelephony       = "no_telephony"
	OutcomeSendFailed        = "send_failed"
)

type Bridge struct {
	permissions Permissions
	telephony   Telephony
	executor    Executor
	permission  string
	observer    Observer
	now         func() time.Time
}

type Option func(*Bridge)

//WithPermission overrides the privilege checked before every request
func WithPermission(permission string) Option {
	return func(b *Bridge) {
		if permission != "" {
			b.permission = permission
		}
	}
}

func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.observer = o
		}
	}
}

func NewBridge(permissions Permissions, telephony Telephony, executor Executor, opts ...Option) (*Bridge, error) {
	if permissions == nil {
		return nil, errors.Errorf("cannot create bridge with permissions==nil")
	}
	if telephony == nil {
		return nil, errors.Errorf("cannot create bridge with telephony==nil")
	}
	if executor == nil {
		return nil, errors.Errorf("cannot create bridge with executor==nil")
	}
	b := &Bridge{
		permissions: permissions,
		telephony:   telephony,
		executor:    executor,
		permission:  PermissionCallPhone,
		observer:    nopObserver{},
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
} //NewBridge()

//Execute sends req and returns either a synchronous error or a future
//for the carrier response, never both.
//Synchronous errors are ExecutionFailure (permission missing) or
//UnknownFailure (the telephony service could not be obtained or refused the send).
func (b *Bridge) Execute(req Request) (*Future, error) {
	if req.code == "" {
		//only possible with the zero Request
		return nil, invalidParameters(msgCodeEmpty)
	}
	if !b.permissions.Granted(b.permission) {
		log.Warnf("%s denied for %s", b.permission, req)
		b.observer.Completed(req, OutcomePermissionMissing, 0)
		return nil, executionFailure(b.permission + " permission missing")
	}

	sender, err := b.telephony.ForSubscription(req.subscriptionID)
	if err != nil {
		b.observer.Completed(req, OutcomeNoTelephony, 0)
		return nil, unknownFailure(errors.Wrapf(err, "no telephony service for subscription %d", req.subscriptionID))
	}

	op := &pendingOperation{
		id:      uuid.New().String(),
		req:     req,
		future:  newFuture(),
		started: b.now(),
		bridge:  b,
	}
	b.observer.Dispatched(req)
	log.Debugf("op(%s) sending %s", op.id, req)
	if err := sender.SendUssdRequest(req.code, op, opExecutor{ex: b.executor, op: op}); err != nil {
		//nothing was sent, so no callback will come: drop the operation
		if op.future.resolve("", nil) {
			b.observer.Completed(req, OutcomeSendFailed, b.now().Sub(op.started))
		}
		return nil, unknownFailure(errors.Wrapf(err, "failed to send ussd request"))
	}
	return op.future, nil
} //Bridge.Execute()

//pendingOperation correlates one send with the one callback that completes it
type pendingOperation struct {
	id      string
	req     Request
	future  *Future
	started time.Time
	bridge  *Bridge
}

func (op *pendingOperation) OnReceiveUssdResponse(request string, response string) {
	op.complete(response, nil, OutcomeSuccess)
}

func (op *pendingOperation) OnReceiveUssdResponseFailed(request string, failureCode int) {
	reason := FailureReason(failureCode)
	err := executionFailure(reason)
	err.failureCode = failureCode
	err.hasFailureCode = true
	op.complete("", err, reason)
}

func (op *pendingOperation) complete(text string, err error, outcome string) {
	if !op.future.resolve(text, err) {
		log.Warnf("op(%s) already completed, ignoring late %s callback", op.id, outcome)
		return
	}
	d := op.bridge.now().Sub(op.started)
	log.Debugf("op(%s) completed %s after %v", op.id, outcome, d)
	op.bridge.observer.Completed(op.req, outcome, d)
}

//opExecutor fails the operation when the executor refuses its callback,
//so a stopped executor still produces exactly one reply
type opExecutor struct {
	ex Executor
	op *pendingOperation
}

func (e opExecutor) Post(fn func()) bool {
	if e.ex.Post(fn) {
		return true
	}
	log.Errorf("op(%s) executor stopped, callback not delivered", e.op.id)
	e.op.complete("", unknownFailure(errors.Errorf("executor stopped before the ussd response was delivered")), OutcomeSendFailed)
	return false
}

type nopObserver struct{}

func (nopObserver) Dispatched(Request) {}
func (nopObserver) Completed(Request, string, time.Duration) {}
