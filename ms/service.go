package ms

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"bitbucket.org/vservices/ms-vservices-ussd/logger"
	"github.com/pkg/errors"
)

var log = logger.NewLogger()

//CodeUnknownException is the error code for failures no handler anticipated
const CodeUnknownException = "unknown_exception"

//Call is one method invocation with its argument bag
type Call struct {
	Method string
	Args   map[string]interface{}
}

func (c Call) Argument(name string) (interface{}, bool) {
	v, ok := c.Args[name]
	return v, ok
}

//HandlerFunc must reply exactly once on res, now or later from any goroutine
type HandlerFunc func(ctx context.Context, call Call, res Result)

type Service struct {
	handlerByMethod map[string]HandlerFunc
}

func NewService() Service {
	return Service{
		handlerByMethod: map[string]HandlerFunc{},
	}
}

const methodNamePattern = `[a-z][a-zA-Z0-9_]*[a-zA-Z0-9]`

var methodNameRegex = regexp.MustCompile("^" + methodNamePattern + "$")

func (s Service) Handle(method string, fnc HandlerFunc) Service {
	if !methodNameRegex.MatchString(method) {
		panic(errors.Errorf("invalid method name(%s)", method))
	}
	if _, ok := s.handlerByMethod[method]; ok {
		panic(errors.Errorf("duplicate service method name(%s)", method))
	}
	if fnc == nil {
		panic(errors.Errorf("method(%s).fnc==nil", method))
	}
	s.handlerByMethod[method] = fnc
	return s
} //Handle()

func (s Service) Methods() []string {
	names := make([]string, 0, len(s.handlerByMethod))
	for name := range s.handlerByMethod {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

//Dispatch calls the handler for call.Method.
//Unknown methods reply NotImplemented, a panicking handler replies an
//unknown_exception error, and only the first reply reaches res.
func (s Service) Dispatch(ctx context.Context, call Call, res Result) {
	res = Once(call.Method, res)
	fnc, ok := s.handlerByMethod[call.Method]
	if !ok {
		log.Debugf("method(%s) not implemented", call.Method)
		res.NotImplemented()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("method(%s) panic: %v", call.Method, r)
			res.Error(CodeUnknownException, fmt.Sprint(r), nil)
		}
	}()
	fnc(ctx, call, res)
} //Service.Dispatch()
