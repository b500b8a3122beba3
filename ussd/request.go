package ussd

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const (
	ArgSubscriptionID = "subscriptionId"
	ArgCode           = "code"
)

const (
	msgSubscriptionNotInt   = "Parameter `subscriptionId` must be an int"
	msgSubscriptionNegative = "Parameter `subscriptionId` must be >= 0"
	msgCodeNotString        = "Parameter `code` must be a String"
	msgCodeEmpty            = "Parameter `code` must not be empty"
)

//Request is a validated USSD request.
//The zero value is not a valid request; use ParseRequest or NewRequest.
type Request struct {
	subscriptionID int
	code           string
}

func (r Request) SubscriptionID() int { return r.subscriptionID }
func (r Request) Code() string { return r.code }

func (r Request) String() string {
	return fmt.Sprintf("{subscription:%d code:%q}", r.subscriptionID, r.code)
}

//ParseRequest validates the argument bag of a makeRequest call.
//Checks run in a fixed order and the first failure is returned
//as an *Error of KindInvalidParameters.
func ParseRequest(args map[string]interface{}) (Request, error) {
	subscriptionID, ok := intArg(args[ArgSubscriptionID])
	if !ok {
		return Request{}, invalidParameters(msgSubscriptionNotInt)
	}
	code, ok := args[ArgCode].(string)
	return newRequest(subscriptionID, code, ok)
}

//NewRequest applies the same validation as ParseRequest to typed values
func NewRequest(subscriptionID int, code string) (Request, error) {
	if subscriptionID > math.MaxInt32 || subscriptionID < math.MinInt32 {
		return Request{}, invalidParameters(msgSubscriptionNotInt)
	}
	return newRequest(subscriptionID, code, true)
}

func newRequest(subscriptionID int, code string, codeIsString bool) (Request, error) {
	if subscriptionID < 0 {
		return Request{}, invalidParameters(msgSubscriptionNegative)
	}
	if !codeIsString {
		return Request{}, invalidParameters(msgCodeNotString)
	}
	if code == "" {
		return Request{}, invalidParameters(msgCodeEmpty)
	}
	return Request{subscriptionID: subscriptionID, code: code}, nil
}

//intArg accepts Go integer types and json.Number holding a plain integer,
//all within the 32-bit range of a platform subscription id.
//Floats, strings and bools are not ints, even when they look like one.
func intArg(v interface{}) (int, bool) {
	var i64 int64
	switch n := v.(type) {
	case int:
		i64 = int64(n)
	case int8:
		i64 = int64(n)
	case int16:
		i64 = int64(n)
	case int32:
		i64 = int64(n)
	case int64:
		i64 = n
	case uint8:
		i64 = int64(n)
	case uint16:
		i64 = int64(n)
	case uint32:
		i64 = int64(n)
	case uint:
		if uint64(n) > math.MaxInt32 {
			return 0, false
		}
		i64 = int64(n)
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		i64 = int64(n)
	case json.Number:
		var err error
		if i64, err = strconv.ParseInt(string(n), 10, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if i64 > math.MaxInt32 || i64 < math.MinInt32 {
		return 0, false
	}
	return int(i64), true
} //intArg()
