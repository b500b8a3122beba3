package ms

const TimestampFormat = "2006-01-02 15:04:05.000"

type Message struct {
	Header   MessageHeader          `json:"header"`
	Request  map[string]interface{} `json:"request,omitempty"`
	Response interface{}            `json:"response,omitempty"`
}

type MessageHeader struct {
	Timestamp    string               `json:"timestamp"`
	TTL          int                  `json:"ttl,omitempty"`
	ReplyAddress string               `json:"reply_address,omitempty"`
	EchoRequest  bool                 `json:"echo_request"`
	Result       *MessageHeaderResult `json:"result,omitempty"`
	Provider     *ServiceAddress      `json:"provider,omitempty"`
	Consumer     *ServiceAddress      `json:"consumer,omitempty"`
}

type ServiceAddress struct {
	Name string `json:"name,omitempty"`
	Tid  string `json:"tid,omitempty"`
	Sid  string `json:"sid,omitempty"`
}

type MessageHeaderResult struct {
	Code        int    `json:"code"`
	Description string `json:"description,omitempty"`
	Details     string `json:"details,omitempty"`
}

//result codes in MessageHeaderResult.Code
const (
	ResultCodeSuccess        = 0
	ResultCodeError          = -1
	ResultCodeNotImplemented = -2
)

//HeaderResult describes the reply in the message header:
//errors carry the error code as description and the message as details
func (r *Reply) HeaderResult() *MessageHeaderResult {
	switch r.Status() {
	case StatusSuccess:
		return &MessageHeaderResult{Code: ResultCodeSuccess, Description: "success"}
	case StatusError:
		return &MessageHeaderResult{Code: ResultCodeError, Description: r.Code(), Details: r.Message()}
	case StatusNotImplemented:
		return &MessageHeaderResult{Code: ResultCodeNotImplemented, Description: "not_implemented"}
	default:
		return nil
	}
}
