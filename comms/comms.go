package comms

import (
	"context"

	"github.com/pkg/errors"
)

type Handler interface {
	Subscribe(subject string, broadcast bool, callback HandlerFunc) error
	Send(header map[string]string, subject string, data []byte) error
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Close() error
}

//HandlerFunc is function prototype for queue subscription handler
type HandlerFunc func(data []byte, replyAddress string)

//ErrNoResponders is returned by Request when nobody subscribes to the subject
var ErrNoResponders = errors.New("no responders")
