package ms

import "context"

//Handler is a transport that receives calls and dispatches them to a Service
type Handler interface {
	Run(ctx context.Context, s Service) error
}
