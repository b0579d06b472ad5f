package capture

import (
	"context"

	"github.com/ekaya-inc/bugsneak/pkg/models"
)

// Handler receives error events.
type Handler interface {
	HandleEvent(ctx context.Context, ev *models.ErrorEvent)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev *models.ErrorEvent)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev *models.ErrorEvent) {
	f(ctx, ev)
}

// Middleware wraps a Handler. Implementations must call next.
type Middleware func(next Handler) Handler

// Discard drops every event.
var Discard Handler = HandlerFunc(func(context.Context, *models.ErrorEvent) {})

// Chain builds a handler from middlewares around final. The first middleware
// sees the event first.
func Chain(final Handler, mws ...Middleware) Handler {
	if final == nil {
		final = Discard
	}
	h := final
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
