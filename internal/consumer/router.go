package consumer

import (
	"context"
	"errors"
	"fmt"
)

// Handler processes one decoded record.
type Handler interface {
	Handle(context.Context, Record) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Record) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Router sends each record to the catch-all handlers first and then to the
// handlers registered for its event type.
//
// A failure stops the chain, so a retried record never reaches a handler twice
// unless every handler before it is idempotent. Malformed-record errors do not
// stop the chain; they are joined and returned once every handler has run.
type Router struct {
	always []Handler
	byType map[string][]Handler
}

// NewRouter returns a Router whose catch-all handlers see every record.
func NewRouter(always ...Handler) *Router {
	return &Router{always: always, byType: make(map[string][]Handler)}
}

// On registers h for the given event types.
func (r *Router) On(h Handler, eventTypes ...string) *Router {
	for _, eventType := range eventTypes {
		r.byType[eventType] = append(r.byType[eventType], h)
	}
	return r
}

// Handle runs the matching handlers in registration order.
func (r *Router) Handle(ctx context.Context, rec Record) error {
	var malformed error
	chain := append(append([]Handler(nil), r.always...), r.byType[rec.EventType]...)
	for _, h := range chain {
		err := h.Handle(ctx, rec)
		switch {
		case err == nil:
		case errors.Is(err, ErrMalformedRecord):
			malformed = errors.Join(malformed, err)
		default:
			return fmt.Errorf("route %s: %w", rec.EventType, err)
		}
	}
	return malformed
}
