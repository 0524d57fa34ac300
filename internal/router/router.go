// Package router is the single inbound dispatch point of the popup controller.
// Every message the environment sends back arrives here, is decoded into its
// protocol.Inbound variant and handed to the one handler registered for its
// event name.
package router

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/bus"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// Handler processes one decoded inbound message.
type Handler func(ctx context.Context, msg protocol.Inbound)

// Router maps event names to handlers. Handlers never run concurrently with
// each other.
type Router struct {
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// New creates an empty router.
func New(logger *zap.Logger) *Router {
	return &Router{
		logger:   logger.Named("router"),
		handlers: make(map[string]Handler),
	}
}

// Register binds h to event. An event has at most one handler.
func (r *Router) Register(event string, h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler for event %q", event)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[event]; exists {
		return fmt.Errorf("handler for event %q already registered", event)
	}
	r.handlers[event] = h
	return nil
}

// Dispatch decodes env and runs its handler. It reports whether a handler ran.
// Unknown events and undecodable payloads are dropped.
func (r *Router) Dispatch(ctx context.Context, env protocol.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handlers[env.Event]
	if !ok {
		r.logger.Debug("Ignoring unrecognized event.", zap.String("event", env.Event))
		return false
	}

	msg, err := protocol.Decode(env)
	if err != nil {
		r.logger.Warn("Dropping malformed inbound message.",
			zap.String("event", env.Event),
			zap.String("tab_id", env.Sender.TabID),
			zap.Int("frame_id", env.Sender.FrameID),
			zap.Error(err))
		return false
	}
	if _, unknown := msg.(*protocol.Unrecognized); unknown {
		return false
	}

	h(ctx, msg)
	return true
}

// Serve consumes every message posted to b, in delivery order, until ctx is
// done or the bus shuts down.
func (r *Router) Serve(ctx context.Context, b *bus.Bus) {
	r.Listen(b)(ctx)
}

// Listen subscribes to b right away and returns the loop that consumes the
// subscription. Messages posted between the two calls are kept.
func (r *Router) Listen(b *bus.Bus) func(ctx context.Context) {
	ch, unsubscribe := b.Subscribe(bus.AllEvents)
	return func(ctx context.Context) {
		defer unsubscribe()

		r.logger.Debug("Router serving inbound messages.")
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				r.Dispatch(ctx, m.Envelope)
				b.Acknowledge(m)
			}
		}
	}
}
