// Package bus carries inbound protocol envelopes from the transport (CDP event
// goroutines that must never block for long) to the controller's single
// consumer loop.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// AllEvents subscribes to every event, including ones no handler knows.
const AllEvents = "*"

// ErrShutdown is returned by Post once the bus is shutting down.
var ErrShutdown = errors.New("message bus is shut down")

var errNoSubscribers = errors.New("no subscribers")

// Message wraps an envelope with delivery metadata.
type Message struct {
	ID        string
	Timestamp time.Time
	Envelope  protocol.Envelope
}

// Bus is a pub/sub queue keyed by event name.
type Bus struct {
	logger *zap.Logger

	subscribers map[string][]chan Message
	mu          sync.RWMutex
	bufferSize  int

	// retired holds unsubscribed channels. Posts already in flight may still
	// land in them, so Shutdown closes and drains them too.
	retired map[chan Message]struct{}

	// processingWg tracks messages delivered but not yet acknowledged.
	processingWg sync.WaitGroup
	// activePostsWg tracks Post calls in flight.
	activePostsWg sync.WaitGroup

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	isShutdown   bool
	shutdownMu   sync.Mutex
}

// New creates a bus whose subscriber channels buffer bufferSize messages.
func New(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		logger:       logger.Named("bus"),
		subscribers:  make(map[string][]chan Message),
		retired:      make(map[chan Message]struct{}),
		bufferSize:   bufferSize,
		shutdownChan: make(chan struct{}),
	}
}

// Post delivers env to the subscribers of its event and of AllEvents. It
// blocks while a subscriber buffer is full, until ctx is done.
func (b *Bus) Post(ctx context.Context, env protocol.Envelope) error {
	return b.deliver(ctx, env, true)
}

// TryPost delivers env without blocking. It reports false when the bus is
// shut down, nobody is subscribed, or a subscriber buffer was full; the
// message is then dropped for that subscriber.
func (b *Bus) TryPost(env protocol.Envelope) bool {
	return b.deliver(context.Background(), env, false) == nil
}

func (b *Bus) deliver(ctx context.Context, env protocol.Envelope, block bool) error {
	// 1. Check shutdown state and register as an active post.
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return ErrShutdown
	}
	b.activePostsWg.Add(1)
	b.shutdownMu.Unlock()
	defer b.activePostsWg.Done()

	msg := Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Envelope:  env,
	}

	// 2. Copy the subscriber list so no lock is held during sends.
	b.mu.RLock()
	var targets []chan Message
	targets = append(targets, b.subscribers[env.Event]...)
	if env.Event != AllEvents {
		targets = append(targets, b.subscribers[AllEvents]...)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		b.logger.Debug("No subscriber for event.", zap.String("event", env.Event))
		if !block {
			return errNoSubscribers
		}
		return nil
	}

	// 3. Deliver, counting each message until it is acknowledged.
	var dropped bool
	for _, ch := range targets {
		b.processingWg.Add(1)
		if !block {
			select {
			case ch <- msg:
			case <-b.shutdownChan:
				b.processingWg.Done()
				return ErrShutdown
			default:
				b.processingWg.Done()
				dropped = true
			}
			continue
		}
		select {
		case ch <- msg:
		case <-ctx.Done():
			b.processingWg.Done()
			return ctx.Err()
		case <-b.shutdownChan:
			b.processingWg.Done()
			return ErrShutdown
		}
	}
	if dropped {
		b.logger.Warn("Subscriber buffer full, inbound message dropped.", zap.String("event", env.Event), zap.String("id", msg.ID))
		return errors.New("subscriber buffer full")
	}
	return nil
}

// Subscribe returns a channel receiving messages for the given events and a
// function that removes the subscription. Consumers must Acknowledge every
// message they receive.
func (b *Bus) Subscribe(events ...string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdownLocked() {
		closed := make(chan Message)
		close(closed)
		return closed, func() {}
	}
	if len(events) == 0 {
		panic("bus: subscribe requires at least one event")
	}

	ch := make(chan Message, b.bufferSize)
	subscribed := append([]string(nil), events...)
	for _, ev := range subscribed {
		b.subscribers[ev] = append(b.subscribers[ev], ch)
	}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, ev := range subscribed {
			subs := b.subscribers[ev]
			for i, sub := range subs {
				if sub == ch {
					copy(subs[i:], subs[i+1:])
					b.subscribers[ev] = subs[:len(subs)-1]
					if len(b.subscribers[ev]) == 0 {
						delete(b.subscribers, ev)
					}
					break
				}
			}
		}
		b.retired[ch] = struct{}{}
		b.drainLocked(ch)
	}
	return ch, unsubscribe
}

func (b *Bus) isShutdownLocked() bool {
	b.shutdownMu.Lock()
	defer b.shutdownMu.Unlock()
	return b.isShutdown
}

// drainLocked discards what is buffered in ch without waiting for more.
func (b *Bus) drainLocked(ch chan Message) int {
	drained := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return drained
			}
			drained++
			b.processingWg.Done()
		default:
			return drained
		}
	}
}

// Acknowledge marks a received message as processed.
func (b *Bus) Acknowledge(Message) {
	b.processingWg.Done()
}

// Shutdown stops accepting posts, closes every subscriber channel, drains
// unconsumed buffers and waits for in-progress messages to be acknowledged.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.shutdownMu.Lock()
		b.isShutdown = true
		b.shutdownMu.Unlock()

		close(b.shutdownChan)
		b.activePostsWg.Wait()

		b.mu.Lock()
		unique := make(map[chan Message]struct{})
		for _, subs := range b.subscribers {
			for _, ch := range subs {
				unique[ch] = struct{}{}
			}
		}
		for ch := range b.retired {
			unique[ch] = struct{}{}
		}
		for ch := range unique {
			close(ch)
		}
		drained := 0
		for ch := range unique {
			for range ch {
				drained++
				b.processingWg.Done()
			}
		}
		b.subscribers = make(map[string][]chan Message)
		b.retired = make(map[chan Message]struct{})
		b.mu.Unlock()

		if drained > 0 {
			b.logger.Debug("Drained buffered messages during shutdown.", zap.Int("count", drained))
		}
		b.processingWg.Wait()
		b.logger.Debug("Message bus shut down.")
	})
}
