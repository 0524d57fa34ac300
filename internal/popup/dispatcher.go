package popup

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/faults"
	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// ErrorMessage is shown when a send to the specified frame fails.
const ErrorMessage = "An error occurred. The frameId may be incorrect."

// ErrorSink receives the one error display of a failed action.
type ErrorSink func(message, frameID string)

// Dispatcher sends messages to the specified frame, readying it first.
type Dispatcher struct {
	env      Environment
	resolver *frames.Resolver
	injector *frames.Injector
	onError  ErrorSink
	logger   *zap.Logger

	mu          sync.Mutex
	initialized bool
}

// NewDispatcher wires a dispatcher. onError is called once per failed send.
func NewDispatcher(env Environment, resolver *frames.Resolver, injector *frames.Injector, onError ErrorSink, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		env:      env,
		resolver: resolver,
		injector: injector,
		onError:  onError,
		logger:   logger.Named("dispatcher"),
	}
}

// Dispatch builds an execute request from ui and sends it to the frame ui
// selects.
func (d *Dispatcher) Dispatch(ctx context.Context, ui UIState) (frames.Target, error) {
	req, err := BuildExecuteRequest(ui)
	if err != nil {
		target := d.resolver.Resolve(ui.FrameSelection())
		d.fail(target, protocol.EventExecute, err)
		return target, err
	}
	return d.SendToSpecifiedFrame(ctx, ui.FrameSelection(), req.Message())
}

// SendToSpecifiedFrame resolves sel, makes sure the frame is alive and
// carries the query capability, primes the tab once per session and sends
// msg to that frame only. Any failure is reported through the error sink
// exactly once and returned.
func (d *Dispatcher) SendToSpecifiedFrame(ctx context.Context, sel frames.Selection, msg protocol.Message) (frames.Target, error) {
	target := d.resolver.Resolve(sel)
	if err := d.send(ctx, target, msg); err != nil {
		d.fail(target, msg.Event, err)
		return target, err
	}
	return target, nil
}

func (d *Dispatcher) send(ctx context.Context, target frames.Target, msg protocol.Message) error {
	// 1. The frame id must be usable.
	if err := target.Validate(); err != nil {
		return err
	}

	// 2. Find the tab.
	tabID, err := d.env.ActiveTab(ctx)
	if err != nil {
		frameID := target.FrameID
		return &faults.TransportError{Event: msg.Event, FrameID: &frameID, Err: err}
	}

	// 3. Liveness check. A frame that does not answer gets the capability.
	alive, err := d.injector.IsPresent(ctx, target.FrameID)
	if err != nil {
		return err
	}
	if !alive {
		if err := d.injector.EnsureReady(ctx, target.FrameID); err != nil {
			return err
		}
	}

	// 4. One-time initialize broadcast before the first real send.
	if err := d.initialize(ctx, tabID); err != nil {
		return err
	}

	// 5. The send itself, scoped to the frame.
	frameID := target.FrameID
	if err := d.env.SendMessage(ctx, tabID, &frameID, msg); err != nil {
		return &faults.TransportError{Event: msg.Event, TabID: tabID, FrameID: &frameID, Err: err}
	}
	d.logger.Debug("Message sent to frame.",
		zap.String("event", msg.Event),
		zap.String("tab_id", tabID),
		zap.Int("frame_id", frameID))
	return nil
}

func (d *Dispatcher) initialize(ctx context.Context, tabID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}
	if err := d.env.SendMessage(ctx, tabID, nil, protocol.NewMessage(protocol.EventInitializeBlankWindows)); err != nil {
		return &faults.TransportError{Event: protocol.EventInitializeBlankWindows, TabID: tabID, Err: err}
	}
	d.initialized = true
	return nil
}

// Initialized reports whether the session's initialize broadcast went out.
func (d *Dispatcher) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

func (d *Dispatcher) fail(target frames.Target, event string, err error) {
	d.logger.Warn("Send to specified frame failed.",
		zap.String("event", event),
		zap.String("frame_id", target.String()),
		zap.Error(err))
	if d.onError != nil {
		d.onError(ErrorMessage, target.String())
	}
}
