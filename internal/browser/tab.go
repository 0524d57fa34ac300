// Package browser is the chromedp-backed environment the popup controller
// drives: one tab, its frames, and the binding frames use to talk back.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/tryxpath-cli/internal/assets"
	"github.com/xkilldash9x/tryxpath-cli/internal/config"
	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

const (
	// BindingName is the function frames call to send a message to the popup.
	BindingName = "__tryxpathSend"
	// WorldName names the isolated world every script runs in.
	WorldName = "tryxpath"

	closeTimeout = 2 * time.Second
)

// receiveTemplate hands one encoded message to the content script. It
// evaluates to false when the frame has no receiver.
const receiveTemplate = `(function (m) {
  if (typeof window.__tryxpathReceive !== "function") { return false; }
  window.__tryxpathReceive(m);
  return true;
})(%s)`

var (
	ErrNoReceiver   = errors.New("frame has no message receiver")
	ErrUnknownFrame = errors.New("unknown frame")
	ErrUnknownTab   = errors.New("unknown tab")
)

// Poster accepts inbound envelopes without blocking.
type Poster interface {
	TryPost(env protocol.Envelope) bool
}

// Tab is one browser tab seen through CDP.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	id     string
	out    Poster
	logger *zap.Logger
	frames *frameRegistry
}

// Open connects to (or launches) the browser described by cfg, attaches to
// its tab, exposes the frame binding and forwards binding calls to out.
func Open(ctx context.Context, cfg config.BrowserConfig, out Poster, logger *zap.Logger) (*Tab, error) {
	allocCtx, allocCancel := NewAllocator(ctx, cfg)
	tabCtx, tabCancel, err := openTarget(allocCtx, cfg.TabID)
	if err != nil {
		allocCancel()
		return nil, err
	}
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	t := &Tab{
		ctx:    tabCtx,
		cancel: cancel,
		out:    out,
		logger: logger.Named("browser"),
		frames: newFrameRegistry(),
	}
	// Listen before attaching: enabling the runtime domain replays the
	// execution contexts that already exist, including the worlds an earlier
	// popup created.
	chromedp.ListenTarget(tabCtx, t.onEvent)

	// The first Run attaches to the target (or creates one).
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("attaching to tab: %w", err)
	}
	t.id = string(chromedp.FromContext(tabCtx).Target.TargetID)
	t.logger = t.logger.With(zap.String("tab_id", t.id))

	if err := chromedp.Run(tabCtx, runtime.AddBinding(BindingName).WithExecutionContextName(WorldName)); err != nil {
		cancel()
		return nil, fmt.Errorf("exposing %s: %w", BindingName, err)
	}
	if cfg.StartURL != "" {
		if err := chromedp.Run(tabCtx, chromedp.Navigate(cfg.StartURL)); err != nil {
			cancel()
			return nil, fmt.Errorf("navigating to %s: %w", cfg.StartURL, err)
		}
	}
	if err := t.refreshFrames(tabCtx); err != nil {
		cancel()
		return nil, err
	}
	t.logger.Info("Attached to tab.", zap.Ints("frames", t.frames.liveIDs()))
	return t, nil
}

// openTarget picks the tab the popup acts on: the one named by tabID, else
// the first page target, else a new tab.
func openTarget(allocCtx context.Context, tabID string) (context.Context, context.CancelFunc, error) {
	if tabID != "" {
		ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(target.ID(tabID)))
		return ctx, cancel, nil
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	infos, err := chromedp.Targets(browserCtx)
	if err != nil {
		browserCancel()
		return nil, nil, fmt.Errorf("listing targets: %w", err)
	}
	id, ok := firstPage(infos)
	if !ok {
		return browserCtx, browserCancel, nil
	}
	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(id))
	return tabCtx, func() {
		tabCancel()
		browserCancel()
	}, nil
}

func firstPage(infos []*target.Info) (target.ID, bool) {
	for _, info := range infos {
		if info != nil && info.Type == "page" {
			return info.TargetID, true
		}
	}
	return "", false
}

// ID returns the CDP target id of the tab.
func (t *Tab) ID() string { return t.id }

// ActiveTab returns the tab queries go to. There is only ever one.
func (t *Tab) ActiveTab(ctx context.Context) (string, error) {
	if err := t.ctx.Err(); err != nil {
		return "", fmt.Errorf("tab closed: %w", err)
	}
	return t.id, nil
}

// Navigate loads url in the tab.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return t.refreshFrames(opCtx)
}

// Frames lists the numbers of the tab's live frames.
func (t *Tab) Frames(ctx context.Context) ([]int, error) {
	opCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	if err := t.refreshFrames(opCtx); err != nil {
		return nil, err
	}
	return t.frames.liveIDs(), nil
}

// ExecuteScript runs s in one frame, or in every live frame when s.AllFrames
// is set, and returns the JSON value each run evaluated to.
func (t *Tab) ExecuteScript(ctx context.Context, s frames.Script) ([]json.RawMessage, error) {
	src := s.Code
	if s.File != "" {
		var err error
		if src, err = assets.Load(s.File); err != nil {
			return nil, err
		}
	}

	opCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()

	if !s.AllFrames {
		res, err := t.evaluate(opCtx, s.FrameID, src)
		if err != nil {
			return nil, err
		}
		return []json.RawMessage{res}, nil
	}

	if err := t.refreshFrames(opCtx); err != nil {
		return nil, err
	}
	return fanOut(opCtx, t.frames.liveIDs(), func(ctx context.Context, id int) (json.RawMessage, error) {
		return t.evaluate(ctx, id, src)
	}, t.logger)
}

// fanOut runs eval in every frame of ids concurrently. A frame that fails
// (detached, navigating, out of process) is logged and left out; the run
// fails only when no frame succeeded.
func fanOut(ctx context.Context, ids []int, eval func(context.Context, int) (json.RawMessage, error), logger *zap.Logger) ([]json.RawMessage, error) {
	results := make([]json.RawMessage, len(ids))
	errs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			results[i], errs[i] = eval(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]json.RawMessage, 0, len(ids))
	var failed []error
	for i, err := range errs {
		if err != nil {
			logger.Warn("Skipping frame in broadcast.", zap.Int("frame_id", ids[i]), zap.Error(err))
			failed = append(failed, err)
			continue
		}
		out = append(out, results[i])
	}
	if len(out) == 0 && len(failed) > 0 {
		return nil, fmt.Errorf("no frame evaluated the script: %w", errors.Join(failed...))
	}
	return out, nil
}

// SendMessage delivers msg to the content script of one frame, or of every
// frame when frameID is nil. Frames without a receiver are skipped on a
// broadcast and an error otherwise.
func (t *Tab) SendMessage(ctx context.Context, tabID string, frameID *int, msg protocol.Message) error {
	if tabID != t.id {
		return fmt.Errorf("%w: %q", ErrUnknownTab, tabID)
	}
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Event, err)
	}
	code := fmt.Sprintf(receiveTemplate, raw)

	if frameID == nil {
		_, err := t.ExecuteScript(ctx, frames.Script{Code: code, AllFrames: true})
		return err
	}
	results, err := t.ExecuteScript(ctx, frames.Script{Code: code, FrameID: *frameID})
	if err != nil {
		return err
	}
	if len(results) == 0 || !json.Get(results[0]).ToBool() {
		return fmt.Errorf("%w: frame %d", ErrNoReceiver, *frameID)
	}
	return nil
}

// Close removes the binding, detaches from the tab and releases the
// allocator.
func (t *Tab) Close() {
	if t.ctx.Err() == nil {
		cleanupCtx, cancel := context.WithTimeout(Detach(t.ctx), closeTimeout)
		if err := chromedp.Run(cleanupCtx, runtime.RemoveBinding(BindingName)); err != nil {
			t.logger.Debug("Could not remove binding.", zap.Error(err))
		}
		cancel()
	}
	t.cancel()
}

func (t *Tab) refreshFrames(ctx context.Context) error {
	var tree *page.FrameTree
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(c)
		return err
	}))
	if err != nil {
		return fmt.Errorf("reading frame tree: %w", err)
	}
	t.frames.load(tree)
	return nil
}

// world returns the isolated world of frame id, creating it on first use.
func (t *Tab) world(ctx context.Context, id int) (cdp.FrameID, runtime.ExecutionContextID, error) {
	frame, ok := t.frames.lookup(id)
	if !ok {
		if err := t.refreshFrames(ctx); err != nil {
			return "", 0, err
		}
		if frame, ok = t.frames.lookup(id); !ok {
			return "", 0, fmt.Errorf("%w: %d", ErrUnknownFrame, id)
		}
	}
	if world, ok := t.frames.world(frame); ok {
		return frame, world, nil
	}

	var world runtime.ExecutionContextID
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		world, err = page.CreateIsolatedWorld(frame).WithWorldName(WorldName).Do(c)
		return err
	}))
	if err != nil {
		return "", 0, fmt.Errorf("creating world in frame %d: %w", id, err)
	}
	t.frames.setWorld(frame, world)
	return frame, world, nil
}

func (t *Tab) evaluate(ctx context.Context, id int, src string) (json.RawMessage, error) {
	frame, world, err := t.world(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		res *runtime.RemoteObject
		exc *runtime.ExceptionDetails
	)
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		res, exc, err = runtime.Evaluate(src).
			WithContextID(world).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			WithSilent(true).
			Do(c)
		return err
	}))
	if err != nil {
		// The world may have gone away with a navigation; recreate it next time.
		t.frames.dropWorld(frame)
		return nil, fmt.Errorf("evaluating in frame %d: %w", id, err)
	}
	if exc != nil {
		return nil, fmt.Errorf("script failed in frame %d: %s", id, describe(exc))
	}
	if res == nil || len(res.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(res.Value), nil
}

func describe(exc *runtime.ExceptionDetails) string {
	if exc.Exception != nil && exc.Exception.Description != "" {
		return exc.Exception.Description
	}
	return exc.Text
}

// onEvent runs on the chromedp event goroutine and must never block.
func (t *Tab) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name == BindingName {
			t.forward(e)
		}
	case *runtime.EventExecutionContextCreated:
		if e.Context == nil || e.Context.Name != WorldName {
			return
		}
		frame := json.Get([]byte(e.Context.AuxData), "frameId").ToString()
		if frame != "" {
			t.frames.setWorld(cdp.FrameID(frame), e.Context.ID)
		}
	case *runtime.EventExecutionContextDestroyed:
		t.frames.dropContext(e.ExecutionContextID)
	case *runtime.EventExecutionContextsCleared:
		t.frames.clearWorlds()
	case *page.EventFrameAttached:
		t.frames.attach(e.FrameID)
	case *page.EventFrameNavigated:
		t.frames.navigated(e.Frame)
	case *page.EventFrameDetached:
		t.frames.detach(e.FrameID)
	}
}

func (t *Tab) forward(e *runtime.EventBindingCalled) {
	frameID, ok := t.frames.owner(e.ExecutionContextID)
	if !ok {
		t.logger.Debug("Binding call from an unknown context.", zap.Int64("context_id", int64(e.ExecutionContextID)))
		return
	}
	env := protocol.NewEnvelope(protocol.Sender{TabID: t.id, FrameID: frameID}, []byte(e.Payload))
	if !t.out.TryPost(env) {
		t.logger.Warn("Dropped inbound message.", zap.String("event", env.Event), zap.Int("frame_id", frameID))
	}
}
