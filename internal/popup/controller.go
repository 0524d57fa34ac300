// Package popup is the query popup controller: it targets frames, dispatches
// queries, correlates and pages the results that come back, and carries the
// user's selections from one popup lifetime to the next.
package popup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/faults"
	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
	"github.com/xkilldash9x/tryxpath-cli/internal/router"
)

// TimeoutMessage is shown when a frame never answers.
const TimeoutMessage = "No response from the frame. The frameId may be incorrect."

// ErrNoResults is returned by follow-up actions when nothing is displayed.
var ErrNoResults = errors.New("no results are displayed")

// Options configures a controller.
type Options struct {
	// ResponseTimeout bounds ExpectResponse. Zero waits for the context only.
	ResponseTimeout time.Duration
	Defaults        Visibility
}

// Controller owns all popup state. Handlers and actions may be called from
// different goroutines; state changes are serialized.
type Controller struct {
	env        Environment
	background Background
	view       View
	opts       Options
	logger     *zap.Logger

	resolver   *frames.Resolver
	injector   *frames.Injector
	dispatcher *Dispatcher
	states     *SessionStateStore

	mu         sync.Mutex
	ui         UIState
	session    *SessionContext
	pager      *Paginator
	lastTarget frames.Target
	generation uint64
	changed    chan struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a controller for one popup lifetime.
func New(env Environment, background Background, view View, opts Options, logger *zap.Logger) *Controller {
	logger = logger.Named("popup")
	c := &Controller{
		env:        env,
		background: background,
		view:       view,
		opts:       opts,
		logger:     logger,
		resolver:   frames.NewResolver(env, logger),
		injector:   frames.NewInjector(env, logger),
		ui:         NewUIState(opts.Defaults),
		session:    NewSessionContext(),
		pager:      NewPaginator(view),
		lastTarget: frames.Default(),
		changed:    make(chan struct{}),
		ready:      make(chan struct{}),
	}
	c.states = NewSessionStateStore(c.resolver)
	c.dispatcher = NewDispatcher(env, c.resolver, c.injector, c.showError, logger)
	return c
}

// Register binds the controller's inbound handlers.
func (c *Controller) Register(r *router.Router) error {
	handlers := map[string]router.Handler{
		protocol.EventShowResultsInPopup: c.handleShowResults,
		protocol.EventRestorePopupState:  c.handleRestoreState,
		protocol.EventInsertStyleToPopup: c.handleInsertStyle,
		protocol.EventAddFrameID:         c.handleFrameReport,
	}
	for _, event := range []string{
		protocol.EventShowResultsInPopup,
		protocol.EventRestorePopupState,
		protocol.EventInsertStyleToPopup,
		protocol.EventAddFrameID,
	} {
		if err := r.Register(event, handlers[event]); err != nil {
			return err
		}
	}
	return nil
}

// -- Lifecycle --

// Start asks the background for popup css and the stored session. Ready is
// closed once the session is replayed.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.applyVisibilityLocked()
	c.pager.ShowPage(0)
	c.mu.Unlock()

	if err := c.background.RequestInsertStyle(ctx); err != nil {
		c.logger.Warn("Popup style request failed.", zap.Error(err))
	}
	if err := c.background.RequestRestoreState(ctx); err != nil {
		c.logger.Warn("Session restore request failed, starting fresh.", zap.Error(err))
		c.restore(ctx, nil)
		return &faults.PersistenceError{Op: "restore", Err: err}
	}
	return nil
}

// Ready is closed after the stored session has been replayed.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Snapshot captures the live selections and page index.
func (c *Controller) Snapshot() protocol.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states.Snapshot(c.ui, c.pager.Index())
}

// Teardown persists the snapshot for the next popup lifetime.
func (c *Controller) Teardown(ctx context.Context) error {
	state := c.Snapshot()
	if err := c.background.StoreState(ctx, state); err != nil {
		c.logger.Error("Failed to store popup state.", zap.Error(err))
		return &faults.PersistenceError{Op: "store", Err: err}
	}
	c.logger.Debug("Popup state stored.", zap.Int("page_index", state.DetailsPageIndex))
	return nil
}

// -- Inbound handlers --

func (c *Controller) handleShowResults(_ context.Context, msg protocol.Inbound) {
	show := msg.(*protocol.ShowResults)

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.session.Adopt(show.Sender, show.ExecutionID)
	items := show.Main.ItemDetails

	c.view.SetStatus(show.Message, strconv.Itoa(current.FrameID))
	c.view.SetCount(len(items))
	if show.Context != nil && show.Context.ItemDetail != nil {
		c.view.RenderContext([]protocol.ResultItem{*show.Context.ItemDetail})
	}
	page := c.pager.Replace(items)
	c.bumpLocked()

	c.logger.Debug("Results displayed.",
		zap.String("tab_id", current.TabID),
		zap.Int("frame_id", current.FrameID),
		zap.Stringer("execution_id", current.ExecutionID),
		zap.Int("count", len(items)),
		zap.Int("page", page))
}

func (c *Controller) handleRestoreState(ctx context.Context, msg protocol.Inbound) {
	c.restore(ctx, msg.(*protocol.RestoreState).State)
}

func (c *Controller) restore(ctx context.Context, state *protocol.SessionState) {
	defer c.readyOnce.Do(func() { close(c.ready) })

	c.mu.Lock()
	if pageIndex, ok := c.states.Restore(&c.ui, state); ok {
		c.pager.Restore(pageIndex)
		c.logger.Debug("Session restored.", zap.Int("page_index", pageIndex))
	}
	c.applyVisibilityLocked()
	sel := c.ui.FrameSelection()
	c.mu.Unlock()

	c.sendExpectingResults(ctx, sel, protocol.NewMessage(protocol.EventRequestShowResultsInPopup))
}

func (c *Controller) handleInsertStyle(_ context.Context, msg protocol.Inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.InsertStyle(msg.(*protocol.InsertStyle).CSS)
}

func (c *Controller) handleFrameReport(_ context.Context, msg protocol.Inbound) {
	c.resolver.AddDiscovered(msg.(*protocol.FrameReport).Sender.FrameID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.SetFrameOptions(c.resolver.Options())
}

// -- User actions --

// Execute runs the main query, and the context query when enabled.
func (c *Controller) Execute(ctx context.Context) error {
	c.mu.Lock()
	ui := c.ui
	c.mu.Unlock()

	target, err := c.dispatcher.Dispatch(ctx, ui)
	c.setLastTarget(target)
	return err
}

// ShowPreviousResults asks the frame to resend its last results.
func (c *Controller) ShowPreviousResults(ctx context.Context) error {
	return c.sendToSpecifiedFrame(ctx, protocol.NewMessage(protocol.EventRequestShowResultsInPopup))
}

// ShowAllResults asks the frame for its full result list.
func (c *Controller) ShowAllResults(ctx context.Context) error {
	return c.sendToSpecifiedFrame(ctx, protocol.NewMessage(protocol.EventRequestShowAllResults))
}

// FocusFrame focuses the specified frame.
func (c *Controller) FocusFrame(ctx context.Context) error {
	return c.sendToSpecifiedFrame(ctx, protocol.NewMessage(protocol.EventFocusFrame))
}

// FocusDesignatedFrame focuses the frame located by the designation
// expression inside the specified frame.
func (c *Controller) FocusDesignatedFrame(ctx context.Context) error {
	c.mu.Lock()
	designation := c.ui.FrameDesignationExpression
	c.mu.Unlock()

	msg := protocol.NewMessage(protocol.EventFocusFrame)
	msg.FrameDesignation = &designation
	return c.sendToSpecifiedFrame(ctx, msg)
}

// SetStyle applies the result markers, in the specified frame or in every
// frame of the tab.
func (c *Controller) SetStyle(ctx context.Context, all bool) error {
	return c.style(ctx, protocol.EventSetStyle, all)
}

// ResetStyle removes the result markers.
func (c *Controller) ResetStyle(ctx context.Context, all bool) error {
	return c.style(ctx, protocol.EventResetStyle, all)
}

func (c *Controller) style(ctx context.Context, event string, all bool) error {
	if !all {
		return c.sendToSpecifiedFrame(ctx, protocol.NewMessage(event))
	}
	tabID, err := c.env.ActiveTab(ctx)
	if err == nil {
		err = c.env.SendMessage(ctx, tabID, nil, protocol.NewMessage(event))
	}
	if err != nil {
		c.logger.Warn("Style broadcast failed.", zap.String("event", event), zap.Error(err))
		return &faults.TransportError{Event: event, TabID: tabID, Err: err}
	}
	return nil
}

// FocusItem asks the frame that produced the displayed results to focus the
// result at index.
func (c *Controller) FocusItem(ctx context.Context, index int) error {
	c.mu.Lock()
	target, ok := c.session.Target()
	_, inRange := c.pager.Item(index)
	c.mu.Unlock()
	if !ok {
		return ErrNoResults
	}
	if !inRange {
		return fmt.Errorf("result index %d out of range", index)
	}

	msg := protocol.NewMessage(protocol.EventFocusItem)
	msg.ExecutionID = target.ExecutionID
	msg.Index = &index
	return c.sendToCorrelated(ctx, target, msg)
}

// FocusContextItem asks the frame that produced the displayed results to
// focus the context item.
func (c *Controller) FocusContextItem(ctx context.Context) error {
	c.mu.Lock()
	target, ok := c.session.Target()
	c.mu.Unlock()
	if !ok {
		return ErrNoResults
	}

	msg := protocol.NewMessage(protocol.EventFocusContextItem)
	msg.ExecutionID = target.ExecutionID
	return c.sendToCorrelated(ctx, target, msg)
}

func (c *Controller) sendToCorrelated(ctx context.Context, target ExecutionContext, msg protocol.Message) error {
	frameID := target.FrameID
	if err := c.env.SendMessage(ctx, target.TabID, &frameID, msg); err != nil {
		c.logger.Warn("Focus request failed.", zap.String("event", msg.Event), zap.Int("frame_id", frameID), zap.Error(err))
		return &faults.TransportError{Event: msg.Event, TabID: target.TabID, FrameID: &frameID, Err: err}
	}
	return nil
}

// DiscoverFrames repopulates the frame list from the frames that answer.
func (c *Controller) DiscoverFrames(ctx context.Context) error {
	err := c.resolver.Discover(ctx)

	c.mu.Lock()
	c.view.SetFrameOptions(c.resolver.Options())
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Frame discovery failed.", zap.Error(err))
	}
	return err
}

// FrameOptions returns the discovered frame list, Manual entry first.
func (c *Controller) FrameOptions() []frames.Option {
	return c.resolver.Options()
}

// PreviousPage, NextPage and MovePage navigate the result pages.
func (c *Controller) PreviousPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.Previous()
}

func (c *Controller) NextPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.Next()
}

func (c *Controller) MovePage(input string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.Move(input)
}

// PageIndex is the current page index.
func (c *Controller) PageIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.Index()
}

// UI returns a copy of the live selections.
func (c *Controller) UI() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ui
}

// UpdateUI changes the live selections. Sections whose toggle changed get
// their visibility applied.
func (c *Controller) UpdateUI(fn func(*UIState)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.ui.visibility()
	fn(&c.ui)
	after := c.ui.visibility()
	for _, s := range sectionOrder {
		if before[s] != after[s] {
			c.view.SetVisible(s, after[s])
		}
	}
}

// Current returns the correlated execution context.
func (c *Controller) Current() ExecutionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Current()
}

// -- Waiting for responses --

// Generation counts display updates: results shown or errors reported.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// AwaitDisplay blocks until the display changed after generation since.
func (c *Controller) AwaitDisplay(ctx context.Context, since uint64) error {
	for {
		c.mu.Lock()
		gen, changed := c.generation, c.changed
		c.mu.Unlock()
		if gen > since {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ExpectResponse waits for the display to change after since. When the
// response timeout passes first, the timeout is reported like any failed
// send and faults.ErrResponseTimeout is returned. A late response is still
// displayed when it arrives.
func (c *Controller) ExpectResponse(ctx context.Context, since uint64) error {
	waitCtx := ctx
	if c.opts.ResponseTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.ResponseTimeout)
		defer cancel()
	}

	err := c.AwaitDisplay(waitCtx, since)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	target := c.lastTarget
	c.mu.Unlock()
	c.logger.Warn("Frame did not respond before timeout.",
		zap.String("frame_id", target.String()),
		zap.Duration("timeout", c.opts.ResponseTimeout))
	c.showError(TimeoutMessage, target.String())
	return faults.ErrResponseTimeout
}

// -- Internals --

func (c *Controller) sendToSpecifiedFrame(ctx context.Context, msg protocol.Message) error {
	c.mu.Lock()
	sel := c.ui.FrameSelection()
	c.mu.Unlock()
	return c.sendExpectingResults(ctx, sel, msg)
}

func (c *Controller) sendExpectingResults(ctx context.Context, sel frames.Selection, msg protocol.Message) error {
	target, err := c.dispatcher.SendToSpecifiedFrame(ctx, sel, msg)
	c.setLastTarget(target)
	return err
}

func (c *Controller) setLastTarget(t frames.Target) {
	c.mu.Lock()
	c.lastTarget = t
	c.mu.Unlock()
}

// showError clears everything derived from the last response and shows
// message with the frame id that was attempted.
func (c *Controller) showError(message, frameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.Clear()
	c.view.SetStatus(message, frameID)
	c.view.SetCount(0)
	c.view.RenderContext(nil)
	c.pager.Reset()
	c.bumpLocked()
}

func (c *Controller) applyVisibilityLocked() {
	vis := c.ui.visibility()
	for _, s := range sectionOrder {
		c.view.SetVisible(s, vis[s])
	}
}

func (c *Controller) bumpLocked() {
	c.generation++
	close(c.changed)
	c.changed = make(chan struct{})
}
