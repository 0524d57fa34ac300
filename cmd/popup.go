package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/background"
	"github.com/xkilldash9x/tryxpath-cli/internal/browser"
	"github.com/xkilldash9x/tryxpath-cli/internal/bus"
	"github.com/xkilldash9x/tryxpath-cli/internal/config"
	"github.com/xkilldash9x/tryxpath-cli/internal/observability"
	"github.com/xkilldash9x/tryxpath-cli/internal/popup"
	"github.com/xkilldash9x/tryxpath-cli/internal/render"
	"github.com/xkilldash9x/tryxpath-cli/internal/router"
	"github.com/xkilldash9x/tryxpath-cli/internal/store"
)

const (
	busBufferSize   = 64
	teardownTimeout = 10 * time.Second
)

// environment is the browser side of one popup lifetime.
type environment interface {
	popup.Environment
	Close()
}

// openEnvironment is swapped out by tests.
var openEnvironment = func(ctx context.Context, cfg config.BrowserConfig, out browser.Poster, logger *zap.Logger) (environment, error) {
	return browser.Open(ctx, cfg, out, logger)
}

// openStore is swapped out by tests.
var openStore = store.Open

// popupSession is one popup lifetime: opened by a command, torn down when
// the command returns.
type popupSession struct {
	ctrl    *popup.Controller
	view    *render.TextView
	logger  *zap.Logger
	timeout time.Duration

	env     environment
	store   store.Store
	bus     *bus.Bus
	stop    context.CancelFunc
	stopped chan struct{}
}

// openPopup wires the bus, router, browser, store, background and controller,
// replays the stored session and waits for its results to settle.
func openPopup(cmd *cobra.Command) (*popupSession, error) {
	ctx := cmd.Context()
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := observability.ForPopup(observability.GetLogger(), observability.NewPopupID())

	popupCfg := cfg.Popup()
	s := &popupSession{logger: logger, timeout: popupCfg.ResponseTimeout, stopped: make(chan struct{})}
	s.bus = bus.New(logger, busBufferSize)
	r := router.New(logger)

	if s.env, err = openEnvironment(ctx, cfg.Browser(), s.bus, logger); err != nil {
		s.bus.Shutdown()
		return nil, fmt.Errorf("opening browser: %w", err)
	}
	if s.store, err = openStore(ctx, cfg.Store(), logger); err != nil {
		s.env.Close()
		s.bus.Shutdown()
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	s.view = render.NewTextView("")
	s.ctrl = popup.New(s.env, background.New(s.store, popupCfg.CSS, s.bus, logger), s.view, popup.Options{
		ResponseTimeout: popupCfg.ResponseTimeout,
		Defaults: popup.Visibility{
			Help:             popupCfg.HelpVisible,
			Context:          popupCfg.ContextVisible,
			Resolver:         popupCfg.ResolverVisible,
			FrameDesignation: popupCfg.FrameDesignationVisible,
			FrameID:          popupCfg.FrameIDVisible,
		},
	}, logger)
	if err := s.ctrl.Register(r); err != nil {
		s.release()
		return nil, err
	}

	serve := r.Listen(s.bus)
	serveCtx, stop := context.WithCancel(ctx)
	s.stop = stop
	go func() {
		defer close(s.stopped)
		serve(serveCtx)
	}()

	since := s.ctrl.Generation()
	if err := s.ctrl.Start(ctx); err != nil {
		logger.Warn("Starting without a stored session.", zap.Error(err))
	}
	select {
	case <-s.ctrl.Ready():
	case <-ctx.Done():
		// Nothing was restored, so nothing is stored back.
		s.release()
		return nil, ctx.Err()
	}
	s.settle(ctx, since)
	return s, nil
}

// settle gives the replayed session's results a chance to arrive. Nothing
// is reported when they do not.
func (s *popupSession) settle(ctx context.Context, since uint64) {
	waitCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.ctrl.AwaitDisplay(waitCtx, since); err != nil {
		s.logger.Debug("No results replayed for the restored session.", zap.Error(err))
	}
}

// expect runs action and waits for the frame's results.
func (s *popupSession) expect(ctx context.Context, action func(context.Context) error) error {
	since := s.ctrl.Generation()
	if err := action(ctx); err != nil {
		return err
	}
	return s.ctrl.ExpectResponse(ctx, since)
}

// Close persists the session and releases everything openPopup acquired.
func (s *popupSession) Close() error {
	// Persist even when the command was interrupted.
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	err := s.ctrl.Teardown(ctx)
	s.release()
	return err
}

func (s *popupSession) release() {
	if s.stop != nil {
		s.stop()
		<-s.stopped
	}
	s.bus.Shutdown()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("Closing session store failed.", zap.Error(err))
	}
	s.env.Close()
}

// print writes the popup as text or, with --json, as a snapshot.
func (s *popupSession) print(cmd *cobra.Command) error {
	return printView(cmd.OutOrStdout(), s.view, jsonOutput(cmd))
}

func printView(w io.Writer, view *render.TextView, asJSON bool) error {
	if !asJSON {
		return view.Write(w)
	}
	return writeJSON(w, view.Snapshot())
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func jsonOutput(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

// withPopup runs fn inside one popup lifetime, applying the selection flags
// first. The popup is printed and persisted even when fn fails.
func withPopup(cmd *cobra.Command, sel *selectionFlags, fn func(ctx context.Context, s *popupSession) error) (err error) {
	s, err := openPopup(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if sel != nil {
		s.ctrl.UpdateUI(sel.apply(cmd))
	}
	runErr := fn(cmd.Context(), s)
	if printErr := s.print(cmd); printErr != nil && runErr == nil {
		runErr = printErr
	}
	return runErr
}
