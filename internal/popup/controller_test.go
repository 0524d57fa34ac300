package popup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tryxpath-cli/internal/faults"
	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

func TestBuildExecuteRequest(t *testing.T) {
	t.Run("main only", func(t *testing.T) {
		req, err := BuildExecuteRequest(UIState{MainWayIndex: 0, MainExpression: "//div"})
		require.NoError(t, err)

		want := protocol.ExecuteRequest{
			Main: protocol.QuerySpec{Expression: "//div", Method: "evaluate", ResultType: "ANY_TYPE"},
		}
		if diff := cmp.Diff(want, req); diff != "" {
			t.Errorf("request mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("context, resolver and designation", func(t *testing.T) {
		req, err := BuildExecuteRequest(UIState{
			MainWayIndex: 8, MainExpression: "li",
			ContextEnabled: true, ContextWayIndex: 3, ContextExpression: "//ul",
			ResolverEnabled: true, ResolverExpression: `{"x":"urn:x"}`,
			FrameDesignationEnabled: true, FrameDesignationExpression: "[0]",
		})
		require.NoError(t, err)

		require.NotNil(t, req.Context)
		assert.Equal(t, "querySelectorAll", req.Main.Method)
		assert.Equal(t, "FIRST_ORDERED_NODE_TYPE", req.Context.ResultType)
		require.NotNil(t, req.Main.Resolver)
		assert.Same(t, req.Main.Resolver, req.Context.Resolver, "both queries share one resolver")
		assert.Equal(t, "[0]", *req.FrameDesignation)
	})

	t.Run("out of range way", func(t *testing.T) {
		_, err := BuildExecuteRequest(UIState{MainWayIndex: len(Ways)})
		assert.ErrorContains(t, err, "out of range")
		_, err = BuildExecuteRequest(UIState{ContextEnabled: true, ContextWayIndex: -1})
		assert.ErrorContains(t, err, "context query")
	})
}

func TestExecute_DefaultFrame(t *testing.T) {
	ctx := context.Background()
	env := newHealthyEnv()
	f := newFixture(t, env, Options{})

	f.c.UpdateUI(func(ui *UIState) { ui.MainExpression = "//div" })
	require.NoError(t, f.c.Execute(ctx))

	// 1. The presence check ran in the top frame.
	env.AssertCalled(t, "ExecuteScript", mock.Anything, frames.Script{File: frames.CheckFrameScript, FrameID: 0})

	// 2. The execute went to frame 0 only, without a context query.
	execs := env.sentEvent(protocol.EventExecute)
	require.Len(t, execs, 1)
	require.NotNil(t, execs[0].FrameID)
	assert.Equal(t, 0, *execs[0].FrameID)
	assert.Equal(t, testTab, execs[0].TabID)
	assert.Nil(t, execs[0].Msg.Context)

	raw, err := execs[0].Msg.Encode()
	require.NoError(t, err)
	assert.Equal(t, json.InvalidValue, json.Get(raw, "context").ValueType(), "context must be absent from the wire: %s", raw)
	assert.Equal(t, "//div", json.Get(raw, "main", "expression").ToString())
	assert.Equal(t, json.NilValue, json.Get(raw, "main", "resolver").ValueType())
}

func TestExecute_InitializeBroadcastOnce(t *testing.T) {
	ctx := context.Background()
	env := newHealthyEnv()
	f := newFixture(t, env, Options{})

	require.NoError(t, f.c.Execute(ctx))
	require.NoError(t, f.c.ShowAllResults(ctx))
	require.NoError(t, f.c.Execute(ctx))

	sent := env.sent()
	require.Len(t, sent, 4)
	assert.Equal(t, protocol.EventInitializeBlankWindows, sent[0].Msg.Event, "initialize precedes the first real send")
	assert.Nil(t, sent[0].FrameID, "initialize is broadcast to the whole tab")
	assert.Len(t, env.sentEvent(protocol.EventInitializeBlankWindows), 1)
	assert.True(t, f.c.dispatcher.Initialized())
}

func TestExecute_InjectsIntoUnresponsiveFrame(t *testing.T) {
	ctx := context.Background()
	env := &mockEnv{}
	env.On("ActiveTab", mock.Anything).Return(testTab, nil)
	env.On("ExecuteScript", mock.Anything, frames.Script{File: frames.CheckFrameScript, FrameID: 2}).
		Return([]json.RawMessage{json.RawMessage("false")}, nil).Twice()
	env.On("ExecuteScript", mock.Anything, frames.Script{File: frames.FunctionsScript, FrameID: 2}).
		Return([]json.RawMessage{json.RawMessage("null")}, nil).Once()
	env.On("ExecuteScript", mock.Anything, frames.Script{File: frames.ContentScript, FrameID: 2}).
		Return([]json.RawMessage{json.RawMessage("null")}, nil).Once()
	env.On("ExecuteScript", mock.Anything, frames.Script{File: frames.CheckFrameScript, FrameID: 2}).
		Return([]json.RawMessage{json.RawMessage("true")}, nil).Once()
	env.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t, env, Options{})
	f.c.UpdateUI(func(ui *UIState) {
		ui.FrameIDEnabled = true
		ui.FrameChoice = frames.ManualEntry
		ui.ManualFrameID = "2"
	})

	require.NoError(t, f.c.Execute(ctx))
	env.AssertExpectations(t)

	execs := env.sentEvent(protocol.EventExecute)
	require.Len(t, execs, 1)
	assert.Equal(t, 2, *execs[0].FrameID)
}

func TestExecute_UnresolvedManualFrame(t *testing.T) {
	ctx := context.Background()
	env := newHealthyEnv()
	f := newFixture(t, env, Options{})
	f.c.UpdateUI(func(ui *UIState) {
		ui.FrameIDEnabled = true
		ui.FrameChoice = frames.ManualEntry
		ui.ManualFrameID = "abc"
	})

	err := f.c.Execute(ctx)

	var resErr *faults.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Empty(t, env.sent(), "nothing is sent to an unresolved frame")
	env.AssertNotCalled(t, "ExecuteScript", mock.Anything, mock.Anything)
	assert.Equal(t, ErrorMessage, f.view.message)
	assert.Equal(t, "NaN", f.view.frameID)
}

func TestSendFailure_ClearsDisplayedState(t *testing.T) {
	ctx := context.Background()
	env := &mockEnv{}
	env.On("ActiveTab", mock.Anything).Return(testTab, nil)
	env.On("ExecuteScript", mock.Anything, mock.Anything).Return([]json.RawMessage{json.RawMessage("true")}, nil)
	env.On("SendMessage", mock.Anything, testTab, (*int)(nil), mock.Anything).Return(nil)
	env.On("SendMessage", mock.Anything, testTab, mock.Anything, mock.Anything).Return(errors.New("frame detached"))

	f := newFixture(t, env, Options{})

	// 1. Results are on screen.
	f.deliver(t, protocol.Sender{TabID: testTab, FrameID: 0}, resultsPayload("1", 70))
	f.deliver(t, protocol.Sender{TabID: testTab, FrameID: 0}, `{"event":"showResultsInPopup","executionId":2,"message":"ok","main":{"itemDetails":[]},"context":{"itemDetail":{"type":"Node"}}}`)
	f.deliver(t, protocol.Sender{TabID: testTab, FrameID: 0}, resultsPayload("3", 70))
	f.c.NextPage()
	require.True(t, f.c.Current().Valid())
	require.Len(t, f.view.context, 1)

	// 2. The next send fails.
	err := f.c.Execute(ctx)
	var tErr *faults.TransportError
	require.ErrorAs(t, err, &tErr)

	// 3. Nothing from the old response survives.
	assert.False(t, f.c.Current().Valid())
	assert.Equal(t, ErrorMessage, f.view.message)
	assert.Equal(t, "0", f.view.frameID)
	assert.Zero(t, f.view.count)
	assert.Empty(t, f.view.details)
	assert.Empty(t, f.view.context)
	assert.Equal(t, 0, f.c.PageIndex())
	assert.ErrorIs(t, f.c.FocusItem(ctx, 0), ErrNoResults)
}

func TestShowResults_LastResponseWins(t *testing.T) {
	ctx := context.Background()
	env := newHealthyEnv()
	f := newFixture(t, env, Options{})

	// 1. Dispatch to frame 1.
	f.c.UpdateUI(func(ui *UIState) {
		ui.FrameIDEnabled = true
		ui.FrameChoice = "1"
	})
	require.NoError(t, f.c.Execute(ctx))
	require.Equal(t, 1, *env.sentEvent(protocol.EventExecute)[0].FrameID)

	// 2. The answer comes from frame 2 of another tab.
	f.deliver(t, protocol.Sender{TabID: "T9", FrameID: 2}, resultsPayload(`"exec-b"`, 3))

	current := f.c.Current()
	assert.Equal(t, "T9", current.TabID)
	assert.Equal(t, 2, current.FrameID)
	assert.Equal(t, "exec-b", current.ExecutionID.String())
	assert.Equal(t, "2", f.view.frameID)
	assert.Equal(t, 3, f.view.count)

	// 3. Focus requests follow the response, not the dispatch.
	require.NoError(t, f.c.FocusItem(ctx, 1))
	require.NoError(t, f.c.FocusContextItem(ctx))

	focus := env.sentEvent(protocol.EventFocusItem)
	require.Len(t, focus, 1)
	assert.Equal(t, "T9", focus[0].TabID)
	assert.Equal(t, 2, *focus[0].FrameID)
	assert.Equal(t, 1, *focus[0].Msg.Index)
	raw, err := focus[0].Msg.Encode()
	require.NoError(t, err)
	assert.Equal(t, "exec-b", json.Get(raw, "executionId").ToString())

	ctxFocus := env.sentEvent(protocol.EventFocusContextItem)
	require.Len(t, ctxFocus, 1)
	assert.Equal(t, 2, *ctxFocus[0].FrameID)
	assert.Nil(t, ctxFocus[0].Msg.Index)

	// 4. A stale response still overwrites.
	f.deliver(t, protocol.Sender{TabID: "T1", FrameID: 1}, resultsPayload("7", 1))
	assert.Equal(t, 1, f.c.Current().FrameID)

	assert.Error(t, f.c.FocusItem(ctx, 5), "index outside the result set")
}

func TestDiscovery_NoDuplicates(t *testing.T) {
	ctx := context.Background()
	env := newHealthyEnv()
	f := newFixture(t, env, Options{})

	for round := 0; round < 2; round++ {
		require.NoError(t, f.c.DiscoverFrames(ctx))
		assert.Len(t, f.view.options, 1, "list holds only Manual right after the fan-out")
		f.deliver(t, protocol.Sender{TabID: testTab, FrameID: 0}, `{"event":"addFrameId"}`)
		f.deliver(t, protocol.Sender{TabID: testTab, FrameID: 1}, `{"event":"addFrameId"}`)
	}

	want := []frames.Option{
		{Label: "Manual", FrameID: frames.ManualEntry},
		{Label: "0", FrameID: "0"},
		{Label: "1", FrameID: "1"},
	}
	assert.Equal(t, want, f.view.options)
	assert.Equal(t, want, f.c.FrameOptions())
}

func TestStyle(t *testing.T) {
	ctx := context.Background()
	env := newHealthyEnv()
	f := newFixture(t, env, Options{})

	require.NoError(t, f.c.SetStyle(ctx, true))
	require.NoError(t, f.c.ResetStyle(ctx, false))

	set := env.sentEvent(protocol.EventSetStyle)
	require.Len(t, set, 1)
	assert.Nil(t, set[0].FrameID, "set all targets every frame")

	reset := env.sentEvent(protocol.EventResetStyle)
	require.Len(t, reset, 1)
	assert.Equal(t, 0, *reset[0].FrameID)
}

func TestFocusDesignatedFrame(t *testing.T) {
	ctx := context.Background()
	env := newHealthyEnv()
	f := newFixture(t, env, Options{})
	f.c.UpdateUI(func(ui *UIState) { ui.FrameDesignationExpression = "[1][0]" })

	require.NoError(t, f.c.FocusDesignatedFrame(ctx))
	require.NoError(t, f.c.FocusFrame(ctx))

	focus := env.sentEvent(protocol.EventFocusFrame)
	require.Len(t, focus, 2)
	assert.Equal(t, "[1][0]", *focus[0].Msg.FrameDesignation)
	assert.Nil(t, focus[1].Msg.FrameDesignation)
}

func TestInsertStyle(t *testing.T) {
	f := newFixture(t, newHealthyEnv(), Options{})
	f.deliver(t, protocol.Sender{}, `{"event":"insertStyleToPopup","css":"td { color: red; }"}`)
	assert.Equal(t, []string{"td { color: red; }"}, f.view.css)
}

func TestUpdateUI_AppliesChangedVisibility(t *testing.T) {
	f := newFixture(t, newHealthyEnv(), Options{})

	f.c.UpdateUI(func(ui *UIState) {
		ui.ContextEnabled = true
		ui.MainExpression = "//a"
	})

	assert.Equal(t, []Section{SectionContext}, f.view.visibleCalls)
	assert.True(t, f.view.visible[SectionContext])
}

func TestRestore_NullState(t *testing.T) {
	ctx := context.Background()
	env := newHealthyEnv()
	defaults := Visibility{Help: true, Resolver: true}
	f := newFixture(t, env, Options{Defaults: defaults})

	require.NoError(t, f.c.Start(ctx))
	assert.Equal(t, 1, f.bg.styleCalls)
	assert.Equal(t, 1, f.bg.restoreCalls)

	f.view.visibleCalls = nil
	f.deliver(t, protocol.Sender{}, `{"event":"restorePopupState","state":null}`)

	select {
	case <-f.c.Ready():
	default:
		t.Fatal("controller not ready after restore")
	}

	// 1. Every toggle is at its default and every visibility effect replayed.
	assert.Equal(t, map[Section]bool{
		SectionHelp: true, SectionContext: false, SectionResolver: true,
		SectionFrameDesignation: false, SectionFrameID: false,
	}, f.view.visible)
	assert.Equal(t, sectionOrder, f.view.visibleCalls)

	// 2. No expressions were replayed.
	if diff := cmp.Diff(NewUIState(defaults), f.c.UI()); diff != "" {
		t.Errorf("ui changed by a null restore (-want +got):\n%s", diff)
	}

	// 3. Previous results were requested from the top frame.
	req := env.sentEvent(protocol.EventRequestShowResultsInPopup)
	require.Len(t, req, 1)
	assert.Equal(t, 0, *req[0].FrameID)
}

func TestStart_RestoreRequestFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newHealthyEnv(), Options{})
	f.bg.restoreErr = errors.New("background gone")

	err := f.c.Start(ctx)

	var pErr *faults.PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "restore", pErr.Op)
	<-f.c.Ready()
}

func TestSession_TeardownAndRestart(t *testing.T) {
	ctx := context.Background()

	// 1. First popup lifetime: frame 3, 120 results, page index 2.
	env1 := newHealthyEnv()
	first := newFixture(t, env1, Options{})
	first.c.UpdateUI(func(ui *UIState) {
		ui.MainWayIndex = 7
		ui.MainExpression = "div.item"
		ui.HelpVisible = true
		ui.FrameIDEnabled = true
		ui.FrameChoice = frames.ManualEntry
		ui.ManualFrameID = "3"
	})
	require.NoError(t, first.c.Execute(ctx))
	first.deliver(t, protocol.Sender{TabID: testTab, FrameID: 3}, resultsPayload("11", 120))
	first.c.MovePage("3")
	require.Equal(t, 2, first.c.PageIndex())

	require.NoError(t, first.c.Teardown(ctx))
	require.Len(t, first.bg.stored, 1)
	stored := first.bg.stored[0]
	assert.Equal(t, 2, stored.DetailsPageIndex)
	require.NotNil(t, stored.SpecifiedFrameID)
	assert.Equal(t, 3, *stored.SpecifiedFrameID)

	// 2. The snapshot travels as JSON.
	payload, err := protocol.Message{Event: protocol.EventRestorePopupState, State: &stored}.Encode()
	require.NoError(t, err)

	// 3. Second popup lifetime.
	env2 := newHealthyEnv()
	second := newFixture(t, env2, Options{})
	require.NoError(t, second.c.Start(ctx))
	second.deliver(t, protocol.Sender{}, string(payload))
	<-second.c.Ready()

	assert.Equal(t, 2, second.c.PageIndex(), "page index restored before any results arrive")
	ui := second.c.UI()
	assert.Equal(t, "div.item", ui.MainExpression)
	assert.Equal(t, 7, ui.MainWayIndex)
	assert.True(t, ui.HelpVisible)
	assert.Equal(t, "3", ui.ManualFrameID)
	assert.True(t, second.view.visible[SectionFrameID])

	req := env2.sentEvent(protocol.EventRequestShowResultsInPopup)
	require.Len(t, req, 1)
	assert.Equal(t, 3, *req[0].FrameID, "previous results requested from the restored frame")

	// 4. The resent results open on the restored page.
	second.deliver(t, protocol.Sender{TabID: testTab, FrameID: 3}, resultsPayload("11", 120))
	assert.Equal(t, 2, second.c.PageIndex())
	assert.Equal(t, 100, second.view.begin)
	assert.Equal(t, 3, second.view.pageNumber)
}

func TestRestore_UnresolvedFrameIsNaN(t *testing.T) {
	env := newHealthyEnv()
	f := newFixture(t, env, Options{})

	f.deliver(t, protocol.Sender{}, `{"event":"restorePopupState","state":{"frameIdCheckboxChecked":true,"specifiedFrameId":null,"detailsPageIndex":0}}`)
	<-f.c.Ready()

	assert.Equal(t, "NaN", f.c.UI().ManualFrameID)
	assert.Empty(t, env.sentEvent(protocol.EventRequestShowResultsInPopup), "unresolved frame is never sent to")
	assert.Equal(t, "NaN", f.view.frameID)
	assert.Nil(t, f.c.Snapshot().SpecifiedFrameID)
}

func TestExpectResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("times out without a response", func(t *testing.T) {
		env := newHealthyEnv()
		f := newFixture(t, env, Options{ResponseTimeout: 20 * time.Millisecond})
		f.deliver(t, protocol.Sender{TabID: testTab, FrameID: 0}, resultsPayload("1", 5))

		since := f.c.Generation()
		require.NoError(t, f.c.Execute(ctx))
		err := f.c.ExpectResponse(ctx, since)

		assert.ErrorIs(t, err, faults.ErrResponseTimeout)
		assert.True(t, strings.HasPrefix(f.view.message, "No response"))
		assert.Equal(t, "0", f.view.frameID)
		assert.False(t, f.c.Current().Valid())

		// A late response is still accepted.
		f.deliver(t, protocol.Sender{TabID: testTab, FrameID: 0}, resultsPayload("2", 5))
		assert.Equal(t, 5, f.view.count)
	})

	t.Run("returns once results arrive", func(t *testing.T) {
		env := newHealthyEnv()
		f := newFixture(t, env, Options{ResponseTimeout: time.Second})

		since := f.c.Generation()
		require.NoError(t, f.c.Execute(ctx))
		go func() {
			time.Sleep(10 * time.Millisecond)
			f.router.Dispatch(ctx, protocol.NewEnvelope(protocol.Sender{TabID: testTab}, []byte(resultsPayload("4", 2))))
		}()

		require.NoError(t, f.c.ExpectResponse(ctx, since))
		assert.Equal(t, 2, f.view.count)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		f := newFixture(t, newHealthyEnv(), Options{ResponseTimeout: time.Second})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := f.c.ExpectResponse(cctx, f.c.Generation())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, f.view.message)
	})
}
