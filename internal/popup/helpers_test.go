package popup

import (
	"context"
	"fmt"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
	"github.com/xkilldash9x/tryxpath-cli/internal/router"
)

const testTab = "T1"

// -- Environment mock --

type mockEnv struct {
	mock.Mock
}

func (m *mockEnv) ExecuteScript(ctx context.Context, s frames.Script) ([]json.RawMessage, error) {
	args := m.Called(ctx, s)
	res, _ := args.Get(0).([]json.RawMessage)
	return res, args.Error(1)
}

func (m *mockEnv) ActiveTab(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockEnv) SendMessage(ctx context.Context, tabID string, frameID *int, msg protocol.Message) error {
	args := m.Called(ctx, tabID, frameID, msg)
	return args.Error(0)
}

// sent returns every message passed to SendMessage, in order.
func (m *mockEnv) sent() []sentMessage {
	var out []sentMessage
	for _, call := range m.Calls {
		if call.Method != "SendMessage" {
			continue
		}
		s := sentMessage{TabID: call.Arguments.String(1), Msg: call.Arguments.Get(3).(protocol.Message)}
		if fid, _ := call.Arguments.Get(2).(*int); fid != nil {
			v := *fid
			s.FrameID = &v
		}
		out = append(out, s)
	}
	return out
}

func (m *mockEnv) sentEvent(event string) []sentMessage {
	var out []sentMessage
	for _, s := range m.sent() {
		if s.Msg.Event == event {
			out = append(out, s)
		}
	}
	return out
}

type sentMessage struct {
	TabID   string
	FrameID *int
	Msg     protocol.Message
}

// newHealthyEnv answers every presence check with "present" and accepts every send.
func newHealthyEnv() *mockEnv {
	env := &mockEnv{}
	env.On("ActiveTab", mock.Anything).Return(testTab, nil)
	env.On("ExecuteScript", mock.Anything, mock.MatchedBy(func(s frames.Script) bool {
		return s.File == frames.CheckFrameScript
	})).Return([]json.RawMessage{json.RawMessage("true")}, nil)
	env.On("ExecuteScript", mock.Anything, mock.Anything).Return([]json.RawMessage{json.RawMessage("null")}, nil)
	env.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return env
}

// -- Background fake --

type fakeBackground struct {
	mu           sync.Mutex
	stored       []protocol.SessionState
	restoreCalls int
	styleCalls   int
	restoreErr   error
}

func (b *fakeBackground) RequestRestoreState(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restoreCalls++
	return b.restoreErr
}

func (b *fakeBackground) RequestInsertStyle(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.styleCalls++
	return nil
}

func (b *fakeBackground) StoreState(_ context.Context, s protocol.SessionState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stored = append(b.stored, s)
	return nil
}

// -- View fake --

type fakeView struct {
	mu sync.Mutex

	message, frameID string
	count            int
	details          []protocol.ResultItem
	begin            int
	context          []protocol.ResultItem
	pageNumber       int
	scrollX, scrollY int
	visible          map[Section]bool
	visibleCalls     []Section
	css              []string
	options          []frames.Option
	// events records render and scroll calls in order.
	events []string
}

func newFakeView() *fakeView {
	return &fakeView{visible: make(map[Section]bool)}
}

func (v *fakeView) SetStatus(message, frameID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.message, v.frameID = message, frameID
}

func (v *fakeView) SetCount(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.count = n
}

func (v *fakeView) RenderDetails(items []protocol.ResultItem, begin int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.details, v.begin = items, begin
	// Rendering a table resets the scroll position.
	v.scrollX, v.scrollY = 0, 0
	v.events = append(v.events, "render")
}

func (v *fakeView) RenderContext(items []protocol.ResultItem) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.context = items
}

func (v *fakeView) SetPageNumber(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pageNumber = n
}

func (v *fakeView) ScrollPosition() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, "capture")
	return v.scrollX, v.scrollY
}

func (v *fakeView) ScrollTo(x, y int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollX, v.scrollY = x, y
	v.events = append(v.events, "restore")
}

func (v *fakeView) SetVisible(s Section, visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible[s] = visible
	v.visibleCalls = append(v.visibleCalls, s)
}

func (v *fakeView) InsertStyle(css string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.css = append(v.css, css)
}

func (v *fakeView) SetFrameOptions(opts []frames.Option) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.options = opts
}

// -- Controller fixture --

type fixture struct {
	env    *mockEnv
	bg     *fakeBackground
	view   *fakeView
	router *router.Router
	c      *Controller
}

func newFixture(t *testing.T, env *mockEnv, opts Options) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{env: env, bg: &fakeBackground{}, view: newFakeView(), router: router.New(logger)}
	f.c = New(env, f.bg, f.view, opts, logger)
	require.NoError(t, f.c.Register(f.router))
	return f
}

// deliver feeds a raw inbound message through the router.
func (f *fixture) deliver(t *testing.T, sender protocol.Sender, raw string) {
	t.Helper()
	require.True(t, f.router.Dispatch(context.Background(), protocol.NewEnvelope(sender, []byte(raw))), "no handler ran for %s", raw)
}

func resultsPayload(executionID string, n int) string {
	items := make([]protocol.ResultItem, n)
	for i := range items {
		items[i] = protocol.ResultItem{Type: "Node", Name: "div", Value: fmt.Sprintf("item-%d", i)}
	}
	payload := map[string]interface{}{
		"event":       protocol.EventShowResultsInPopup,
		"executionId": json.RawMessage(executionID),
		"message":     "Success.",
		"main":        map[string]interface{}{"itemDetails": items},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(raw)
}

func intPtr(v int) *int { return &v }
