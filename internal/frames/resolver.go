package frames

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Script is one script execution request against a tab. Exactly one of File
// or Code is set. AllFrames fans it out to every frame of the tab, otherwise
// it runs in FrameID only.
type Script struct {
	File      string
	Code      string
	FrameID   int
	AllFrames bool
}

// ScriptRunner executes scripts in the active tab and returns one JSON result
// per frame the script ran in.
type ScriptRunner interface {
	ExecuteScript(ctx context.Context, s Script) ([]json.RawMessage, error)
}

// Selection is the state of the frame-id controls.
type Selection struct {
	Enabled     bool
	Choice      string
	ManualInput string
}

// Option is one entry of the discoverable frame list.
type Option struct {
	Label   string
	FrameID string
}

// discoveryCode makes every frame the fan-out reaches report itself back
// through the frame binding. It does not need the content script.
const discoveryCode = `window.__tryxpathSend && window.__tryxpathSend(JSON.stringify({"event":"addFrameId"}));`

// Resolver maps selections to targets and owns the discovered frame list.
type Resolver struct {
	runner ScriptRunner
	logger *zap.Logger

	mu      sync.Mutex
	options []Option
}

// NewResolver builds a resolver whose list holds only the Manual entry.
func NewResolver(runner ScriptRunner, logger *zap.Logger) *Resolver {
	return &Resolver{
		runner:  runner,
		logger:  logger.Named("frames"),
		options: []Option{manualOption()},
	}
}

func manualOption() Option {
	return Option{Label: "Manual", FrameID: ManualEntry}
}

// Resolve turns sel into a target. Disabled targeting is always the top
// frame. A manual or discovered entry that is not a number yields an
// unresolved target, never frame 0.
func (r *Resolver) Resolve(sel Selection) Target {
	if !sel.Enabled {
		return Default()
	}
	if sel.Choice == ManualEntry || sel.Choice == "" {
		id, ok := parseFrameID(sel.ManualInput)
		return Target{Source: SourceManual, FrameID: id, Resolved: ok, Input: sel.ManualInput}
	}
	id, ok := parseFrameID(sel.Choice)
	return Target{Source: SourceDiscovered, FrameID: id, Resolved: ok, Input: sel.Choice}
}

// Discover clears the list down to the Manual entry and fans the discovery
// request out to every frame of the active tab. Replies arrive later through
// AddDiscovered.
func (r *Resolver) Discover(ctx context.Context) error {
	r.mu.Lock()
	r.options = []Option{manualOption()}
	r.mu.Unlock()

	if _, err := r.runner.ExecuteScript(ctx, Script{Code: discoveryCode, AllFrames: true}); err != nil {
		return fmt.Errorf("frame discovery fan-out: %w", err)
	}
	return nil
}

// AddDiscovered appends a frame that answered discovery.
func (r *Resolver) AddDiscovered(frameID int) {
	id := strconv.Itoa(frameID)
	r.mu.Lock()
	r.options = append(r.options, Option{Label: id, FrameID: id})
	r.mu.Unlock()
	r.logger.Debug("Frame reported for discovery.", zap.Int("frame_id", frameID))
}

// Options returns a copy of the frame list, Manual entry first.
func (r *Resolver) Options() []Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Option(nil), r.options...)
}
