package frames

import (
	"context"
	"errors"
	"strconv"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/tryxpath-cli/internal/faults"
)

// Script files, resolved by the ScriptRunner.
const (
	CheckFrameScript = "/scripts/try_xpath_check_frame.js"
	FunctionsScript  = "/scripts/try_xpath_functions.js"
	ContentScript    = "/scripts/try_xpath_content.js"
)

// injectionOrder lists the capability modules, utilities first.
var injectionOrder = []string{FunctionsScript, ContentScript}

// InjectionStatus is the last known capability state of a frame.
type InjectionStatus int

const (
	StatusUnverified InjectionStatus = iota
	StatusPresent
)

func (s InjectionStatus) String() string {
	if s == StatusPresent {
		return "present"
	}
	return "unverified"
}

// Injector loads the query capability into frames. Whether to load is always
// decided by probing the frame, so a reloaded frame is re-injected and a ready
// one is left alone.
type Injector struct {
	runner ScriptRunner
	logger *zap.Logger
	group  singleflight.Group

	mu     sync.Mutex
	status map[int]InjectionStatus
}

// NewInjector creates an injector running scripts through runner.
func NewInjector(runner ScriptRunner, logger *zap.Logger) *Injector {
	return &Injector{
		runner: runner,
		logger: logger.Named("injector"),
		status: make(map[int]InjectionStatus),
	}
}

// IsPresent runs the side-effect-free presence check in frameID and reports
// whether the capability is already there.
func (i *Injector) IsPresent(ctx context.Context, frameID int) (bool, error) {
	results, err := i.runner.ExecuteScript(ctx, Script{File: CheckFrameScript, FrameID: frameID})
	if err != nil {
		i.setStatus(frameID, StatusUnverified)
		return false, &faults.CapabilityError{FrameID: frameID, Op: "check", Err: err}
	}
	present := len(results) > 0 && json.Get(results[0]).ToBool()
	if present {
		i.setStatus(frameID, StatusPresent)
	} else {
		i.setStatus(frameID, StatusUnverified)
	}
	return present, nil
}

// EnsureReady makes sure frameID carries the capability. Concurrent calls for
// the same frame share one presence check and at most one injection.
func (i *Injector) EnsureReady(ctx context.Context, frameID int) error {
	_, err, shared := i.group.Do(strconv.Itoa(frameID), func() (interface{}, error) {
		return nil, i.ensureReady(ctx, frameID)
	})
	if shared {
		i.logger.Debug("Joined in-flight readiness check.", zap.Int("frame_id", frameID))
	}
	return err
}

func (i *Injector) ensureReady(ctx context.Context, frameID int) error {
	present, err := i.IsPresent(ctx, frameID)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	i.logger.Debug("Injecting query capability.", zap.Int("frame_id", frameID))
	for _, file := range injectionOrder {
		if _, err := i.runner.ExecuteScript(ctx, Script{File: file, FrameID: frameID}); err != nil {
			return &faults.CapabilityError{FrameID: frameID, Op: "inject " + file, Err: err}
		}
	}

	present, err = i.IsPresent(ctx, frameID)
	if err != nil {
		return err
	}
	if !present {
		return &faults.CapabilityError{FrameID: frameID, Op: "inject", Err: errors.New("capability missing after injection")}
	}
	return nil
}

// Status returns the last known state of frameID.
func (i *Injector) Status(frameID int) InjectionStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status[frameID]
}

func (i *Injector) setStatus(frameID int, s InjectionStatus) {
	i.mu.Lock()
	i.status[frameID] = s
	i.mu.Unlock()
}
