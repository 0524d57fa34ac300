package popup

import (
	"strconv"

	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// Visibility holds the initial state of every section toggle.
type Visibility struct {
	Help             bool
	Context          bool
	Resolver         bool
	FrameDesignation bool
	FrameID          bool
}

// UIState is every live user selection of the popup.
type UIState struct {
	HelpVisible bool

	MainWayIndex   int
	MainExpression string

	ContextEnabled    bool
	ContextWayIndex   int
	ContextExpression string

	ResolverEnabled    bool
	ResolverExpression string

	FrameDesignationEnabled    bool
	FrameDesignationExpression string

	FrameIDEnabled bool
	// FrameChoice is the selected frame list entry, frames.ManualEntry or a
	// discovered frame id.
	FrameChoice   string
	ManualFrameID string
}

// NewUIState returns the selections of a fresh popup.
func NewUIState(v Visibility) UIState {
	return UIState{
		HelpVisible:             v.Help,
		ContextEnabled:          v.Context,
		ResolverEnabled:         v.Resolver,
		FrameDesignationEnabled: v.FrameDesignation,
		FrameIDEnabled:          v.FrameID,
		FrameChoice:             frames.ManualEntry,
	}
}

// FrameSelection extracts the frame-id controls.
func (u UIState) FrameSelection() frames.Selection {
	return frames.Selection{
		Enabled:     u.FrameIDEnabled,
		Choice:      u.FrameChoice,
		ManualInput: u.ManualFrameID,
	}
}

func (u UIState) visibility() map[Section]bool {
	return map[Section]bool{
		SectionHelp:             u.HelpVisible,
		SectionContext:          u.ContextEnabled,
		SectionResolver:         u.ResolverEnabled,
		SectionFrameDesignation: u.FrameDesignationEnabled,
		SectionFrameID:          u.FrameIDEnabled,
	}
}

// sectionOrder is the order visibility effects are replayed in.
var sectionOrder = []Section{SectionHelp, SectionContext, SectionResolver, SectionFrameDesignation, SectionFrameID}

// SessionStateStore converts between live selections and the persisted
// snapshot.
type SessionStateStore struct {
	resolver *frames.Resolver
}

// NewSessionStateStore creates a store resolving the snapshot frame id with
// resolver.
func NewSessionStateStore(resolver *frames.Resolver) *SessionStateStore {
	return &SessionStateStore{resolver: resolver}
}

// Snapshot captures ui and the current page index.
func (s *SessionStateStore) Snapshot(ui UIState, pageIndex int) protocol.SessionState {
	return protocol.SessionState{
		HelpCheckboxChecked:             ui.HelpVisible,
		MainWayIndex:                    ui.MainWayIndex,
		MainExpressionValue:             ui.MainExpression,
		ContextCheckboxChecked:          ui.ContextEnabled,
		ContextWayIndex:                 ui.ContextWayIndex,
		ContextExpressionValue:          ui.ContextExpression,
		ResolverCheckboxChecked:         ui.ResolverEnabled,
		ResolverExpressionValue:         ui.ResolverExpression,
		FrameDesignationCheckboxChecked: ui.FrameDesignationEnabled,
		FrameDesignationExpressionValue: ui.FrameDesignationExpression,
		FrameIDCheckboxChecked:          ui.FrameIDEnabled,
		SpecifiedFrameID:                s.resolver.Resolve(ui.FrameSelection()).Ptr(),
		DetailsPageIndex:                pageIndex,
	}
}

// Restore replays state into ui and returns the page index to restore. A nil
// state leaves ui untouched and reports ok as false.
func (s *SessionStateStore) Restore(ui *UIState, state *protocol.SessionState) (pageIndex int, ok bool) {
	if state == nil {
		return 0, false
	}
	ui.HelpVisible = state.HelpCheckboxChecked
	ui.MainWayIndex = state.MainWayIndex
	ui.MainExpression = state.MainExpressionValue
	ui.ContextEnabled = state.ContextCheckboxChecked
	ui.ContextWayIndex = state.ContextWayIndex
	ui.ContextExpression = state.ContextExpressionValue
	ui.ResolverEnabled = state.ResolverCheckboxChecked
	ui.ResolverExpression = state.ResolverExpressionValue
	ui.FrameDesignationEnabled = state.FrameDesignationCheckboxChecked
	ui.FrameDesignationExpression = state.FrameDesignationExpressionValue
	ui.FrameIDEnabled = state.FrameIDCheckboxChecked

	// The frame list only holds the Manual entry after startup, so the
	// resolved frame id goes back into the manual input.
	ui.FrameChoice = frames.ManualEntry
	if state.SpecifiedFrameID != nil {
		ui.ManualFrameID = strconv.Itoa(*state.SpecifiedFrameID)
	} else {
		ui.ManualFrameID = "NaN"
	}
	return state.DetailsPageIndex, true
}
