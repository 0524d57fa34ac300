package popup

import (
	"context"

	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// Environment is the browser side the controller talks to.
type Environment interface {
	frames.ScriptRunner
	// ActiveTab returns the id of the tab queries are sent to.
	ActiveTab(ctx context.Context) (string, error)
	// SendMessage delivers msg to one frame of tabID, or to every frame of it
	// when frameID is nil.
	SendMessage(ctx context.Context, tabID string, frameID *int, msg protocol.Message) error
}

// Background is the persistence and styling collaborator. Its answers come
// back asynchronously as inbound messages.
type Background interface {
	RequestRestoreState(ctx context.Context) error
	RequestInsertStyle(ctx context.Context) error
	StoreState(ctx context.Context, state protocol.SessionState) error
}

// Section is a collapsible part of the popup.
type Section int

const (
	SectionHelp Section = iota
	SectionContext
	SectionResolver
	SectionFrameDesignation
	SectionFrameID
)

var sectionNames = [...]string{"help", "context", "resolver", "frame designation", "frame id"}

func (s Section) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return "unknown"
}

// View is the visible surface. Everything it shows is derived state.
type View interface {
	SetStatus(message, frameID string)
	SetCount(n int)
	// RenderDetails shows one page; begin is the result index of items[0].
	RenderDetails(items []protocol.ResultItem, begin int)
	RenderContext(items []protocol.ResultItem)
	// SetPageNumber shows the 1-based page number.
	SetPageNumber(n int)
	ScrollPosition() (x, y int)
	ScrollTo(x, y int)
	SetVisible(s Section, visible bool)
	InsertStyle(css string)
	SetFrameOptions(opts []frames.Option)
}
