package popup

import (
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

const invalidFrameID = -1

// ExecutionContext identifies whose results are on screen.
type ExecutionContext struct {
	TabID       string
	FrameID     int
	ExecutionID protocol.ExecutionID
}

// Valid reports whether the context points at a real frame.
func (e ExecutionContext) Valid() bool {
	return e.TabID != "" && e.FrameID >= 0
}

// SessionContext holds the correlated execution. The most recent response
// always wins, whichever request it answers.
type SessionContext struct {
	current ExecutionContext
}

// NewSessionContext returns a context with nothing displayed.
func NewSessionContext() *SessionContext {
	s := &SessionContext{}
	s.Clear()
	return s
}

// Adopt makes the sender of a results message the current context.
func (s *SessionContext) Adopt(sender protocol.Sender, id protocol.ExecutionID) ExecutionContext {
	s.current = ExecutionContext{TabID: sender.TabID, FrameID: sender.FrameID, ExecutionID: id}
	return s.current
}

// Clear forgets the current context.
func (s *SessionContext) Clear() {
	s.current = ExecutionContext{FrameID: invalidFrameID, ExecutionID: protocol.NoExecution}
}

// Current returns the context as is, valid or not.
func (s *SessionContext) Current() ExecutionContext {
	return s.current
}

// Target returns the context follow-up actions must address, and false when
// no results are displayed.
func (s *SessionContext) Target() (ExecutionContext, bool) {
	return s.current, s.current.Valid()
}
