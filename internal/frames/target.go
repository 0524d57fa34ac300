// Package frames turns popup frame selections into concrete frame targets and
// makes sure a target frame can run queries before anything is sent to it.
package frames

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/xkilldash9x/tryxpath-cli/internal/faults"
)

// Source records where a frame target came from.
type Source string

const (
	SourceDefault    Source = "default"
	SourceDiscovered Source = "discovered"
	SourceManual     Source = "manual"
)

// ManualEntry is the option value of the sentinel "Manual" entry in the frame
// list. Choosing it reads the frame id from the manual input instead.
const ManualEntry = "manual"

// TopFrame is the frame id of the top-level document.
const TopFrame = 0

// Target is a resolved (or unresolvable) frame.
type Target struct {
	Source   Source
	FrameID  int
	Resolved bool
	// Input is the raw text the frame id was parsed from.
	Input string
}

// Default is the target used when frame targeting is disabled.
func Default() Target {
	return Target{Source: SourceDefault, FrameID: TopFrame, Resolved: true, Input: "0"}
}

// String renders the frame id for display. An unresolved target shows as
// "NaN", never as 0.
func (t Target) String() string {
	if !t.Resolved {
		return "NaN"
	}
	return strconv.Itoa(t.FrameID)
}

// Validate reports a *faults.ResolutionError for unresolved or negative
// targets.
func (t Target) Validate() error {
	if !t.Resolved {
		return &faults.ResolutionError{Input: t.Input, Err: errors.New("not a number")}
	}
	if t.FrameID < 0 {
		return &faults.ResolutionError{Input: t.Input, Err: errors.New("frame ids are non-negative")}
	}
	return nil
}

// Ptr returns the frame id as a pointer, nil when unresolved.
func (t Target) Ptr() *int {
	if !t.Resolved {
		return nil
	}
	id := t.FrameID
	return &id
}

// parseFrameID reads a leading base-10 integer the way a browser's parseInt
// does: leading whitespace and a sign are allowed, trailing garbage is
// ignored, and no digits at all means unresolved.
func parseFrameID(input string) (int, bool) {
	s := strings.TrimLeftFunc(input, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
