// Package faults defines the error taxonomy shared by the popup controller and
// its collaborators. Every failure that reaches a user action boundary is one
// of these types, so the boundary can report the attempted frame uniformly.
package faults

import (
	"errors"
	"fmt"
)

// ErrResponseTimeout is returned when a frame did not answer a request that
// expects results within the configured response timeout.
var ErrResponseTimeout = errors.New("no response from frame before timeout")

// CapabilityError reports a failed presence check or injection in a frame: the frame is
// gone, permission was denied, or a navigation raced the check.
type CapabilityError struct {
	FrameID int
	Op      string
	Err     error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s failed in frame %d: %v", e.Op, e.FrameID, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// ResolutionError reports a frame selection that did not produce a usable
// frame id. Input is the raw text the user entered.
type ResolutionError struct {
	Input string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("frame id %q could not be resolved: %v", e.Input, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TransportError reports a send that failed because the tab or frame went
// away mid-flight, or nothing in the frame was listening.
type TransportError struct {
	Event   string
	TabID   string
	FrameID *int
	Err     error
}

func (e *TransportError) Error() string {
	if e.FrameID == nil {
		return fmt.Sprintf("sending %q to tab %s failed: %v", e.Event, e.TabID, e.Err)
	}
	return fmt.Sprintf("sending %q to tab %s frame %d failed: %v", e.Event, e.TabID, *e.FrameID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError reports a failed snapshot save or restore.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session state %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
