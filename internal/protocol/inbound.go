package protocol

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// Sender identifies the tab and frame an inbound message came from. The
// transport attaches it; it is never read from the payload.
type Sender struct {
	TabID   string `json:"tabId"`
	FrameID int    `json:"frameId"`
}

// Envelope is an inbound message as delivered by the transport.
type Envelope struct {
	Event  string
	Sender Sender
	Raw    []byte
}

// NewEnvelope builds an envelope from a raw payload, reading the event name
// out of it.
func NewEnvelope(sender Sender, raw []byte) Envelope {
	return Envelope{
		Event:  json.Get(raw, "event").ToString(),
		Sender: sender,
		Raw:    raw,
	}
}

// Inbound is the closed set of messages the controller understands.
type Inbound interface {
	EventName() string
	inbound()
}

// MainResults carries the ordered result items of the main query.
type MainResults struct {
	ItemDetails []ResultItem `json:"itemDetails"`
}

// ContextResult carries the single context item, when a context query ran.
type ContextResult struct {
	ItemDetail *ResultItem `json:"itemDetail"`
}

// ShowResults is the primary results delivery.
type ShowResults struct {
	Sender      Sender         `json:"-"`
	ExecutionID ExecutionID    `json:"executionId"`
	Message     string         `json:"message"`
	Main        MainResults    `json:"main"`
	Context     *ContextResult `json:"context,omitempty"`
}

// RestoreState replays a persisted snapshot. State is nil on first run.
type RestoreState struct {
	State *SessionState `json:"state"`
}

// InsertStyle carries popup-local css text.
type InsertStyle struct {
	CSS string `json:"css"`
}

// FrameReport is a frame answering the discovery fan-out with its own id.
type FrameReport struct {
	Sender Sender `json:"-"`
}

// Unrecognized is any event this controller does not know. It is ignored.
type Unrecognized struct {
	Event string
}

func (*ShowResults) EventName() string  { return EventShowResultsInPopup }
func (*RestoreState) EventName() string { return EventRestorePopupState }
func (*InsertStyle) EventName() string  { return EventInsertStyleToPopup }
func (*FrameReport) EventName() string  { return EventAddFrameID }
func (u *Unrecognized) EventName() string {
	return u.Event
}

func (*ShowResults) inbound()  {}
func (*RestoreState) inbound() {}
func (*InsertStyle) inbound()  {}
func (*FrameReport) inbound()  {}
func (*Unrecognized) inbound() {}

// Decode turns an envelope into its Inbound variant. Unknown event names
// decode to *Unrecognized without error.
func Decode(env Envelope) (Inbound, error) {
	switch env.Event {
	case EventShowResultsInPopup:
		msg := &ShowResults{}
		if err := json.Unmarshal(env.Raw, msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		msg.Sender = env.Sender
		return msg, nil
	case EventRestorePopupState:
		msg := &RestoreState{}
		if err := json.Unmarshal(env.Raw, msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		return msg, nil
	case EventInsertStyleToPopup:
		msg := &InsertStyle{}
		if err := json.Unmarshal(env.Raw, msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		return msg, nil
	case EventAddFrameID:
		return &FrameReport{Sender: env.Sender}, nil
	default:
		return &Unrecognized{Event: env.Event}, nil
	}
}
