package protocol

import (
	"bytes"
	"strconv"

	json "github.com/json-iterator/go"
)

// QuerySpec describes one query to evaluate in a frame.
type QuerySpec struct {
	Expression string  `json:"expression"`
	Method     string  `json:"method"`
	ResultType string  `json:"resultType"`
	Resolver   *string `json:"resolver"`
}

// ExecuteRequest is the payload of an execute message. Context is set only when
// the context sub-query is enabled; both specs share the same resolver.
type ExecuteRequest struct {
	Main             QuerySpec
	Context          *QuerySpec
	FrameDesignation *string
}

// Message converts the request into its wire message.
func (r ExecuteRequest) Message() Message {
	main := r.Main
	return Message{
		Event:            EventExecute,
		Main:             &main,
		Context:          r.Context,
		FrameDesignation: r.FrameDesignation,
	}
}

// Message is the wire shape of every outbound message.
type Message struct {
	Event            string        `json:"event"`
	Main             *QuerySpec    `json:"main,omitempty"`
	Context          *QuerySpec    `json:"context,omitempty"`
	FrameDesignation *string       `json:"frameDesignation,omitempty"`
	ExecutionID      ExecutionID   `json:"executionId,omitempty"`
	Index            *int          `json:"index,omitempty"`
	State            *SessionState `json:"state,omitempty"`
}

// NewMessage returns a payload-less message for event.
func NewMessage(event string) Message {
	return Message{Event: event}
}

// Encode serializes the message.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// ExecutionID is an opaque token minted by the responding frame. The
// controller never generates one; it only stores and compares them. The raw
// JSON text is kept so numbers and strings both round-trip unchanged.
type ExecutionID string

// NoExecution is the invalid execution id.
const NoExecution ExecutionID = ""

// Valid reports whether the id refers to a real execution.
func (id ExecutionID) Valid() bool {
	return id != NoExecution && id != "null"
}

// String returns a display form of the id.
func (id ExecutionID) String() string {
	if !id.Valid() {
		return "NaN"
	}
	if s, err := strconv.Unquote(string(id)); err == nil {
		return s
	}
	return string(id)
}

// MarshalJSON writes the raw token back out.
func (id ExecutionID) MarshalJSON() ([]byte, error) {
	if !id.Valid() {
		return []byte("null"), nil
	}
	return []byte(id), nil
}

// UnmarshalJSON keeps the raw token text.
func (id *ExecutionID) UnmarshalJSON(data []byte) error {
	*id = ExecutionID(bytes.TrimSpace(data))
	return nil
}

// ResultItem is one record produced by the evaluation collaborator. Its
// position in the ResultSet is its stable index for focus requests.
type ResultItem struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	TextContent string `json:"textContent,omitempty"`
}

// SessionState is the full popup selection snapshot persisted between popup
// lifetimes. SpecifiedFrameID is nil when the selected frame was unresolved.
type SessionState struct {
	HelpCheckboxChecked             bool   `json:"helpCheckboxChecked"`
	MainWayIndex                    int    `json:"mainWayIndex"`
	MainExpressionValue             string `json:"mainExpressionValue"`
	ContextCheckboxChecked          bool   `json:"contextCheckboxChecked"`
	ContextWayIndex                 int    `json:"contextWayIndex"`
	ContextExpressionValue          string `json:"contextExpressionValue"`
	ResolverCheckboxChecked         bool   `json:"resolverCheckboxChecked"`
	ResolverExpressionValue         string `json:"resolverExpressionValue"`
	FrameDesignationCheckboxChecked bool   `json:"frameDesignationCheckboxChecked"`
	FrameDesignationExpressionValue string `json:"frameDesignationExpressionValue"`
	FrameIDCheckboxChecked          bool   `json:"frameIdCheckboxChecked"`
	SpecifiedFrameID                *int   `json:"specifiedFrameId"`
	DetailsPageIndex                int    `json:"detailsPageIndex"`
}
