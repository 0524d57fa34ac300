package popup

import (
	"fmt"

	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// Way is one entry of the query method selector.
type Way struct {
	Label      string
	Method     string
	ResultType string
}

// Ways is the fixed method catalogue, addressed by index.
var Ways = []Way{
	{Label: "evaluate (ANY_TYPE)", Method: "evaluate", ResultType: "ANY_TYPE"},
	{Label: "evaluate (ORDERED_NODE_SNAPSHOT_TYPE)", Method: "evaluate", ResultType: "ORDERED_NODE_SNAPSHOT_TYPE"},
	{Label: "evaluate (UNORDERED_NODE_SNAPSHOT_TYPE)", Method: "evaluate", ResultType: "UNORDERED_NODE_SNAPSHOT_TYPE"},
	{Label: "evaluate (FIRST_ORDERED_NODE_TYPE)", Method: "evaluate", ResultType: "FIRST_ORDERED_NODE_TYPE"},
	{Label: "evaluate (STRING_TYPE)", Method: "evaluate", ResultType: "STRING_TYPE"},
	{Label: "evaluate (NUMBER_TYPE)", Method: "evaluate", ResultType: "NUMBER_TYPE"},
	{Label: "evaluate (BOOLEAN_TYPE)", Method: "evaluate", ResultType: "BOOLEAN_TYPE"},
	{Label: "querySelector", Method: "querySelector", ResultType: "FIRST_ORDERED_NODE_TYPE"},
	{Label: "querySelectorAll", Method: "querySelectorAll", ResultType: "ORDERED_NODE_SNAPSHOT_TYPE"},
}

// WayAt returns the catalogue entry at index.
func WayAt(index int) (Way, error) {
	if index < 0 || index >= len(Ways) {
		return Way{}, fmt.Errorf("query method index %d out of range [0, %d)", index, len(Ways))
	}
	return Ways[index], nil
}

// BuildExecuteRequest assembles the execute payload from the live selections.
// The resolver is shared by the main and context queries.
func BuildExecuteRequest(ui UIState) (protocol.ExecuteRequest, error) {
	var resolver *string
	if ui.ResolverEnabled {
		r := ui.ResolverExpression
		resolver = &r
	}

	way, err := WayAt(ui.MainWayIndex)
	if err != nil {
		return protocol.ExecuteRequest{}, fmt.Errorf("main query: %w", err)
	}
	req := protocol.ExecuteRequest{
		Main: protocol.QuerySpec{
			Expression: ui.MainExpression,
			Method:     way.Method,
			ResultType: way.ResultType,
			Resolver:   resolver,
		},
	}

	if ui.ContextEnabled {
		way, err := WayAt(ui.ContextWayIndex)
		if err != nil {
			return protocol.ExecuteRequest{}, fmt.Errorf("context query: %w", err)
		}
		req.Context = &protocol.QuerySpec{
			Expression: ui.ContextExpression,
			Method:     way.Method,
			ResultType: way.ResultType,
			Resolver:   resolver,
		}
	}

	if ui.FrameDesignationEnabled {
		d := ui.FrameDesignationExpression
		req.FrameDesignation = &d
	}
	return req, nil
}
