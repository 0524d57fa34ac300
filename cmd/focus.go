package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newFocusCmd() *cobra.Command {
	var sel *selectionFlags
	cmd := &cobra.Command{
		Use:   "focus <frame|designated|item N|context>",
		Short: "Focus the target frame, a result item or the context item",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := focusAction(args)
			if err != nil {
				return err
			}
			return withPopup(cmd, sel, action)
		},
	}
	sel = addSelectionFlags(cmd)
	return cmd
}

func focusAction(args []string) (func(context.Context, *popupSession) error, error) {
	switch args[0] {
	case "frame":
		return func(ctx context.Context, s *popupSession) error { return s.ctrl.FocusFrame(ctx) }, nil
	case "designated":
		return func(ctx context.Context, s *popupSession) error { return s.ctrl.FocusDesignatedFrame(ctx) }, nil
	case "context":
		return func(ctx context.Context, s *popupSession) error { return s.ctrl.FocusContextItem(ctx) }, nil
	case "item":
		if len(args) != 2 {
			return nil, fmt.Errorf("focus item needs a result index")
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid result index %q: %w", args[1], err)
		}
		return func(ctx context.Context, s *popupSession) error { return s.ctrl.FocusItem(ctx, index) }, nil
	default:
		return nil, fmt.Errorf("unknown focus target %q", args[0])
	}
}
