package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tryxpath-cli/internal/popup"
)

func newExecCmd() *cobra.Command {
	var sel *selectionFlags
	cmd := &cobra.Command{
		Use:   "exec [expression]",
		Short: "Run the main query in the target frame and show the results",
		Long: `Run the main query (and the context query when enabled) in the target
frame. Without an expression the one from the last session is used.

Ways:
` + waysHelp(),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPopup(cmd, sel, func(ctx context.Context, s *popupSession) error {
				if len(args) == 1 {
					s.ctrl.UpdateUI(func(ui *popup.UIState) { ui.MainExpression = args[0] })
				}
				return s.expect(ctx, s.ctrl.Execute)
			})
		},
	}
	sel = addSelectionFlags(cmd)
	return cmd
}

func waysHelp() string {
	var b strings.Builder
	for i, way := range popup.Ways {
		fmt.Fprintf(&b, "  %d  %s\n", i, way.Label)
	}
	return b.String()
}

func newShowCmd() *cobra.Command {
	var sel *selectionFlags
	cmd := &cobra.Command{
		Use:       "show [previous|all]",
		Short:     "Show the results the target frame holds",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"previous", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPopup(cmd, sel, func(ctx context.Context, s *popupSession) error {
				if len(args) == 1 && args[0] == "all" {
					return s.expect(ctx, s.ctrl.ShowAllResults)
				}
				return s.expect(ctx, s.ctrl.ShowPreviousResults)
			})
		},
	}
	sel = addSelectionFlags(cmd)
	return cmd
}
