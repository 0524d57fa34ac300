package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newStyleCmd() *cobra.Command {
	var (
		sel *selectionFlags
		all bool
	)
	cmd := &cobra.Command{
		Use:       "style <set|reset>",
		Short:     "Highlight the results in the page, or remove the highlight",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"set", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPopup(cmd, sel, func(ctx context.Context, s *popupSession) error {
				if args[0] == "reset" {
					return s.ctrl.ResetStyle(ctx, all)
				}
				return s.ctrl.SetStyle(ctx, all)
			})
		},
	}
	sel = addSelectionFlags(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "apply to every frame of the tab")
	return cmd
}
