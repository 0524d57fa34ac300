package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newPageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page <prev|next|N>",
		Short: "Move between result pages",
		Long: `Move to the previous or next page of the displayed results, or to page N
(1-based). A page number that is not a number moves to the first page;
one past either end is clamped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPopup(cmd, nil, func(_ context.Context, s *popupSession) error {
				switch args[0] {
				case "prev", "previous":
					s.ctrl.PreviousPage()
				case "next":
					s.ctrl.NextPage()
				default:
					s.ctrl.MovePage(args[0])
				}
				return nil
			})
		},
	}
}
