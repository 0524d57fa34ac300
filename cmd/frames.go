package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tryxpath-cli/internal/popup"
)

func newFramesCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Discover the frames of the tab that can be targeted",
		Long: `Ask every live frame of the tab to report its id. Every frame the browser
can reach answers, with or without the query capability; it is injected on
first use when a frame is targeted with --frame.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPopup(cmd, nil, func(ctx context.Context, s *popupSession) error {
				s.ctrl.UpdateUI(func(ui *popup.UIState) { ui.FrameIDEnabled = true })
				if err := s.ctrl.DiscoverFrames(ctx); err != nil {
					return err
				}
				// Replies arrive asynchronously; collect them for a while.
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
				if jsonOutput(cmd) {
					return nil
				}
				for _, opt := range s.ctrl.FrameOptions() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", opt.FrameID, opt.Label)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 500*time.Millisecond, "how long to collect frame replies")
	return cmd
}
