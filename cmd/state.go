package cmd

import (
	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	var sel *selectionFlags
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the session selections, after applying any flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := openPopup(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := s.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}()

			s.ctrl.UpdateUI(sel.apply(cmd))
			return writeJSON(cmd.OutOrStdout(), s.ctrl.Snapshot())
		},
	}
	sel = addSelectionFlags(cmd)
	return cmd
}
