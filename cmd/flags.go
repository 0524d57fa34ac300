package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/popup"
)

// selectionFlags are the popup controls a command line can change. Only
// flags given explicitly override the restored session.
type selectionFlags struct {
	way         int
	context     string
	contextWay  int
	noContext   bool
	resolver    string
	noResolver  bool
	designation string
	noDesignate bool
	frame       string
	noFrame     bool
	help        bool
}

func addSelectionFlags(cmd *cobra.Command) *selectionFlags {
	s := &selectionFlags{}
	f := cmd.Flags()
	f.IntVarP(&s.way, "way", "w", 0, "main query method, an index into the ways list")
	f.StringVar(&s.context, "context", "", "run the main query relative to this context expression")
	f.IntVar(&s.contextWay, "context-way", 0, "context query method, an index into the ways list")
	f.BoolVar(&s.noContext, "no-context", false, "disable the context query")
	f.StringVar(&s.resolver, "resolver", "", `namespace resolver as JSON, e.g. {"x":"http://www.w3.org/1999/xhtml"}`)
	f.BoolVar(&s.noResolver, "no-resolver", false, "disable the namespace resolver")
	f.StringVar(&s.designation, "designation", "", "frame designation expression")
	f.BoolVar(&s.noDesignate, "no-designation", false, "disable the frame designation")
	f.StringVarP(&s.frame, "frame", "f", "", "frame id to target (see the frames command)")
	f.BoolVar(&s.noFrame, "no-frame", false, "target the top frame")
	f.BoolVar(&s.help, "show-help", false, "show the help section")
	return s
}

// apply returns the UI update for the flags set on cmd.
func (s *selectionFlags) apply(cmd *cobra.Command) func(*popup.UIState) {
	changed := cmd.Flags().Changed
	return func(ui *popup.UIState) {
		if changed("way") {
			ui.MainWayIndex = s.way
		}
		if changed("context") {
			ui.ContextEnabled = true
			ui.ContextExpression = s.context
		}
		if changed("context-way") {
			ui.ContextWayIndex = s.contextWay
		}
		if changed("no-context") && s.noContext {
			ui.ContextEnabled = false
		}
		if changed("resolver") {
			ui.ResolverEnabled = true
			ui.ResolverExpression = s.resolver
		}
		if changed("no-resolver") && s.noResolver {
			ui.ResolverEnabled = false
		}
		if changed("designation") {
			ui.FrameDesignationEnabled = true
			ui.FrameDesignationExpression = s.designation
		}
		if changed("no-designation") && s.noDesignate {
			ui.FrameDesignationEnabled = false
		}
		if changed("frame") {
			ui.FrameIDEnabled = true
			ui.FrameChoice = frames.ManualEntry
			ui.ManualFrameID = s.frame
		}
		if changed("no-frame") && s.noFrame {
			ui.FrameIDEnabled = false
		}
		if changed("show-help") {
			ui.HelpVisible = s.help
		}
	}
}
