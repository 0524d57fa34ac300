// Package render is the terminal surface of the popup: a status line, the
// result count, the context row, one page of results and the page number.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/tryxpath-cli/internal/frames"
	"github.com/xkilldash9x/tryxpath-cli/internal/popup"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

const maxCellWidth = 60

var tableHeader = []string{"#", "Type", "Name", "Value", "Text"}

var helpText = []string{
	"exec     run the main query (and the context query when enabled)",
	"show     re-display previous or all results from the frame",
	"page     move between result pages (prev, next, <n>)",
	"focus    focus the frame, a result item or the context item",
	"frames   discover the frames that can be targeted",
	"style    set or reset result highlighting",
}

// TextView keeps everything the popup shows and writes it out on demand.
type TextView struct {
	mu sync.Mutex

	message string
	frameID string
	count   int

	details []protocol.ResultItem
	begin   int
	context []protocol.ResultItem
	page    int

	scrollX, scrollY int

	visible map[popup.Section]bool
	options []frames.Option
	sheet   Stylesheet
}

// NewTextView returns an empty view styled by css.
func NewTextView(css string) *TextView {
	return &TextView{
		visible: make(map[popup.Section]bool),
		sheet:   ParseCSS(css),
	}
}

func (v *TextView) SetStatus(message, frameID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.message, v.frameID = message, frameID
}

func (v *TextView) SetCount(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.count = n
}

// RenderDetails replaces the visible page. Like any re-render it moves the
// viewport back to the top.
func (v *TextView) RenderDetails(items []protocol.ResultItem, begin int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.details = append(v.details[:0:0], items...)
	v.begin = begin
	v.scrollX, v.scrollY = 0, 0
}

func (v *TextView) RenderContext(items []protocol.ResultItem) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.context = append(v.context[:0:0], items...)
}

func (v *TextView) SetPageNumber(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.page = n
}

func (v *TextView) ScrollPosition() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollX, v.scrollY
}

// ScrollTo moves the viewport. y counts result rows and is clamped to the
// rows on the page.
func (v *TextView) ScrollTo(x, y int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollX = max(x, 0)
	v.scrollY = min(max(y, 0), len(v.details))
}

func (v *TextView) SetVisible(s popup.Section, visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible[s] = visible
}

func (v *TextView) InsertStyle(css string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for class, decl := range ParseCSS(css) {
		v.sheet[class] = decl
	}
}

func (v *TextView) SetFrameOptions(opts []frames.Option) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.options = append(v.options[:0:0], opts...)
}

// Write renders the current state to w. Colors are used only when w is a
// terminal that supports them.
func (v *TextView) Write(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	r := lipgloss.NewRenderer(w)
	var b strings.Builder

	status := v.sheet.Style(r, ClassMessage).Render(v.message)
	if v.frameID != "" {
		status += "  " + v.sheet.Style(r, ClassFrameID).Render("frameId: "+v.frameID)
	}
	fmt.Fprintln(&b, status)
	fmt.Fprintln(&b, v.sheet.Style(r, ClassCount).Render("Count: "+strconv.Itoa(v.count)))

	if v.visible[popup.SectionHelp] {
		for _, line := range helpText {
			fmt.Fprintln(&b, "  "+line)
		}
	}

	if v.visible[popup.SectionFrameID] && len(v.options) > 0 {
		labels := make([]string, 0, len(v.options))
		for _, opt := range v.options {
			labels = append(labels, opt.Label)
		}
		fmt.Fprintln(&b, "Frames: "+strings.Join(labels, ", "))
	}

	if v.visible[popup.SectionContext] && len(v.context) > 0 {
		fmt.Fprintln(&b, v.sheet.Style(r, ClassContextHeader).Render("Context"))
		writeTable(&b, v.context, 0, v.sheet.Style(r, ClassDetailsHeader))
	}

	if len(v.details) > 0 {
		start := min(v.scrollY, len(v.details))
		writeTable(&b, v.details[start:], v.begin+start, v.sheet.Style(r, ClassDetailsHeader))
	}
	fmt.Fprintln(&b, v.sheet.Style(r, ClassPageCount).Render("Page "+strconv.Itoa(v.page)))

	_, err := io.WriteString(w, b.String())
	return err
}

// writeTable aligns the rows as plain text first so styling the header line
// cannot shift the columns.
func writeTable(out io.Writer, items []protocol.ResultItem, begin int, header lipgloss.Style) {
	var plain strings.Builder
	tw := tabwriter.NewWriter(&plain, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(tableHeader, "\t"))
	for i, item := range items {
		fmt.Fprintln(tw, strings.Join([]string{
			strconv.Itoa(begin + i),
			cell(item.Type),
			cell(item.Name),
			cell(item.Value),
			cell(item.TextContent),
		}, "\t"))
	}
	tw.Flush()

	head, rows, _ := strings.Cut(plain.String(), "\n")
	fmt.Fprintln(out, header.Render(strings.TrimRight(head, " ")))
	io.WriteString(out, rows)
}

// cell collapses whitespace and shortens long values so the table stays
// on one line per row.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxCellWidth {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxCellWidth-1]) + "…"
}

// Snapshot is a plain copy of what the view shows, used by JSON output.
type Snapshot struct {
	Message string                `json:"message"`
	FrameID string                `json:"frameId"`
	Count   int                   `json:"count"`
	Page    int                   `json:"page"`
	Begin   int                   `json:"begin"`
	Items   []protocol.ResultItem `json:"items"`
	Context []protocol.ResultItem `json:"context,omitempty"`
}

// Snapshot returns the current state of the view.
func (v *TextView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		Message: v.message,
		FrameID: v.frameID,
		Count:   v.count,
		Page:    v.page,
		Begin:   v.begin,
		Items:   append([]protocol.ResultItem{}, v.details...),
		Context: append([]protocol.ResultItem(nil), v.context...),
	}
}
