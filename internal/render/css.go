package render

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Classes the view styles. Other selectors in a stylesheet are ignored.
const (
	ClassMessage       = "results-message"
	ClassFrameID       = "results-frame-id"
	ClassCount         = "results-count"
	ClassDetailsHeader = "details-header"
	ClassContextHeader = "context-header"
	ClassPageCount     = "page-count"
)

// declaration is the subset of css a terminal can show.
type declaration struct {
	Foreground string
	Background string
	Bold       bool
	Italic     bool
	Underline  bool
}

// Stylesheet maps class names to declarations.
type Stylesheet map[string]declaration

var namedColors = map[string]string{
	"black":   "0",
	"red":     "1",
	"green":   "2",
	"yellow":  "3",
	"blue":    "4",
	"magenta": "5",
	"cyan":    "6",
	"white":   "7",
	"gray":    "8",
	"grey":    "8",
}

// ParseCSS reads simple ".class { prop: value; }" rules. Comments, selector
// lists and unknown properties are tolerated; later rules override earlier
// ones property by property.
func ParseCSS(css string) Stylesheet {
	sheet := make(Stylesheet)
	css = stripComments(css)
	for {
		open := strings.IndexByte(css, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(css[open:], '}')
		if end < 0 {
			break
		}
		selectors, body := css[:open], css[open+1:open+end]
		css = css[open+end+1:]

		for _, sel := range strings.Split(selectors, ",") {
			sel = strings.TrimSpace(sel)
			if !strings.HasPrefix(sel, ".") {
				continue
			}
			class := sel[1:]
			decl := sheet[class]
			applyDeclarations(&decl, body)
			sheet[class] = decl
		}
	}
	return sheet
}

func stripComments(css string) string {
	var b strings.Builder
	for {
		start := strings.Index(css, "/*")
		if start < 0 {
			b.WriteString(css)
			return b.String()
		}
		b.WriteString(css[:start])
		end := strings.Index(css[start+2:], "*/")
		if end < 0 {
			return b.String()
		}
		css = css[start+2+end+2:]
	}
}

func applyDeclarations(d *declaration, body string) {
	for _, part := range strings.Split(body, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important")))
		switch prop {
		case "color":
			d.Foreground = terminalColor(value)
		case "background-color", "background":
			d.Background = terminalColor(value)
		case "font-weight":
			n, err := strconv.Atoi(value)
			d.Bold = value == "bold" || value == "bolder" || err == nil && n >= 600
		case "font-style":
			d.Italic = value == "italic" || value == "oblique"
		case "text-decoration", "text-decoration-line":
			d.Underline = strings.Contains(value, "underline")
		}
	}
}

// terminalColor accepts hex colors, ANSI numbers and the basic color names.
func terminalColor(value string) string {
	if strings.HasPrefix(value, "#") {
		return value
	}
	if c, ok := namedColors[value]; ok {
		return c
	}
	if value != "" && strings.Trim(value, "0123456789") == "" {
		return value
	}
	return ""
}

// Style builds the lipgloss style for class on r.
func (s Stylesheet) Style(r *lipgloss.Renderer, class string) lipgloss.Style {
	style := r.NewStyle()
	d, ok := s[class]
	if !ok {
		return style
	}
	if d.Foreground != "" {
		style = style.Foreground(lipgloss.Color(d.Foreground))
	}
	if d.Background != "" {
		style = style.Background(lipgloss.Color(d.Background))
	}
	return style.Bold(d.Bold).Italic(d.Italic).Underline(d.Underline)
}
