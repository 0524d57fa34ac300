package render

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/tryxpath-cli/internal/config"
)

func TestParseCSS(t *testing.T) {
	css := `
/* popup */
.results-message { font-weight: bold; color: red }
.results-frame-id, .page-count { color: #00ffaa; font-style: italic; }
body { color: blue; }
.details-header { text-decoration: underline dotted; background-color: 8; }
.results-message { font-weight: 700 !important; }
.broken { color
`
	want := Stylesheet{
		ClassMessage:       {Foreground: "1", Bold: true},
		ClassFrameID:       {Foreground: "#00ffaa", Italic: true},
		ClassPageCount:     {Foreground: "#00ffaa", Italic: true},
		ClassDetailsHeader: {Background: "8", Underline: true},
	}
	if diff := cmp.Diff(want, ParseCSS(css)); diff != "" {
		t.Errorf("ParseCSS mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCSS_DefaultSheet(t *testing.T) {
	sheet := ParseCSS(config.DefaultPopupCSS)
	assert.True(t, sheet[ClassMessage].Bold)
	assert.Equal(t, "6", sheet[ClassFrameID].Foreground)
	assert.True(t, sheet[ClassDetailsHeader].Underline)
	assert.True(t, sheet[ClassPageCount].Italic)
}

func TestTerminalColor(t *testing.T) {
	tests := map[string]string{
		"#fff":     "#fff",
		"cyan":     "6",
		"grey":     "8",
		"208":      "208",
		"rgb(1,2)": "",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, terminalColor(in), "input %q", in)
	}
}
