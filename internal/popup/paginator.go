package popup

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// PageSize is the fixed number of rows per page.
const PageSize = 50

// ClampPage limits index to the valid pages of n results.
func ClampPage(index, n int) int {
	if n <= 0 || index < 0 {
		return 0
	}
	if last := (n - 1) / PageSize; index > last {
		return last
	}
	return index
}

// Paginator keeps a page window over the current result set.
type Paginator struct {
	view      View
	items     []protocol.ResultItem
	index     int
	restoring bool
}

// NewPaginator creates an empty paginator rendering into view.
func NewPaginator(view View) *Paginator {
	return &Paginator{view: view}
}

// ShowPage renders the page at index, clamped, keeping the scroll position.
func (p *Paginator) ShowPage(index int) int {
	index = ClampPage(index, len(p.items))

	x, y := p.view.ScrollPosition()
	begin := index * PageSize
	end := begin + PageSize
	if end > len(p.items) {
		end = len(p.items)
	}
	p.view.RenderDetails(p.items[begin:end], begin)
	p.view.SetPageNumber(index + 1)
	p.index = index
	p.view.ScrollTo(x, y)
	return index
}

// Replace swaps in a new result set. The first set after a session restore
// opens on the restored page, any other on page 0.
func (p *Paginator) Replace(items []protocol.ResultItem) int {
	p.items = items
	index := 0
	if p.restoring {
		index = p.index
		p.restoring = false
	}
	return p.ShowPage(index)
}

// Restore records the page index of a restored session without rendering.
func (p *Paginator) Restore(index int) {
	p.index = index
	p.restoring = true
}

// Reset drops the result set and renders an empty page 0.
func (p *Paginator) Reset() {
	p.items = nil
	p.restoring = false
	p.ShowPage(0)
}

// Previous and Next move one page.
func (p *Paginator) Previous() int { return p.ShowPage(p.index - 1) }
func (p *Paginator) Next() int     { return p.ShowPage(p.index + 1) }

// Move shows the page with the 1-based number typed in input. Anything that
// is not a number opens page 0.
func (p *Paginator) Move(input string) int {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return p.ShowPage(0)
	}
	return p.ShowPage(n - 1)
}

// Index is the current page index.
func (p *Paginator) Index() int { return p.index }

// Len is the size of the current result set.
func (p *Paginator) Len() int { return len(p.items) }

// Item returns the result at index.
func (p *Paginator) Item(index int) (protocol.ResultItem, bool) {
	if index < 0 || index >= len(p.items) {
		return protocol.ResultItem{}, false
	}
	return p.items[index], true
}
