package popup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

func items(n int) []protocol.ResultItem {
	out := make([]protocol.ResultItem, n)
	for i := range out {
		out[i] = protocol.ResultItem{Type: "Node", Value: string(rune('a' + i%26))}
	}
	return out
}

func TestClampPage(t *testing.T) {
	for _, n := range []int{0, 1, 49, 50, 51, 99, 100, 101, 120, 1000} {
		last := 0
		if n > 0 {
			last = (n - 1) / PageSize
		}
		for _, index := range []int{-100, -1, 0, 1, 2, 3, 19, 20, 21, 1 << 20} {
			got := ClampPage(index, n)
			assert.GreaterOrEqual(t, got, 0, "n=%d index=%d", n, index)
			assert.LessOrEqual(t, got, last, "n=%d index=%d", n, index)
			if index >= 0 && index <= last {
				assert.Equal(t, index, got, "in-range index is kept, n=%d", n)
			}
		}
	}

	// Exactly one full page has no empty second page.
	assert.Equal(t, 0, ClampPage(1, 50))
	assert.Equal(t, 1, ClampPage(1, 51))
	assert.Equal(t, 0, ClampPage(5, 0))
}

func TestPaginator_ShowPage(t *testing.T) {
	view := newFakeView()
	p := NewPaginator(view)
	p.Replace(items(120))

	t.Run("renders the window and a 1-based page number", func(t *testing.T) {
		assert.Equal(t, 2, p.ShowPage(2))
		assert.Len(t, view.details, 20)
		assert.Equal(t, 100, view.begin)
		assert.Equal(t, 3, view.pageNumber)
	})

	t.Run("clamps past the last page", func(t *testing.T) {
		assert.Equal(t, 2, p.ShowPage(7))
		assert.Equal(t, 0, p.ShowPage(-3))
		assert.Len(t, view.details, PageSize)
	})

	t.Run("preserves the scroll position", func(t *testing.T) {
		view.scrollX, view.scrollY = 4, 37
		view.events = nil

		p.ShowPage(1)

		assert.Equal(t, []string{"capture", "render", "restore"}, view.events)
		assert.Equal(t, 4, view.scrollX)
		assert.Equal(t, 37, view.scrollY)
	})
}

func TestPaginator_Navigation(t *testing.T) {
	p := NewPaginator(newFakeView())
	p.Replace(items(120))

	assert.Equal(t, 1, p.Next())
	assert.Equal(t, 2, p.Next())
	assert.Equal(t, 2, p.Next(), "next on the last page stays")
	assert.Equal(t, 1, p.Previous())
	assert.Equal(t, 0, p.Previous())
	assert.Equal(t, 0, p.Previous(), "previous on the first page stays")

	assert.Equal(t, 2, p.Move("3"))
	assert.Equal(t, 0, p.Move("1"))
	assert.Equal(t, 0, p.Move("three"), "non-numeric opens page 0")
	assert.Equal(t, 2, p.Move(" 99 "))
}

func TestPaginator_ReplaceAndRestore(t *testing.T) {
	view := newFakeView()
	p := NewPaginator(view)

	// 1. A plain new result set opens on page 0.
	p.Replace(items(120))
	p.ShowPage(2)
	assert.Equal(t, 0, p.Replace(items(120)))

	// 2. After a restore, the first set opens on the restored page.
	p.Restore(2)
	assert.Equal(t, 2, p.Index(), "restored index is visible before any results arrive")
	assert.Equal(t, 2, p.Replace(items(120)))

	// 3. The one after that does not.
	assert.Equal(t, 0, p.Replace(items(120)))

	// 4. A restored index beyond a smaller set is clamped.
	p.Restore(5)
	assert.Equal(t, 1, p.Replace(items(60)))
}

func TestPaginator_Reset(t *testing.T) {
	view := newFakeView()
	p := NewPaginator(view)
	p.Replace(items(80))
	p.Next()
	p.Restore(3)

	p.Reset()

	require.Equal(t, 0, p.Index())
	assert.Zero(t, p.Len())
	assert.Empty(t, view.details)
	assert.Equal(t, 1, view.pageNumber)
	assert.Equal(t, 0, p.Replace(items(200)), "reset drops a pending restore")
}
