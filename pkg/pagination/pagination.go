// Package pagination computes the page-button window shown under a list.
package pagination

import (
	"fmt"

	"newstech/pkg/models"
)

const (
	DefaultWindow = 5
	MinWindow     = 5
	MaxWindow     = 7
)

// Control is everything needed to draw the pagination bar.
type Control struct {
	Page    int
	Pages   int
	HasPrev bool
	HasNext bool
	// Window is the contiguous run of numbered buttons, always within [1, Pages].
	Window []int
	Label  string
}

// Build derives a Control from normalized metadata. It is pure: the same
// meta and window size always give the same Control.
func Build(meta models.Meta, windowSize int) Control {
	if windowSize < MinWindow || windowSize > MaxWindow {
		windowSize = DefaultWindow
	}

	pages := meta.Pages
	if pages < 1 {
		pages = 1
	}
	page := meta.Page
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := page - windowSize/2
	if start < 1 {
		start = 1
	}
	end := start + windowSize - 1
	if end > pages {
		end = pages
	}
	if end-start+1 < windowSize {
		start = end - windowSize + 1
		if start < 1 {
			start = 1
		}
	}

	window := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		window = append(window, i)
	}

	return Control{
		Page:    page,
		Pages:   pages,
		HasPrev: meta.HasPrev,
		HasNext: meta.HasNext,
		Window:  window,
		Label:   fmt.Sprintf("Página %d de %d", page, pages),
	}
}

func (c Control) PrevDisabled() bool { return !c.HasPrev }
func (c Control) NextDisabled() bool { return !c.HasNext }

// Prev and Next are the targets of the step buttons, clamped to the range.
func (c Control) Prev() int {
	if c.Page <= 1 {
		return 1
	}
	return c.Page - 1
}

func (c Control) Next() int {
	if c.Page >= c.Pages {
		return c.Pages
	}
	return c.Page + 1
}

// Target resolves a click on page p. ok is false when the click is a no-op:
// the page is current or outside the range.
func (c Control) Target(p int) (int, bool) {
	if p < 1 || p > c.Pages || p == c.Page {
		return c.Page, false
	}
	return p, true
}
