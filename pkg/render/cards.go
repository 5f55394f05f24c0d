package render

import (
	"fmt"
	"html/template"
	"strconv"
	"time"
	"unicode/utf8"

	"newstech/pkg/images"
	"newstech/pkg/models"
	"newstech/pkg/pagination"
)

type Options struct {
	// AboveTheFold is how many leading cards get eager, high-priority images.
	AboveTheFold int
	AspectRatio  string
	TruncateAt   int
	Location     *time.Location
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		AboveTheFold: 3,
		AspectRatio:  "16/9",
		TruncateAt:   240,
		Location:     time.Local,
		Now:          time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AboveTheFold < 0 {
		o.AboveTheFold = d.AboveTheFold
	}
	if o.AspectRatio == "" {
		o.AspectRatio = d.AspectRatio
	}
	if o.TruncateAt <= 0 {
		o.TruncateAt = d.TruncateAt
	}
	if o.Location == nil {
		o.Location = d.Location
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

type Card struct {
	ID      int
	Title   string
	Author  string
	When    string
	Body    string
	EditURL string
	Image   *CardImage
}

type CardImage struct {
	Src string
	// RetrySrc is the cache-busted URL the browser falls back to when the
	// image was not probed server side.
	RetrySrc     string
	Loading      string
	HighPriority bool
	Style        template.CSS
	Probed       bool
	Retried      bool
	Failed       bool
}

// BuildCards maps posts to cards in input order. probes may be nil.
func BuildCards(items []models.Post, probes map[int]images.Result, opts Options) []Card {
	opts = opts.withDefaults()
	cards := make([]Card, 0, len(items))
	for i, p := range items {
		c := Card{
			ID:      p.ID,
			Title:   p.Title(),
			Author:  p.Author(),
			Body:    Truncate(p.Conteudo, opts.TruncateAt),
			EditURL: "/publicar?id=" + strconv.Itoa(p.ID),
		}
		if t, ok := p.Created(); ok {
			c.When = FormatTime(t, opts.Location)
		}
		if p.ImageURL != "" {
			c.Image = buildImage(p.ImageURL, i < opts.AboveTheFold, probes, p.ID, opts)
		}
		cards = append(cards, c)
	}
	return cards
}

func buildImage(src string, eager bool, probes map[int]images.Result, id int, opts Options) *CardImage {
	img := &CardImage{
		Src:          src,
		Loading:      "lazy",
		HighPriority: eager,
		// aspect ratio comes from configuration, never from post data
		Style: template.CSS("width:100%;aspect-ratio:" + opts.AspectRatio + ";object-fit:cover"),
	}
	if eager {
		img.Loading = "eager"
	}
	if r, ok := probes[id]; ok && r.State != images.Pending {
		img.Probed = true
		img.Src = r.Src
		img.Retried = r.Retried()
		img.Failed = r.Failed()
		return img
	}
	img.RetrySrc = images.WithCacheBuster(src, opts.Now())
	return img
}

// Truncate cuts s to n runes and marks the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("02/01/2006 15:04")
}

// CountLabel is the "N itens" label next to the list.
func CountLabel(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d itens", n)
}

type PageLink struct {
	Label    string
	Title    string
	Page     int
	URL      string
	Disabled bool
	Active   bool
}

type PaginationView struct {
	Links []PageLink
	Label string
}

// BuildPaginationView lays out first/prev, the numbered window, next/last
// and the "Página X de Y" label. Links keep the search and sort of q.
func BuildPaginationView(c pagination.Control, q models.Query, basePath string) PaginationView {
	link := func(label, title string, page int, disabled, active bool) PageLink {
		return PageLink{
			Label:    label,
			Title:    title,
			Page:     page,
			URL:      basePath + "?" + q.PageValues(page).Encode(),
			Disabled: disabled,
			Active:   active,
		}
	}

	v := PaginationView{Label: c.Label}
	v.Links = append(v.Links,
		link("«", "Primeira", 1, c.PrevDisabled(), false),
		link("‹", "Anterior", c.Prev(), c.PrevDisabled(), false),
	)
	for _, p := range c.Window {
		active := p == c.Page
		v.Links = append(v.Links, link(strconv.Itoa(p), "Página "+strconv.Itoa(p), p, active, active))
	}
	v.Links = append(v.Links,
		link("›", "Próxima", c.Next(), c.NextDisabled(), false),
		link("»", "Última", c.Pages, c.NextDisabled(), false),
	)
	return v
}
