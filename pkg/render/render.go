// Package render turns normalized posts into the portal's HTML: the card
// list, the pagination bar and the full pages around them.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"newstech/pkg/images"
	"newstech/pkg/models"
	"newstech/pkg/pagination"
	"newstech/pkg/prefs"
)

//go:embed templates
var templateFS embed.FS

const (
	ListErrorMessage = "Erro ao carregar as notícias."
	EmptyMessage     = "Nenhuma notícia encontrada."
)

// ListFragment is the part of the home page that changes on every reload.
// The websocket channel pushes it on its own.
type ListFragment struct {
	Cards      []Card
	Count      string
	Empty      bool
	Error      string
	Pagination PaginationView
}

type SortOption struct {
	Value    string
	Label    string
	Selected bool
}

type FeedLink struct {
	Label string
	URL   string
}

type HomeView struct {
	Query   models.Query
	Sorts   []SortOption
	List    ListFragment
	Prefs   prefs.Prefs
	Me      models.Me
	WSToken string
	Feeds   []FeedLink
	Flash   string
}

type PublishView struct {
	ID           int
	Fields       models.PostFields
	AuthorLocked bool
	ImageURL     string
	Error        string
	Prefs        prefs.Prefs
}

func (v PublishView) Editing() bool { return v.ID > 0 }

type ConfirmView struct {
	ID    int
	Title string
	Back  string
	Error string
	Prefs prefs.Prefs
}

type Renderer struct {
	partials *template.Template
	pages    map[string]*template.Template
	opts     Options
	window   int
}

// New parses the embedded templates. window is the pagination window size.
func New(opts Options, window int) (*Renderer, error) {
	partials, err := template.New("").ParseFS(templateFS, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse partials: %w", err)
	}

	r := &Renderer{
		partials: partials,
		pages:    make(map[string]*template.Template),
		opts:     opts.withDefaults(),
		window:   window,
	}
	for _, name := range []string{"home", "publicar", "confirmar"} {
		base, err := partials.Clone()
		if err != nil {
			return nil, err
		}
		t, err := base.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) Options() Options { return r.opts }

// Cards applies the card mapping with the renderer's options.
func (r *Renderer) Cards(items []models.Post, probes map[int]images.Result) []Card {
	return BuildCards(items, probes, r.opts)
}

// Fragment builds the list fragment for a finished load. A non-nil loadErr
// gives the error state: red message, no cards, count zero.
func (r *Renderer) Fragment(q models.Query, page models.Page, probes map[int]images.Result, loadErr error) ListFragment {
	if loadErr != nil {
		return ListFragment{
			Count:      CountLabel(0),
			Empty:      true,
			Error:      ListErrorMessage,
			Pagination: BuildPaginationView(pagination.Build(models.DefaultMeta(), r.window), q, "/"),
		}
	}
	return ListFragment{
		Cards:      r.Cards(page.Items, probes),
		Count:      CountLabel(len(page.Items)),
		Empty:      len(page.Items) == 0,
		Pagination: BuildPaginationView(pagination.Build(page.Meta, r.window), q, "/"),
	}
}

// List writes the card list for items, replacing whatever was there.
func (r *Renderer) List(w io.Writer, items []models.Post, probes map[int]images.Result) error {
	return r.partials.ExecuteTemplate(w, "list", ListFragment{
		Cards: r.Cards(items, probes),
		Count: CountLabel(len(items)),
		Empty: len(items) == 0,
	})
}

// ListError writes the failed-load state.
func (r *Renderer) ListError(w io.Writer, message string) error {
	if message == "" {
		message = ListErrorMessage
	}
	return r.partials.ExecuteTemplate(w, "list", ListFragment{
		Count: CountLabel(0),
		Empty: true,
		Error: message,
	})
}

func (r *Renderer) Pagination(w io.Writer, c pagination.Control, q models.Query) error {
	return r.partials.ExecuteTemplate(w, "pagination", BuildPaginationView(c, q, "/"))
}

func (r *Renderer) WriteFragment(w io.Writer, f ListFragment) error {
	return r.partials.ExecuteTemplate(w, "fragment", f)
}

// FragmentHTML is WriteFragment into a string, for websocket pushes.
func (r *Renderer) FragmentHTML(f ListFragment) (string, error) {
	var buf bytes.Buffer
	if err := r.WriteFragment(&buf, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Renderer) Home(w io.Writer, v HomeView) error {
	if v.Sorts == nil {
		v.Sorts = SortOptions(v.Query.Sort)
	}
	return r.page(w, "home", v)
}

func (r *Renderer) Publish(w io.Writer, v PublishView) error {
	return r.page(w, "publicar", v)
}

func (r *Renderer) ConfirmDelete(w io.Writer, v ConfirmView) error {
	return r.page(w, "confirmar", v)
}

func (r *Renderer) page(w io.Writer, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	// render to a buffer first so a template error never leaves half a page
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// SortOptions lists the sort selector entries with current selected.
func SortOptions(current models.SortOrder) []SortOption {
	out := make([]SortOption, 0, len(models.SortOrders))
	for _, s := range models.SortOrders {
		out = append(out, SortOption{Value: string(s), Label: s.Label(), Selected: s == current})
	}
	return out
}
