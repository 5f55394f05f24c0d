package render

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newstech/pkg/images"
	"newstech/pkg/models"
	"newstech/pkg/pagination"
	"newstech/pkg/prefs"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	opts := DefaultOptions()
	opts.Location = time.UTC
	opts.Now = func() time.Time { return time.UnixMilli(1700000000000) }
	r, err := New(opts, pagination.DefaultWindow)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestListEscapesAndKeepsOrder(t *testing.T) {
	r := newTestRenderer(t)
	items := []models.Post{
		{ID: 7, Titulo: "Ola <mundo>", AutorNome: "Ana", CreatedAt: "2024-01-02T10:00:00Z", Conteudo: `<script>alert("x")</script>`},
		{ID: 3, AutorEmail: "b@x.com"},
		{ID: 9, Titulo: "Terceiro", CriadoEm: "2024-03-04 08:30:00"},
	}

	var buf bytes.Buffer
	if err := r.List(&buf, items, nil); err != nil {
		t.Fatal(err)
	}
	raw := buf.String()
	if !strings.Contains(raw, "&lt;mundo&gt;") {
		t.Errorf("title not escaped in source: %s", raw)
	}
	if strings.Contains(raw, "<script>") {
		t.Error("body rendered unescaped")
	}

	doc := parse(t, raw)
	cards := doc.Find("article.card")
	if cards.Length() != 3 {
		t.Fatalf("expected 3 cards, got %d", cards.Length())
	}
	wantIDs := []string{"7", "3", "9"}
	cards.Each(func(i int, s *goquery.Selection) {
		if id, _ := s.Attr("data-id"); id != wantIDs[i] {
			t.Errorf("card %d: id %q, want %q", i, id, wantIDs[i])
		}
	})

	first := cards.First()
	if got := first.Find(".card-title").Text(); got != "Ola <mundo>" {
		t.Errorf("title text %q", got)
	}
	if got := first.Find("time").Text(); got != "02/01/2024 10:00" {
		t.Errorf("time %q", got)
	}
	if href, _ := first.Find(".btn-editar").Attr("href"); href != "/publicar?id=7" {
		t.Errorf("edit href %q", href)
	}
	if id, _ := first.Find(".btn-excluir").Attr("data-id"); id != "7" {
		t.Errorf("delete id %q", id)
	}

	second := cards.Eq(1)
	if got := second.Find(".card-title").Text(); got != "Sem título" {
		t.Errorf("fallback title %q", got)
	}
	if got := second.Find(".card-autor").Text(); got != "b@x.com" {
		t.Errorf("fallback author %q", got)
	}
	if got := cards.Eq(2).Find("time").Text(); got != "04/03/2024 08:30" {
		t.Errorf("criado_em fallback %q", got)
	}
	if got := doc.Find("#lista-contagem").Text(); got != "3 itens" {
		t.Errorf("count %q", got)
	}
}

func TestImagePolicy(t *testing.T) {
	r := newTestRenderer(t)
	var items []models.Post
	for i := 1; i <= 5; i++ {
		items = append(items, models.Post{ID: i, Titulo: "p", ImageURL: "http://img.test/" + strconv.Itoa(i) + ".png"})
	}

	var buf bytes.Buffer
	if err := r.List(&buf, items, nil); err != nil {
		t.Fatal(err)
	}
	imgs := parse(t, buf.String()).Find("img.card-img")
	if imgs.Length() != 5 {
		t.Fatalf("expected 5 images, got %d", imgs.Length())
	}
	imgs.Each(func(i int, s *goquery.Selection) {
		loading, _ := s.Attr("loading")
		prio, hasPrio := s.Attr("fetchpriority")
		if i < 3 {
			if loading != "eager" || !hasPrio || prio != "high" {
				t.Errorf("image %d: loading=%q fetchpriority=%q", i, loading, prio)
			}
		} else if loading != "lazy" || hasPrio {
			t.Errorf("image %d: loading=%q fetchpriority present=%v", i, loading, hasPrio)
		}
		if style, _ := s.Attr("style"); !strings.Contains(style, "aspect-ratio:16/9") {
			t.Errorf("image %d: style %q", i, style)
		}
		if retry, _ := s.Attr("data-retry-src"); !strings.Contains(retry, "b=1700000000000") {
			t.Errorf("image %d: retry src %q", i, retry)
		}
		if _, ok := s.Attr("onerror"); !ok {
			t.Errorf("image %d: missing onerror fallback", i)
		}
	})
}

func TestProbedImages(t *testing.T) {
	r := newTestRenderer(t)
	items := []models.Post{
		{ID: 1, ImageURL: "http://img.test/ok.png"},
		{ID: 2, ImageURL: "http://img.test/flaky.png"},
		{ID: 3, ImageURL: "http://img.test/dead.png"},
	}
	probes := map[int]images.Result{
		1: {Src: "http://img.test/ok.png", State: images.Loaded},
		2: {Src: "http://img.test/flaky.png?b=1", State: images.Recovered},
		3: {Src: "http://img.test/dead.png?b=1", State: images.Failed},
	}

	var buf bytes.Buffer
	if err := r.List(&buf, items, probes); err != nil {
		t.Fatal(err)
	}
	doc := parse(t, buf.String())

	ok := doc.Find(`article[data-id="1"] img`)
	if _, has := ok.Attr("onerror"); has {
		t.Error("probed image should not carry the browser fallback")
	}
	if _, has := ok.Attr("data-err"); has {
		t.Error("loaded image marked failed")
	}

	flaky := doc.Find(`article[data-id="2"] img`)
	if v, _ := flaky.Attr("data-retried"); v != "1" {
		t.Error("recovered image should be marked retried")
	}
	if src, _ := flaky.Attr("src"); src != "http://img.test/flaky.png?b=1" {
		t.Errorf("recovered src %q", src)
	}

	dead := doc.Find(`article[data-id="3"] img`)
	if dead.Length() != 1 {
		t.Fatal("failed image must stay in the card")
	}
	if v, _ := dead.Attr("data-err"); v != "1" {
		t.Errorf("data-err %q", v)
	}
}

func TestEmptyAndErrorStates(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	if err := r.List(&buf, nil, nil); err != nil {
		t.Fatal(err)
	}
	doc := parse(t, buf.String())
	if doc.Find("#lista-vazia").Length() != 1 {
		t.Error("missing empty state")
	}
	if got := doc.Find("#lista-contagem").Text(); got != "0 itens" {
		t.Errorf("count %q", got)
	}

	q := models.NewQuery(10)
	f := r.Fragment(q, models.Page{}, nil, errors.New("boom"))
	html, err := r.FragmentHTML(f)
	if err != nil {
		t.Fatal(err)
	}
	doc = parse(t, html)
	if got := doc.Find("#lista-erro").Text(); got != ListErrorMessage {
		t.Errorf("error text %q", got)
	}
	if doc.Find("article.card").Length() != 0 {
		t.Error("error state should have no cards")
	}
	if got := doc.Find("#lista-contagem").Text(); got != "0 itens" {
		t.Errorf("count %q", got)
	}
}

func TestCountLabel(t *testing.T) {
	tests := map[int]string{0: "0 itens", 1: "1 item", 2: "2 itens", 10: "10 itens"}
	for n, want := range tests {
		if got := CountLabel(n); got != want {
			t.Errorf("CountLabel(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("á", 250)
	got := Truncate(long, 240)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 243 {
		t.Errorf("unexpected truncation, %d runes", len([]rune(got)))
	}
	if Truncate("curto", 240) != "curto" {
		t.Error("short text changed")
	}
}

func TestPaginationMarkup(t *testing.T) {
	r := newTestRenderer(t)
	q := models.Query{Q: "go lang", Page: 3, PerPage: 10, Sort: models.SortTitleAsc}
	c := pagination.Build(models.Meta{Page: 3, Pages: 10, HasPrev: true, HasNext: true}, 5)

	var buf bytes.Buffer
	if err := r.Pagination(&buf, c, q); err != nil {
		t.Fatal(err)
	}
	doc := parse(t, buf.String())

	links := doc.Find("a.pag-btn")
	// first, prev, 1 2 4 5, next, last
	if links.Length() != 8 {
		t.Fatalf("expected 8 links, got %d", links.Length())
	}
	active := doc.Find(`[aria-current="page"]`)
	if active.Text() != "3" {
		t.Errorf("active page %q", active.Text())
	}
	links.Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, "q=go+lang") || !strings.Contains(href, "ordem=titulo-az") {
			t.Errorf("link lost query state: %q", href)
		}
	})
	if got := doc.Find(".pag-label").Text(); got != "Página 3 de 10" {
		t.Errorf("label %q", got)
	}

	buf.Reset()
	single := pagination.Build(models.DefaultMeta(), 5)
	if err := r.Pagination(&buf, single, models.NewQuery(10)); err != nil {
		t.Fatal(err)
	}
	doc = parse(t, buf.String())
	if doc.Find("a.pag-btn").Length() != 0 {
		t.Error("single page should have no active links")
	}
	if doc.Find(`span[aria-disabled="true"]`).Length() != 5 {
		t.Errorf("expected 5 disabled controls, got %d", doc.Find(`span[aria-disabled="true"]`).Length())
	}
}

func TestHomePage(t *testing.T) {
	r := newTestRenderer(t)
	q := models.Query{Q: "chips", Page: 1, PerPage: 10, Sort: models.SortOldest}
	page := models.Page{Items: []models.Post{{ID: 1, Titulo: "A"}}, Meta: models.DefaultMeta()}

	var buf bytes.Buffer
	err := r.Home(&buf, HomeView{
		Query:   q,
		List:    r.Fragment(q, page, nil, nil),
		Prefs:   prefs.Prefs{SidebarOpen: true, Theme: prefs.ThemeDark},
		WSToken: "tok",
		Feeds:   []FeedLink{{Label: "Games", URL: "/feeds/games/geral"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	doc := parse(t, buf.String())
	if !doc.Find("body").HasClass("tema-escuro") {
		t.Error("theme class missing")
	}
	if v, _ := doc.Find("#q").Attr("value"); v != "chips" {
		t.Errorf("search value %q", v)
	}
	if v, _ := doc.Find("#ordem option[selected]").Attr("value"); v != "antigo" {
		t.Errorf("selected sort %q", v)
	}
	if v, _ := doc.Find("#lista").Attr("data-ws-token"); v != "tok" {
		t.Errorf("ws token %q", v)
	}
	if doc.Find("article.card").Length() != 1 {
		t.Error("expected one card")
	}
	if doc.Find("#sidebar a.feed-link").Length() != 1 {
		t.Error("expected one feed link")
	}
}

func TestPublishPage(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	err := r.Publish(&buf, PublishView{
		ID:           4,
		Fields:       models.PostFields{Titulo: "T", Autor: "ana", Conteudo: "C"},
		AuthorLocked: true,
		Error:        "Preencha todos os campos.",
	})
	if err != nil {
		t.Fatal(err)
	}
	doc := parse(t, buf.String())
	if v, _ := doc.Find(`input[name="id"]`).Attr("value"); v != "4" {
		t.Errorf("id %q", v)
	}
	if _, ok := doc.Find(`input[name="autor"]`).Attr("readonly"); !ok {
		t.Error("author should be read-only")
	}
	if got := doc.Find(".erro").Text(); got != "Preencha todos os campos." {
		t.Errorf("error %q", got)
	}
}

func TestText(t *testing.T) {
	r := newTestRenderer(t)
	page := models.Page{
		Items: []models.Post{{ID: 2, Titulo: "Olá", Autor: "zé", Conteudo: "linha"}},
		Meta:  models.DefaultMeta(),
	}
	var buf bytes.Buffer
	if err := r.Text(&buf, page, pagination.Build(page.Meta, 5)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"#2  Olá", "zé", "linha", "1 item · Página 1 de 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
