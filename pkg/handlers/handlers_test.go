package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"newstech/pkg/apierr"
	"newstech/pkg/chat"
	"newstech/pkg/database"
	"newstech/pkg/feeds"
	"newstech/pkg/hub"
	"newstech/pkg/middleware"
	"newstech/pkg/models"
	"newstech/pkg/render"
	"newstech/pkg/repository"
	"newstech/pkg/server"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
)

type fakeSession struct {
	me  models.Me
	err error
}

func (f fakeSession) Me(context.Context) (models.Me, error) { return f.me, f.err }
func (f fakeSession) Logout(context.Context) error          { return nil }

type failingBackend struct{ err error }

func (f failingBackend) ListPosts(context.Context, models.Query) (models.Page, error) {
	return models.Page{}, f.err
}
func (f failingBackend) GetPost(context.Context, int) (models.Post, error) {
	return models.Post{}, f.err
}
func (f failingBackend) DeletePost(context.Context, int) error { return f.err }
func (f failingBackend) SavePost(context.Context, int, models.PostFields, *models.ImageFile) (models.Post, error) {
	return models.Post{}, f.err
}

func newRepo(t *testing.T) *repository.PostsRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.DriverSQLite, "file::memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(ctx, db, database.DriverSQLite, nil); err != nil {
		t.Fatal(err)
	}
	return repository.NewPostsRepository(db, t.TempDir(), nil)
}

func seedPosts(t *testing.T, repo *repository.PostsRepository, n int) []models.Post {
	t.Helper()
	var out []models.Post
	for i := 1; i <= n; i++ {
		p, err := repo.SavePost(context.Background(), 0, models.PostFields{
			Titulo:   fmt.Sprintf("Notícia %02d", i),
			Autor:    "Redação",
			Conteudo: "Texto da notícia",
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, p)
		// criado_em has microsecond resolution
		time.Sleep(time.Millisecond)
	}
	return out
}

func newTestApp(t *testing.T, d Deps) *fiber.App {
	t.Helper()
	r, err := render.New(render.DefaultOptions(), 5)
	if err != nil {
		t.Fatal(err)
	}
	d.Renderer = r
	if d.PerPage == 0 {
		d.PerPage = 10
	}
	app := server.NewApp(server.Options{Name: "portal-test"}, nil)
	New(d).Register(app)
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func parseHTML(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHomeListsPosts(t *testing.T) {
	repo := newRepo(t)
	seedPosts(t, repo, 12)
	app := newTestApp(t, Deps{
		Backend: repo,
		Tokens:  middleware.NewViewTokens("x", time.Hour),
		Hub:     hub.New(hub.Deps{Backend: repo, PerPage: 10}, nil),
	})

	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/?page=2&ordem=antigo&q=not", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	doc := parseHTML(t, resp)

	if n := doc.Find("article.card").Length(); n != 2 {
		t.Errorf("cards on page 2: %d", n)
	}
	if got := doc.Find("article.card .card-title").First().Text(); got != "Notícia 11" {
		t.Errorf("oldest-first page 2 starts with %q", got)
	}
	if got := doc.Find(".pag-label").Text(); got != "Página 2 de 2" {
		t.Errorf("label %q", got)
	}
	if got := doc.Find("#lista-contagem").Text(); got != "2 itens" {
		t.Errorf("count %q", got)
	}
	if v, _ := doc.Find("#q").Attr("value"); v != "not" {
		t.Errorf("search box %q", v)
	}
	if v, _ := doc.Find("#ordem option[selected]").Attr("value"); v != "antigo" {
		t.Errorf("selected sort %q", v)
	}
	if tok, _ := doc.Find("#lista").Attr("data-ws-token"); tok == "" {
		t.Error("missing view token")
	}
}

func TestHomeClampsOutOfRangePage(t *testing.T) {
	repo := newRepo(t)
	seedPosts(t, repo, 3)
	app := newTestApp(t, Deps{Backend: repo})

	doc := parseHTML(t, do(t, app, httptest.NewRequest(http.MethodGet, "/?p=7", nil)))
	if got := doc.Find(".pag-label").Text(); got != "Página 1 de 1" {
		t.Errorf("label %q", got)
	}
	if n := doc.Find("article.card").Length(); n != 3 {
		t.Errorf("cards %d", n)
	}
}

func TestHomeErrorState(t *testing.T) {
	app := newTestApp(t, Deps{Backend: failingBackend{err: &apierr.NetworkError{Op: "listar", Err: errors.New("refused")}}})

	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	doc := parseHTML(t, resp)
	if got := doc.Find("#lista-erro").Text(); got != "Erro ao carregar as notícias." {
		t.Errorf("error %q", got)
	}
	if got := doc.Find("#lista-contagem").Text(); got != "0 itens" {
		t.Errorf("count %q", got)
	}
	if doc.Find("article.card").Length() != 0 {
		t.Error("cards rendered on failure")
	}
}

func TestDeleteStepsBackFromEmptiedPage(t *testing.T) {
	repo := newRepo(t)
	posts := seedPosts(t, repo, 11)
	app := newTestApp(t, Deps{Backend: repo})

	// newest first: the oldest post is alone on page 2
	oldest := posts[0]
	resp := do(t, app, formRequest(fmt.Sprintf("/posts/%d/excluir", oldest.ID), url.Values{"back": {"/?page=2"}}))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/?ok=excluido&page=1" {
		t.Errorf("redirect %q", loc)
	}
	if _, err := repo.GetPost(context.Background(), oldest.ID); apierr.Status(err) != http.StatusNotFound {
		t.Errorf("post still there: %v", err)
	}
}

func TestDeleteKeepsQueryState(t *testing.T) {
	repo := newRepo(t)
	posts := seedPosts(t, repo, 3)
	app := newTestApp(t, Deps{Backend: repo})

	resp := do(t, app, formRequest(fmt.Sprintf("/posts/%d/excluir", posts[1].ID),
		url.Values{"back": {"/?q=Not&ordem=titulo-za"}}))
	if loc := resp.Header.Get("Location"); loc != "/?ok=excluido&ordem=titulo-za&page=1&q=Not" {
		t.Errorf("redirect %q", loc)
	}
}

func TestDeleteFailureShowsError(t *testing.T) {
	repo := newRepo(t)
	app := newTestApp(t, Deps{Backend: repo})

	resp := do(t, app, formRequest("/posts/999/excluir", url.Values{"back": {"https://evil.test/"}}))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
	doc := parseHTML(t, resp)
	if got := doc.Find(".erro").Text(); got != "Postagem não encontrada." {
		t.Errorf("error %q", got)
	}
	if back, _ := doc.Find(`input[name="back"]`).Attr("value"); back != "/" {
		t.Errorf("back %q", back)
	}
}

func TestConfirmDeletePage(t *testing.T) {
	repo := newRepo(t)
	posts := seedPosts(t, repo, 1)
	app := newTestApp(t, Deps{Backend: repo})

	doc := parseHTML(t, do(t, app, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/posts/%d/excluir?back=%s", posts[0].ID, url.QueryEscape("/?page=3")), nil)))
	if got := doc.Find(".confirmar strong").Text(); got != "Notícia 01" {
		t.Errorf("title %q", got)
	}
	if back, _ := doc.Find(`input[name="back"]`).Attr("value"); back != "/?page=3" {
		t.Errorf("back %q", back)
	}
}

func multipartRequest(t *testing.T, fields map[string]string, file string) *http.Request {
	t.Helper()
	return multipartRequestWith(t, fields, file, []byte("\x89PNG fake"))
}

func multipartRequestWith(t *testing.T, fields map[string]string, file string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if file != "" {
		fw, err := mw.CreateFormFile("image", file)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/publicar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPublishValidation(t *testing.T) {
	repo := newRepo(t)
	app := newTestApp(t, Deps{Backend: repo})

	resp := do(t, app, multipartRequest(t, map[string]string{"titulo": "Só título"}, ""))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	doc := parseHTML(t, resp)
	if got := doc.Find(".erro").Text(); got != "Preencha todos os campos." {
		t.Errorf("error %q", got)
	}
	if v, _ := doc.Find(`input[name="titulo"]`).Attr("value"); v != "Só título" {
		t.Errorf("typed title lost: %q", v)
	}
	page, _ := repo.ListPosts(context.Background(), models.NewQuery(10))
	if page.Meta.Total != 0 {
		t.Error("invalid post was saved")
	}
}

func TestPublishCreatesWithImage(t *testing.T) {
	repo := newRepo(t)
	uploads := t.TempDir()
	app := newTestApp(t, Deps{Backend: repo, UploadsDir: uploads})

	resp := do(t, app, multipartRequest(t, map[string]string{
		"titulo": "Nova", "autor": "Ana", "conteudo": "Corpo",
	}, "foto.png"))
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/?ok=salvo" {
		t.Fatalf("status %d location %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	page, err := repo.ListPosts(context.Background(), models.NewQuery(10))
	if err != nil || len(page.Items) != 1 {
		t.Fatalf("saved posts %+v %v", page, err)
	}
	p := page.Items[0]
	if p.Titulo != "Nova" || p.Autor != "Ana" || !strings.HasSuffix(p.ImageURL, "_foto.png") {
		t.Errorf("saved %+v", p)
	}

	doc := parseHTML(t, do(t, app, httptest.NewRequest(http.MethodGet, "/?ok=salvo", nil)))
	if got := doc.Find(".aviso").Text(); got != "Postagem salva." {
		t.Errorf("flash %q", got)
	}
}

func TestPublishRejectsOversizedImage(t *testing.T) {
	repo := newRepo(t)
	uploads := t.TempDir()
	app := newTestApp(t, Deps{Backend: repo, UploadsDir: uploads})

	data := bytes.Repeat([]byte{0xFF}, 10<<20)
	resp := do(t, app, multipartRequestWith(t, map[string]string{
		"titulo": "Grande", "autor": "Ana", "conteudo": "Corpo",
	}, "grande.png", data))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d", resp.StatusCode)
	}
	doc := parseHTML(t, resp)
	if got := doc.Find(".erro").Text(); got != "Imagem muito grande (máximo 8 MB)." {
		t.Errorf("error %q", got)
	}

	page, err := repo.ListPosts(context.Background(), models.NewQuery(10))
	if err != nil || len(page.Items) != 0 {
		t.Errorf("nothing should be saved, got %+v %v", page.Items, err)
	}
	if entries, _ := os.ReadDir(uploads); len(entries) != 0 {
		t.Errorf("nothing should be written, got %d files", len(entries))
	}
}

func TestPublishEditLoadsPost(t *testing.T) {
	repo := newRepo(t)
	posts := seedPosts(t, repo, 1)
	app := newTestApp(t, Deps{Backend: repo})

	doc := parseHTML(t, do(t, app, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/publicar?id=%d", posts[0].ID), nil)))
	if v, _ := doc.Find(`input[name="id"]`).Attr("value"); v != fmt.Sprint(posts[0].ID) {
		t.Errorf("hidden id %q", v)
	}
	if got := doc.Find(`textarea[name="conteudo"]`).Text(); got != "Texto da notícia" {
		t.Errorf("content %q", got)
	}

	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/publicar?id=abc", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status %d", resp.StatusCode)
	}
	resp = do(t, app, httptest.NewRequest(http.MethodGet, "/publicar?id=999", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing post status %d", resp.StatusCode)
	}
}

func TestPublishLoginGate(t *testing.T) {
	repo := newRepo(t)

	anon := newTestApp(t, Deps{Backend: repo, Session: fakeSession{}, LoginURL: "/entrar"})
	resp := do(t, anon, httptest.NewRequest(http.MethodGet, "/publicar", nil))
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/entrar" {
		t.Errorf("anonymous: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	logged := newTestApp(t, Deps{Backend: repo, Session: fakeSession{me: models.Me{Logged: true, Username: "ana"}}})
	doc := parseHTML(t, do(t, logged, httptest.NewRequest(http.MethodGet, "/publicar", nil)))
	autor := doc.Find(`input[name="autor"]`)
	if v, _ := autor.Attr("value"); v != "ana" {
		t.Errorf("author %q", v)
	}
	if _, ok := autor.Attr("readonly"); !ok {
		t.Error("author should be locked")
	}

	resp = do(t, logged, multipartRequest(t, map[string]string{
		"titulo": "t", "autor": "outra pessoa", "conteudo": "c",
	}, ""))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status %d", resp.StatusCode)
	}
	page, _ := repo.ListPosts(context.Background(), models.NewQuery(10))
	if len(page.Items) != 1 || page.Items[0].Autor != "ana" {
		t.Errorf("locked author not applied: %+v", page.Items)
	}
}

func TestChatProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Message string }
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"reply":"eco: %s"}`, body.Message)
	}))
	defer upstream.Close()

	client, err := chat.NewClient(upstream.URL, chat.WithBackoff(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	app := newTestApp(t, Deps{
		Backend:       failingBackend{},
		Chat:          chat.NewSessions(client, time.Minute),
		ChatRateLimit: 2,
	})

	post := func(body string) (*http.Response, map[string]string) {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp := do(t, app, req)
		var out map[string]string
		json.NewDecoder(resp.Body).Decode(&out)
		return resp, out
	}

	resp, out := post(`{"message":" oi "}`)
	if resp.StatusCode != http.StatusOK || out["reply"] != "eco: oi" {
		t.Errorf("reply %d %v", resp.StatusCode, out)
	}
	resp, out = post(`{"message":"   "}`)
	if resp.StatusCode != http.StatusBadRequest || out["erro"] != "Mensagem vazia." {
		t.Errorf("empty %d %v", resp.StatusCode, out)
	}
	resp, _ = post(`{"message":"de novo"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("rate limit: %d", resp.StatusCode)
	}
}

func TestFeedsLookupError(t *testing.T) {
	app := newTestApp(t, Deps{Backend: failingBackend{}, Feeds: feeds.NewFetcher(nil, nil, nil, nil)})

	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/feeds/culinaria/bolos", nil))
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusBadRequest || out["erro"] != "Categoria inválida: culinaria" {
		t.Errorf("%d %v", resp.StatusCode, out)
	}
}

func TestPrefsCookies(t *testing.T) {
	app := newTestApp(t, Deps{Backend: failingBackend{}})

	req := httptest.NewRequest(http.MethodPost, "/prefs/sidebar", nil)
	req.Header.Set("Accept", "application/json")
	resp := do(t, app, req)
	if !hasCookie(resp, "sidebar-open", "1") {
		t.Errorf("sidebar cookie not set: %v", resp.Header.Values("Set-Cookie"))
	}

	req = httptest.NewRequest(http.MethodPost, "/prefs/sidebar", nil)
	req.Header.Set("Cookie", "sidebar-open=1")
	resp = do(t, app, req)
	if resp.StatusCode != http.StatusSeeOther || !hasCookie(resp, "sidebar-open", "0") {
		t.Errorf("toggle back: %d %v", resp.StatusCode, resp.Header.Values("Set-Cookie"))
	}

	resp = do(t, app, formRequest("/prefs/tema", url.Values{"tema": {"escuro"}}))
	if !hasCookie(resp, "tema", "escuro") {
		t.Errorf("theme cookie: %v", resp.Header.Values("Set-Cookie"))
	}
	resp = do(t, app, formRequest("/prefs/tema", url.Values{"tema": {"roxo"}}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid theme: %d", resp.StatusCode)
	}
}

func hasCookie(resp *http.Response, name, value string) bool {
	for _, c := range resp.Cookies() {
		if c.Name == name && c.Value == value {
			return true
		}
	}
	return false
}

func TestLinkPreview(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><title>Fallback</title>
<meta property="og:title" content="Título OG">
<meta name="description" content="Resumo">
<meta property="og:image" content="/img/capa.png">
</head><body></body></html>`)
	}))
	defer page.Close()

	app := newTestApp(t, Deps{Backend: failingBackend{}, HTTP: page.Client()})
	req := httptest.NewRequest(http.MethodPost, "/publicar/preview", strings.NewReader(`{"url":"`+page.URL+`/artigo"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := do(t, app, req)

	var got LinkPreview
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Title != "Título OG" || got.Description != "Resumo" || got.Image != page.URL+"/img/capa.png" {
		t.Errorf("preview %+v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/publicar/preview", strings.NewReader(`{"url":"ftp://x"}`))
	req.Header.Set("Content-Type", "application/json")
	if resp := do(t, app, req); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("ftp url: %d", resp.StatusCode)
	}
}
