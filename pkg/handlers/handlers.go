// Package handlers is the HTTP surface of the portal frontend.
package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"newstech/pkg/api"
	"newstech/pkg/chat"
	"newstech/pkg/feeds"
	"newstech/pkg/hub"
	"newstech/pkg/listing"
	"newstech/pkg/middleware"
	"newstech/pkg/prefs"
	"newstech/pkg/render"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"
)

type Deps struct {
	Backend api.Backend
	// Session is nil in offline mode, where everyone may publish.
	Session    api.Session
	Renderer   *render.Renderer
	Tokens     *middleware.ViewTokens
	Prober     listing.Prober
	Feeds      *feeds.Fetcher
	Chat       *chat.Sessions
	Hub        *hub.Hub
	HTTP       *http.Client
	PerPage    int
	LoginURL   string
	UploadsDir string
	// ChatRateLimit is requests per minute per client IP; zero disables it.
	ChatRateLimit int
	Log           *zap.Logger
}

type Portal struct {
	Deps
}

func New(d Deps) *Portal {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.HTTP == nil {
		d.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	if d.LoginURL == "" {
		d.LoginURL = "/login"
	}
	return &Portal{Deps: d}
}

func (p *Portal) Register(app *fiber.App) {
	app.Get("/", p.Home)
	app.Get("/home", p.Home)

	app.Get("/posts/:id/excluir", p.ConfirmDelete)
	app.Post("/posts/:id/excluir", p.Delete)

	app.Get("/publicar", p.PublishForm)
	app.Post("/publicar", p.Publish)
	app.Post("/publicar/preview", p.LinkPreview)

	if p.Chat != nil {
		handlers := []fiber.Handler{}
		if p.ChatRateLimit > 0 {
			handlers = append(handlers, limiter.New(limiter.Config{
				Max:        p.ChatRateLimit,
				Expiration: time.Minute,
				LimitReached: func(c *fiber.Ctx) error {
					return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"erro": "Limite de uso atingido (tente novamente depois)."})
				},
			}))
		}
		app.Post("/chat", append(handlers, p.ChatMessage)...)
	}

	if p.Feeds != nil {
		app.Get("/feeds/:category/:sub/:region?", p.FeedItems)
	}

	app.Post("/prefs/sidebar", p.ToggleSidebar)
	app.Post("/prefs/tema", p.SetTheme)

	app.Get("/me", p.Me)
	app.Get("/logout", p.Logout)

	if p.Hub != nil && p.Tokens != nil {
		app.Get("/ws", middleware.ViewAuth(p.Tokens), websocket.New(p.serveView))
	}

	if p.UploadsDir != "" {
		app.Static("/uploads", p.UploadsDir, fiber.Static{Browse: false})
	}
}

func (p *Portal) prefs(c *fiber.Ctx) prefs.Prefs {
	return prefs.FromCookies(func(name string) string { return c.Cookies(name) })
}

func queryValues(c *fiber.Ctx) url.Values {
	v, _ := url.ParseQuery(string(c.Request().URI().QueryString()))
	return v
}

// localPath accepts only same-site paths, so redirects cannot leave the
// portal.
func localPath(raw string) string {
	if raw == "" {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(raw, "//") {
		return "/"
	}
	return u.RequestURI()
}

func sendHTML(c *fiber.Ctx, status int, write func(*fiber.Ctx) error) error {
	c.Status(status)
	c.Type("html", "utf-8")
	return write(c)
}
