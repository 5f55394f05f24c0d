package handlers

import (
	"context"

	"newstech/pkg/api"
	"newstech/pkg/listing"
	"newstech/pkg/models"
	"newstech/pkg/render"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var flashMessages = map[string]string{
	"excluido": "Postagem excluída.",
	"salvo":    "Postagem salva.",
}

// Home renders the listing for the query in the URL. A failed load still
// renders the page, with the list in its error state.
func (p *Portal) Home(c *fiber.Ctx) error {
	ctx := c.UserContext()
	q := models.QueryFromValues(queryValues(c), p.PerPage)

	res := listing.Fetch(ctx, p.Backend, p.Prober, q)
	if res.Err != nil {
		p.Log.Warn("list load failed", zap.Error(res.Err))
	} else if res.Page.Meta.Page >= 1 {
		res.Query.Page = res.Page.Meta.Page
	}

	view := render.HomeView{
		Query: res.Query,
		List:  p.Renderer.Fragment(res.Query, res.Page, res.Probes, res.Err),
		Prefs: p.prefs(c),
		Me:    p.me(ctx),
		Feeds: p.feedLinks(),
		Flash: flashMessages[c.Query("ok")],
	}
	if p.Tokens != nil && p.Hub != nil {
		tok, err := p.Tokens.Sign(res.Query, api.CredentialsScope(ctx))
		if err != nil {
			p.Log.Error("sign view token", zap.Error(err))
		}
		view.WSToken = tok
	}
	return sendHTML(c, fiber.StatusOK, func(w *fiber.Ctx) error { return p.Renderer.Home(w, view) })
}

func (p *Portal) me(ctx context.Context) models.Me {
	if p.Session == nil {
		return models.Me{}
	}
	me, err := p.Session.Me(ctx)
	if err != nil {
		p.Log.Debug("session check failed", zap.Error(err))
		return models.Me{}
	}
	return me
}

func (p *Portal) feedLinks() []render.FeedLink {
	if p.Feeds == nil {
		return nil
	}
	var out []render.FeedLink
	for _, l := range p.Feeds.Catalog().Links() {
		out = append(out, render.FeedLink{Label: l.Label, URL: "/feeds/" + l.Category + "/" + l.Sub})
	}
	return out
}
