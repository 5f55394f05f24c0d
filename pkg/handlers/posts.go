package handlers

import (
	"errors"
	"net/url"

	"newstech/pkg/apierr"
	"newstech/pkg/listing"
	"newstech/pkg/models"
	"newstech/pkg/render"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	deleteFailedMessage = "Erro ao excluir a postagem."
	postLoadMessage     = "Erro ao carregar a postagem."
)

// ConfirmDelete asks before deleting. back is the listing URL to return to.
func (p *Portal) ConfirmDelete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "ID inválido.")
	}
	view := render.ConfirmView{
		ID:    id,
		Back:  localPath(c.Query("back", refererPath(c))),
		Prefs: p.prefs(c),
	}
	if !isListing(view.Back) {
		view.Back = "/"
	}

	status := fiber.StatusOK
	post, err := p.Backend.GetPost(c.UserContext(), id)
	if err != nil {
		if apierr.IsUnauthorized(err) {
			return c.Redirect(p.LoginURL)
		}
		status = errorStatus(err)
		view.Error = apierr.UserMessage(err, postLoadMessage)
	} else {
		view.Title = post.Title()
	}
	return sendHTML(c, status, func(w *fiber.Ctx) error { return p.Renderer.ConfirmDelete(w, view) })
}

// Delete removes the post and sends the browser back to the listing it
// came from. When the delete empties that page the redirect points one
// page back.
func (p *Portal) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "ID inválido.")
	}
	ctx := c.UserContext()
	back := localPath(c.FormValue("back"))
	if !isListing(back) {
		back = "/"
	}

	start := models.NewQuery(p.PerPage)
	if u, err := url.Parse(back); err == nil {
		start = models.QueryFromValues(u.Query(), p.PerPage)
	}

	ctrl := listing.New(p.Backend, nil, p.PerPage,
		listing.WithContext(ctx),
		listing.WithQuery(start),
		listing.WithLogger(p.Log),
	)
	defer ctrl.Close()

	if _, err := ctrl.Delete(ctx, id, listing.Confirmed); err != nil {
		if apierr.IsUnauthorized(err) {
			return c.Redirect(p.LoginURL)
		}
		p.Log.Warn("delete failed", zap.Int("id", id), zap.Error(err))
		view := render.ConfirmView{
			ID:    id,
			Back:  back,
			Error: apierr.UserMessage(err, deleteFailedMessage),
			Prefs: p.prefs(c),
		}
		return sendHTML(c, errorStatus(err), func(w *fiber.Ctx) error { return p.Renderer.ConfirmDelete(w, view) })
	}

	q, _ := ctrl.State()
	v := q.PageValues(q.Page)
	v.Set("ok", "excluido")
	return c.Redirect("/?"+v.Encode(), fiber.StatusSeeOther)
}

// refererPath is the path of a same-host Referer, or "".
func refererPath(c *fiber.Ctx) string {
	u, err := url.Parse(c.Get(fiber.HeaderReferer))
	if err != nil || u.Host != string(c.Request().Host()) {
		return ""
	}
	return u.RequestURI()
}

func isListing(path string) bool {
	u, err := url.Parse(path)
	return err == nil && (u.Path == "/" || u.Path == "/home")
}

// errorStatus maps a backend error to the status the portal answers with.
func errorStatus(err error) int {
	if s := apierr.Status(err); s >= 400 {
		return s
	}
	var ve *apierr.ValidationError
	if errors.As(err, &ve) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusBadGateway
}
