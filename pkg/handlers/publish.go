package handlers

import (
	"errors"
	"io"
	"mime/multipart"

	"newstech/pkg/models"
	"newstech/pkg/publish"
	"newstech/pkg/render"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxImageBytes = 8 << 20

var errImageTooLarge = errors.New("image exceeds 8 MiB")

// imageFields are the accepted names of the file input, newest first.
var imageFields = []string{"image", "imagem"}

func (p *Portal) newForm() *publish.Form {
	return publish.NewForm(p.Backend, p.Session, p.LoginURL, p.Log)
}

// PublishForm shows the empty form, or the post of ?id= for editing.
// Anonymous users are sent to the login page.
func (p *Portal) PublishForm(c *fiber.Ctx) error {
	id, err := publish.ParseID(c.Query("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "ID inválido.")
	}
	ctx := c.UserContext()
	form := p.newForm()

	out, err := form.Gate(ctx)
	if err != nil {
		p.Log.Warn("session check failed", zap.Error(err))
		return p.renderForm(c, fiber.StatusBadGateway, form, id, "Falha de rede ou tempo esgotado.")
	}
	if out.Redirect != "" {
		return c.Redirect(out.Redirect)
	}

	status := fiber.StatusOK
	if id > 0 {
		out, err = form.Load(ctx, id)
		if out.Redirect != "" {
			return c.Redirect(out.Redirect)
		}
		if err != nil {
			status = errorStatus(err)
		}
	}
	return p.renderForm(c, status, form, id, "")
}

// Publish creates or updates a post from the multipart form.
func (p *Portal) Publish(c *fiber.Ctx) error {
	id, err := publish.ParseID(c.FormValue("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "ID inválido.")
	}
	ctx := c.UserContext()
	form := p.newForm()

	out, err := form.Gate(ctx)
	if err != nil {
		p.Log.Warn("session check failed", zap.Error(err))
		return p.renderForm(c, fiber.StatusBadGateway, form, id, "Falha de rede ou tempo esgotado.")
	}
	if out.Redirect != "" {
		return c.Redirect(out.Redirect, fiber.StatusSeeOther)
	}

	image, err := formImage(c)
	if errors.Is(err, errImageTooLarge) {
		return p.renderForm(c, fiber.StatusRequestEntityTooLarge, form, id, "Imagem muito grande (máximo 8 MB).")
	}
	if err != nil {
		p.Log.Debug("reading upload", zap.Error(err))
		return p.renderForm(c, fiber.StatusBadRequest, form, id, "Não foi possível ler a imagem.")
	}

	fields := models.PostFields{
		Titulo:   c.FormValue("titulo"),
		Autor:    c.FormValue("autor"),
		Conteudo: c.FormValue("conteudo"),
	}
	out, err = form.Submit(ctx, id, fields, image)
	if out.Redirect == p.LoginURL {
		return c.Redirect(out.Redirect, fiber.StatusSeeOther)
	}
	if err != nil {
		return p.renderForm(c, errorStatus(err), form, id, "")
	}
	return c.Redirect(out.Redirect+"?ok=salvo", fiber.StatusSeeOther)
}

func (p *Portal) renderForm(c *fiber.Ctx, status int, form *publish.Form, id int, message string) error {
	snap := form.Snapshot()
	if message == "" {
		message = snap.Message()
	}
	view := render.PublishView{
		ID:           id,
		Fields:       snap.Fields,
		AuthorLocked: snap.AuthorLocked,
		ImageURL:     snap.ImageURL,
		Error:        message,
		Prefs:        p.prefs(c),
	}
	return sendHTML(c, status, func(w *fiber.Ctx) error { return p.Renderer.Publish(w, view) })
}

// formImage returns the uploaded file, or nil when none was sent. Files over
// maxImageBytes fail with errImageTooLarge.
func formImage(c *fiber.Ctx) (*models.ImageFile, error) {
	mf, err := c.MultipartForm()
	if err != nil {
		return nil, nil
	}
	var fh *multipart.FileHeader
	for _, name := range imageFields {
		if files := mf.File[name]; len(files) > 0 && files[0].Size > 0 {
			fh = files[0]
			break
		}
	}
	if fh == nil {
		return nil, nil
	}
	if fh.Size > maxImageBytes {
		return nil, errImageTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, errImageTooLarge
	}
	return &models.ImageFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
