package handlers

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
)

const maxPreviewBytes = 2 << 20

// LinkPreview is the card the publish form shows for a pasted link.
type LinkPreview struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	URL         string `json:"url"`
}

// LinkPreview fetches a page and reads its Open Graph tags.
func (p *Portal) LinkPreview(c *fiber.Ctx) error {
	var req struct {
		URL string `json:"url" form:"url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"erro": "URL inválida"})
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"erro": "URL inválida"})
	}

	httpReq, err := http.NewRequestWithContext(c.UserContext(), http.MethodGet, u.String(), nil)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"erro": "URL inválida"})
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := p.HTTP.Do(httpReq)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"erro": "URL não acessível"})
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"erro": "URL não acessível"})
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPreviewBytes))
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"erro": "Erro ao ler conteúdo"})
	}
	return c.JSON(ExtractPreview(doc, u))
}

// ExtractPreview prefers og: tags and falls back to <title> and the
// description meta. Relative image URLs are resolved against base.
func ExtractPreview(doc *goquery.Document, base *url.URL) LinkPreview {
	meta := func(keys ...string) string {
		for _, k := range keys {
			sel := doc.Find(`meta[property="` + k + `"], meta[name="` + k + `"]`).First()
			if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	p := LinkPreview{
		Title:       meta("og:title", "twitter:title"),
		Description: meta("og:description", "description", "twitter:description"),
		URL:         base.String(),
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if img := meta("og:image", "twitter:image"); img != "" {
		if ref, err := url.Parse(img); err == nil {
			p.Image = base.ResolveReference(ref).String()
		}
	}
	return p
}
