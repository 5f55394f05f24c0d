package handlers

import (
	"errors"

	"newstech/pkg/feeds"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GET /feeds/:category/:sub/:region?
func (p *Portal) FeedItems(c *fiber.Ctx) error {
	items, err := p.Feeds.Fetch(c.UserContext(), c.Params("category"), c.Params("sub"), c.Params("region"), c.QueryInt("limit", 0))
	if err != nil {
		var le *feeds.LookupError
		if errors.As(err, &le) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"erro": le.Message})
		}
		p.Log.Warn("feeds failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"erro": "Erro ao carregar os feeds."})
	}
	return c.JSON(fiber.Map{"items": items, "total": len(items)})
}
