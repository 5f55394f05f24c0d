package handlers

import (
	"errors"

	"newstech/pkg/api"
	"newstech/pkg/chat"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatMessage proxies one message to the assistant. Accepts JSON or a
// plain form post with a "message" field.
func (p *Portal) ChatMessage(c *fiber.Ctx) error {
	var req struct {
		Message string `json:"message" form:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"erro": "Requisição inválida."})
	}

	ctx := c.UserContext()
	sess := p.Chat.Get(api.CredentialsScope(ctx))
	reply, err := sess.Send(ctx, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmpty):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"erro": "Mensagem vazia."})
	case errors.Is(err, chat.ErrSuperseded):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"erro": "Substituída por uma mensagem mais recente."})
	case err != nil:
		p.Log.Warn("chat failed", zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"erro": chat.ErrorLine(err)})
	}
	return c.JSON(fiber.Map{"reply": reply})
}
