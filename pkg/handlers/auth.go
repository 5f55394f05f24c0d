package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Me reports the login state of the browser's session, for page scripts.
func (p *Portal) Me(c *fiber.Ctx) error {
	me := p.me(c.UserContext())
	return c.JSON(fiber.Map{"logged": me.Logged, "user": me})
}

// Logout ends the upstream session and sends the browser to the login page.
func (p *Portal) Logout(c *fiber.Ctx) error {
	if p.Session != nil {
		if err := p.Session.Logout(c.UserContext()); err != nil {
			p.Log.Warn("upstream logout failed", zap.Error(err))
		}
	}
	return c.Redirect(p.LoginURL)
}
