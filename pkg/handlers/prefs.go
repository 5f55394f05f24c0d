package handlers

import (
	"time"

	"newstech/pkg/prefs"

	"github.com/gofiber/fiber/v2"
)

const prefsMaxAge = 365 * 24 * time.Hour

func (p *Portal) ToggleSidebar(c *fiber.Ctx) error {
	pr := p.prefs(c).ToggleSidebar()
	setPref(c, prefs.SidebarCookie, pr.SidebarValue())
	return prefsResponse(c, pr)
}

// SetTheme applies the posted "tema" value, or toggles when none is given.
func (p *Portal) SetTheme(c *fiber.Ctx) error {
	pr := p.prefs(c)
	if raw := c.FormValue("tema"); raw != "" {
		t, ok := prefs.ParseTheme(raw)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"erro": "Tema inválido."})
		}
		pr.Theme = t
	} else {
		pr = pr.ToggleTheme()
	}
	setPref(c, prefs.ThemeCookie, string(pr.Theme))
	return prefsResponse(c, pr)
}

func setPref(c *fiber.Ctx, name, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(prefsMaxAge),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func prefsResponse(c *fiber.Ctx, pr prefs.Prefs) error {
	if c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
		return c.JSON(fiber.Map{prefs.SidebarCookie: pr.SidebarValue(), prefs.ThemeCookie: pr.Theme})
	}
	return c.Redirect(localPath(refererPath(c)), fiber.StatusSeeOther)
}
