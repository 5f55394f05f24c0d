// Package prefs holds the per-browser UI preferences kept in cookies.
package prefs

const (
	SidebarCookie = "sidebar-open"
	ThemeCookie   = "tema"
)

type Theme string

const (
	ThemeDark  Theme = "escuro"
	ThemeLight Theme = "claro"
)

type Prefs struct {
	SidebarOpen bool
	Theme       Theme
}

// FromCookies reads preferences through a cookie getter. Anything
// unexpected falls back to a closed sidebar and the light theme.
func FromCookies(get func(name string) string) Prefs {
	p := Prefs{Theme: ThemeLight}
	p.SidebarOpen = get(SidebarCookie) == "1"
	if Theme(get(ThemeCookie)) == ThemeDark {
		p.Theme = ThemeDark
	}
	return p
}

func (p Prefs) SidebarValue() string {
	if p.SidebarOpen {
		return "1"
	}
	return "0"
}

func (p Prefs) ToggleSidebar() Prefs {
	p.SidebarOpen = !p.SidebarOpen
	return p
}

func (p Prefs) ToggleTheme() Prefs {
	if p.Theme == ThemeDark {
		p.Theme = ThemeLight
	} else {
		p.Theme = ThemeDark
	}
	return p
}

// ParseTheme accepts only the two known values.
func ParseTheme(s string) (Theme, bool) {
	switch Theme(s) {
	case ThemeDark, ThemeLight:
		return Theme(s), true
	}
	return "", false
}
