package prefs

import "testing"

func getter(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromCookies(t *testing.T) {
	p := FromCookies(getter(map[string]string{SidebarCookie: "1", ThemeCookie: "escuro"}))
	if !p.SidebarOpen || p.Theme != ThemeDark {
		t.Errorf("unexpected prefs %+v", p)
	}

	p = FromCookies(getter(map[string]string{SidebarCookie: "yes", ThemeCookie: "roxo"}))
	if p.SidebarOpen || p.Theme != ThemeLight {
		t.Errorf("expected defaults, got %+v", p)
	}
}

func TestToggles(t *testing.T) {
	p := Prefs{Theme: ThemeLight}
	p = p.ToggleSidebar()
	if p.SidebarValue() != "1" {
		t.Errorf("expected open sidebar, got %q", p.SidebarValue())
	}
	p = p.ToggleSidebar().ToggleTheme()
	if p.SidebarValue() != "0" || p.Theme != ThemeDark {
		t.Errorf("unexpected prefs %+v", p)
	}
	if _, ok := ParseTheme("roxo"); ok {
		t.Error("unknown theme accepted")
	}
}
