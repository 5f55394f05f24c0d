package handlers

import (
	"newstech/pkg/hub"
	"newstech/pkg/middleware"

	"github.com/gofiber/contrib/websocket"
)

// serveView runs after ViewAuth has checked the token.
func (p *Portal) serveView(conn *websocket.Conn) {
	claims, _ := conn.Locals(middleware.LocalViewClaims).(middleware.ViewClaims)
	cookie, _ := conn.Locals(middleware.LocalCookie).(string)
	p.Hub.Serve(conn, hub.Start{
		Query:       claims.Query(p.PerPage),
		Credentials: cookie,
	})
}
