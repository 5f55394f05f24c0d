package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newstech/pkg/api"
	"newstech/pkg/models"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// DevSecret signs view tokens when no secret is configured.
const DevSecret = "dev-secret-key-change-in-production"

const (
	LocalViewClaims = "view_claims"
	LocalCookie     = "cookie"
)

// ViewClaims seed the query state of a websocket view. Scope ties the
// token to the credentials of the page that embedded it.
type ViewClaims struct {
	Q     string `json:"q,omitempty"`
	Page  int    `json:"page"`
	Sort  string `json:"ordem,omitempty"`
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func (c ViewClaims) Query(perPage int) models.Query {
	return models.Query{
		Q:    c.Q,
		Page: c.Page,
		Sort: models.ParseSortOrder(c.Sort),
	}.Normalized(perPage)
}

type ViewTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewViewTokens(secret string, ttl time.Duration) *ViewTokens {
	if secret == "" {
		secret = DevSecret
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &ViewTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (v *ViewTokens) Sign(q models.Query, scope string) (string, error) {
	now := v.now()
	claims := ViewClaims{
		Q:     q.Q,
		Page:  q.Page,
		Sort:  string(q.Sort),
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *ViewTokens) Parse(token string) (ViewClaims, error) {
	var claims ViewClaims
	t, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return ViewClaims{}, err
	}
	if !t.Valid {
		return ViewClaims{}, errors.New("token inválido")
	}
	return claims, nil
}

// Credentials forwards the browser's cookies to every upstream call made
// with the request's user context.
func Credentials(c *fiber.Ctx) error {
	c.SetUserContext(api.WithCredentials(c.UserContext(), c.Get(fiber.HeaderCookie)))
	return c.Next()
}

// ViewAuth guards the websocket upgrade. The view token must be valid and
// belong to the same credentials that now open the socket.
func ViewAuth(tokens *ViewTokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		raw := c.Query("token")
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"erro": "Token não informado"})
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"erro": "Token inválido"})
		}
		cookie := c.Get(fiber.HeaderCookie)
		if claims.Scope != api.CredentialsScope(api.WithCredentials(context.Background(), cookie)) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"erro": "Token inválido"})
		}
		c.Locals(LocalViewClaims, claims)
		c.Locals(LocalCookie, cookie)
		return c.Next()
	}
}
