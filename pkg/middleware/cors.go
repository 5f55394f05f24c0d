package middleware

import (
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func CORSConfig(origins string) cors.Config {
	if origins == "" {
		origins = "*"
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "POST,GET,OPTIONS",
		AllowHeaders:     "Content-Type,Cache-Control,Pragma",
		AllowCredentials: origins != "*",
	}
}
