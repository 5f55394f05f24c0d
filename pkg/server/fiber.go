package server

import (
	"errors"
	"time"

	"newstech/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Options struct {
	Name        string
	CORSOrigins string
	BodyLimit   int
}

func NewApp(opts Options, log *zap.Logger) *fiber.App {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 16 << 20
	}
	app := fiber.New(fiber.Config{
		AppName:           opts.Name,
		ReduceMemoryUsage: true,
		BodyLimit:         opts.BodyLimit,
		ErrorHandler:      errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestLogger(log))
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New(middleware.CORSConfig(opts.CORSOrigins)))
	app.Use(middleware.Credentials)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": opts.Name})
	})

	return app
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "Erro interno."
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{"erro": msg})
	}
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= 500 {
			log.Warn("request", fields...)
		} else {
			log.Debug("request", fields...)
		}
		return err
	}
}
