// Package portal wires configuration into a running frontend: the backend
// (remote API or offline store), caches, live updates and the fiber app.
package portal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"newstech/pkg/api"
	"newstech/pkg/broker"
	"newstech/pkg/cache"
	"newstech/pkg/chat"
	"newstech/pkg/config"
	"newstech/pkg/database"
	"newstech/pkg/envelope"
	"newstech/pkg/feeds"
	"newstech/pkg/handlers"
	"newstech/pkg/hub"
	"newstech/pkg/images"
	"newstech/pkg/listing"
	"newstech/pkg/middleware"
	"newstech/pkg/render"
	"newstech/pkg/repository"
	"newstech/pkg/server"
	"newstech/pkg/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runtime holds the long-lived resources shared by the server and the CLI.
type Runtime struct {
	Config *config.Config
	Log    *zap.Logger
	Redis  *cache.Redis
	DB     *sql.DB

	// Backend is the raw store: the API client or the offline repository.
	Backend api.Backend
	// Session is nil in offline mode.
	Session api.Session

	hub    *hub.Hub
	broker *broker.Broker
}

// Open connects redis (when configured) and the backend selected by
// cfg.Mode. Redis failures are logged and the portal runs uncached.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rt := &Runtime{Config: cfg, Log: log}

	rc, err := cache.New(ctx, cfg.Redis.URL)
	if err != nil {
		log.Warn("redis unavailable, running without cache", zap.Error(err))
	} else if rc != nil {
		log.Info("redis connected")
		rt.Redis = rc
	}

	switch cfg.Mode {
	case config.ModeOffline:
		dbLog := log.Named("db")
		db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, dbLog)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.DB = db
		if err := database.Migrate(ctx, db, cfg.Database.Driver, dbLog); err != nil {
			rt.Close()
			return nil, err
		}
		rt.Backend = repository.NewPostsRepository(db, cfg.Server.UploadsDir, dbLog)
		log.Info("offline store ready", zap.String("driver", cfg.Database.Driver))
	default:
		client, err := api.New(cfg.API.BaseURL,
			api.WithPostsPath(cfg.API.PostsPath),
			api.WithImageField(cfg.API.ImageField),
			api.WithTimeout(cfg.API.Timeout),
			api.WithLogger(log.Named("api")),
		)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("api client: %w", err)
		}
		rt.Backend = client
		rt.Session = client
		log.Info("using remote API", zap.String("base_url", cfg.API.BaseURL))
	}
	return rt, nil
}

// Chat returns the assistant client for the configured API, or nil in
// offline mode where there is no assistant.
func (rt *Runtime) Chat() (*chat.Client, error) {
	if rt.Config.Mode == config.ModeOffline {
		return nil, nil
	}
	return chat.NewClient(rt.Config.API.BaseURL,
		chat.WithTimeout(rt.Config.Chat.Timeout),
		chat.WithBackoff(rt.Config.Chat.Backoff),
		chat.WithLogger(rt.Log.Named("chat")),
	)
}

func (rt *Runtime) Feeds() *feeds.Fetcher {
	f := feeds.NewFetcher(nil, nil, rt.Redis, rt.Log.Named("feeds"))
	f.SetCacheTTL(rt.Config.Feeds.TTL)
	return f
}

func (rt *Runtime) Renderer() (*render.Renderer, error) {
	opts := render.DefaultOptions()
	opts.AboveTheFold = rt.Config.List.AboveTheFold
	opts.AspectRatio = rt.Config.List.AspectRatio
	opts.TruncateAt = rt.Config.List.TruncateAt
	return render.New(opts, rt.Config.List.Window)
}

// App builds the fiber app with every route registered. It also starts the
// cross-instance subscription, which Close stops.
func (rt *Runtime) App(ctx context.Context) (*fiber.App, error) {
	cfg := rt.Config

	renderer, err := rt.Renderer()
	if err != nil {
		return nil, err
	}
	assistant, err := rt.Chat()
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}

	var prober listing.Prober
	if cfg.List.ProbeImages {
		ip := images.NewProber(nil, rt.Redis, rt.Log.Named("images"))
		if base := cfg.List.ImageBaseURL; base != "" {
			if err := ip.SetBase(base); err != nil {
				return nil, err
			}
		}
		prober = ip
	}

	backend := services.NewPostsService(rt.Backend, rt.Redis, nil)
	hubDeps := hub.Deps{
		Backend:  backend,
		Renderer: renderer,
		Prober:   prober,
		PerPage:  cfg.List.PerPage,
		Debounce: cfg.List.Debounce,
	}
	if assistant != nil {
		hubDeps.Asker = assistant
	}
	rt.hub = hub.New(hubDeps, rt.Log.Named("hub"))

	rt.broker = broker.New(rt.Redis.Client(), uuid.NewString(), rt.Log.Named("broker"))
	rt.broker.On(broker.ActionChange, func(env envelope.Envelope) {
		ch, err := envelope.ParseData[broker.Change](env)
		if err != nil {
			return
		}
		rt.hub.PostsChanged(ctx, ch.PostID, ch.Action)
	})
	if err := rt.broker.Subscribe(ctx); err != nil {
		rt.Log.Warn("cross-instance updates disabled", zap.Error(err))
	}
	backend.SetNotifier(services.Notifiers{rt.hub, rt.broker})

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		rt.Log.Warn("auth.jwt_secret not set, using the development secret")
	}

	deps := handlers.Deps{
		Backend:       backend,
		Renderer:      renderer,
		Tokens:        middleware.NewViewTokens(secret, cfg.Auth.TokenTTL),
		Prober:        prober,
		Feeds:         rt.Feeds(),
		Hub:           rt.hub,
		PerPage:       cfg.List.PerPage,
		LoginURL:      cfg.Server.LoginURL,
		ChatRateLimit: cfg.Server.ChatRateLimit,
		Log:           rt.Log.Named("portal"),
	}
	if rt.Session != nil {
		deps.Session = rt.Session
	}
	if assistant != nil {
		deps.Chat = chat.NewSessions(assistant, 30*time.Minute)
	}
	if cfg.Mode == config.ModeOffline {
		deps.UploadsDir = cfg.Server.UploadsDir
	}

	app := server.NewApp(server.Options{
		Name:        "portal",
		CORSOrigins: cfg.Server.CORSOrigins,
	}, rt.Log.Named("http"))
	handlers.New(deps).Register(app)
	app.Get("/hub/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"clients": rt.hub.ClientCount()})
	})
	return app, nil
}

// Serve listens on cfg.Server.Addr until ctx is canceled, then drains open
// requests for up to ten seconds.
func (rt *Runtime) Serve(ctx context.Context) error {
	app, err := rt.App(ctx)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		rt.Log.Info("server starting", zap.String("addr", rt.Config.Server.Addr), zap.String("mode", rt.Config.Mode))
		errc <- app.Listen(rt.Config.Server.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	rt.Log.Info("shutting down")
	if rt.hub != nil {
		rt.hub.Close()
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	return <-errc
}

func (rt *Runtime) Close() {
	rt.broker.Close()
	rt.Redis.Close()
	if rt.DB != nil {
		if err := rt.DB.Close(); err != nil {
			rt.Log.Warn("closing database", zap.Error(err))
		}
	}
}
