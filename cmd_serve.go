package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sticker-studio-server/modules/auth"
	"sticker-studio-server/modules/common/config"
	"sticker-studio-server/modules/common/database"
	"sticker-studio-server/modules/common/gemini"
	"sticker-studio-server/modules/common/middleware"
	redisutil "sticker-studio-server/modules/common/redis"
	"sticker-studio-server/modules/common/storage"
	"sticker-studio-server/modules/composer"
	"sticker-studio-server/modules/gallery"
	"sticker-studio-server/modules/notify"
	"sticker-studio-server/web"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web app, the generation worker and the event hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// routes - 라우터 구성에 필요한 핸들러 묶음
type routes struct {
	auth     *auth.Handler
	composer *composer.Handler
	gallery  *gallery.Handler
	hub      *notify.Hub
}

// newRouter - 공개 라우트 먼저, 나머지는 로그인 필요
func newRouter(h routes) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logger, middleware.Recover)

	r.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	h.auth.RegisterRoutes(r)
	h.hub.RegisterRoutes(r, h.auth.RequireUser)

	protected := r.NewRoute().Subrouter()
	protected.Use(h.auth.RequireUser)
	h.composer.RegisterRoutes(protected)
	h.gallery.RegisterRoutes(protected)

	return r
}

func runServer(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	styles, err := loadStyles(cfg)
	if err != nil {
		return err
	}

	rdb, err := redisutil.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := database.NewClient(cfg)
	if err != nil {
		return err
	}
	blobs := storage.NewClient(cfg)

	client, err := gemini.NewClient(ctx, geminiOptions(cfg))
	if err != nil {
		return err
	}

	queue := redisutil.NewQueue(rdb)
	service := composer.NewService(composer.Deps{
		Store:     db,
		Blobs:     blobs,
		Generator: composer.NewAdapter(client, styles),
		Queue:     queue,
		Events:    notify.NewPublisher(rdb),
		Styles:    styles,
		Timeout:   cfg.GenerationTimeout,
	})

	pages, err := web.NewRenderer()
	if err != nil {
		return err
	}

	hub := notify.NewHub()
	library := gallery.NewService(db, blobs)
	router := newRouter(routes{
		auth:     auth.NewHandler(db, auth.NewSessionStore(rdb, cfg.SessionTTL), pages, cfg.CookieSecure),
		composer: composer.NewHandler(service, library, pages),
		gallery:  gallery.NewHandler(library, pages),
		hub:      hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("🚀 Sticker studio server starting")
		log.Info().Msgf("📡 WebSocket endpoint: ws://localhost:%s/ws", cfg.Port)
		log.Info().Msgf("❤️  Health check: http://localhost:%s/health", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("🛑 Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return composer.NewWorker(queue, service, cfg.WorkerConcurrency).Run(gctx)
	})

	g.Go(func() error {
		return hub.Run(gctx, rdb)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("✅ Server stopped")
	return nil
}

func geminiOptions(cfg *config.Config) gemini.Options {
	return gemini.Options{
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.GeminiModel,
		Backend:  gemini.Backend(cfg.GeminiBackend),
		Project:  cfg.GoogleProject,
		Location: cfg.GoogleLocation,
	}
}
