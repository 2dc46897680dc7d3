package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrdadan/clinicprobe/internal/api"
	"github.com/ahrdadan/clinicprobe/internal/config"
	"github.com/ahrdadan/clinicprobe/internal/metrics"
	"github.com/ahrdadan/clinicprobe/internal/nats"
	"github.com/ahrdadan/clinicprobe/internal/queue"
	"github.com/ahrdadan/clinicprobe/internal/security"
)

const limiterCleanupInterval = 5 * time.Minute

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run verifications on demand over HTTP",
		Long: `Starts an HTTP server that queues verification runs (POST /runs), reports
their progress over SSE and WebSocket, serves their screenshots and exposes
Prometheus metrics. Runs execute one at a time.`,
		RunE: c.serve,
	}
	config.RegisterServerFlags(cmd.Flags())
	return cmd
}

func (c *cli) serve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts := c.cfg.BrowserOptions()

	launcher, err := c.newLauncher(opts, c.logger)
	if err != nil {
		return err
	}

	var sink queue.Sink
	if c.cfg.NATS.URL != "" {
		publisher, err := nats.Connect(ctx, nats.Config{
			URL:    c.cfg.NATS.URL,
			Stream: c.cfg.NATS.Stream,
		}, c.logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sink = publisher
	}

	recorder := metrics.NewRecorder()
	executor := &queue.VerificationExecutor{
		Launcher:      launcher,
		Plan:          c.cfg.Plan(),
		ArtifactsRoot: c.cfg.ArtifactsDir,
		ExpectTimeout: c.cfg.ExpectTimeout,
		Observer:      recorder,
		Logger:        c.logger,
	}

	manager := queue.NewManager(executor, queue.ManagerOptions{
		QueueSize: c.cfg.Server.QueueSize,
		ResultTTL: c.cfg.Server.ResultTTL,
		Sink:      sink,
		Logger:    c.logger,
	})
	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Stop()

	limiter := security.NewRateLimiter(security.RateLimitConfig{
		RequestsPerMinute: c.cfg.Server.RateLimit,
		Burst:             c.cfg.Server.RateBurst,
	})

	app := fiber.New(fiber.Config{
		AppName:               config.AppName,
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{Output: c.stderr}))
	app.Use(cors.New())

	api.SetupRoutes(app, manager, launcher, api.RouteConfig{
		BaseURL:      c.cfg.PublicURL(),
		Engine:       string(opts.Engine),
		ArtifactsDir: executor.ArtifactsDir,
		Metrics:      recorder.Handler(),
		RateLimiter:  limiter,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("Starting server",
			zap.String("addr", c.cfg.ListenAddr()),
			zap.String("engine", string(opts.Engine)),
			zap.Bool("nats", sink != nil))
		return app.Listen(c.cfg.ListenAddr())
	})
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("Shutting down server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	g.Go(func() error {
		sweepLimiter(gctx, limiter, c.logger)
		return nil
	})

	return g.Wait()
}

func sweepLimiter(ctx context.Context, limiter *security.RateLimiter, logger *zap.Logger) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Cleanup(); n > 0 {
				logger.Debug("Dropped idle rate limit clients", zap.Int("count", n))
			}
		}
	}
}
