// Package server exposes the capacity document over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"capplan/internal/server/middleware"
	"capplan/internal/service"
)

// DefaultRequestTimeout bounds how long a handler waits for its write.
const DefaultRequestTimeout = 10 * time.Second

// ActorHeader names the caller recorded on allocation history.
const ActorHeader = "X-Actor"

// Options configures the HTTP surface.
type Options struct {
	RequestTimeout time.Duration
	// Gatherer backs GET /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

// Server owns the fiber app and its handlers.
type Server struct {
	app     *fiber.App
	svc     *service.Service
	timeout time.Duration
	log     *zap.SugaredLogger
}

// New builds the fiber app with every route registered.
func New(svc *service.Service, opts Options, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		svc:     svc,
		timeout: opts.RequestTimeout,
		log:     log.Named("server"),
	}
	app := fiber.New(fiber.Config{
		AppName:               "capplan",
		DisableStartupMessage: true,
		ReadTimeout:           opts.RequestTimeout,
		WriteTimeout:          opts.RequestTimeout,
		BodyLimit:             32 << 20,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(s.log))

	app.Get("/health", s.health)
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	app.Get("/data", s.getData)
	app.Get("/collections/:name", s.getCollection)
	app.Get("/backups", s.listBackups)
	app.Get("/report/gaps", s.gaps)
	app.Get("/export/workbook", s.workbook)
	app.Post("/restore/:filename", s.restore)
	app.Post("/import/hubspot-email", s.importHubSpot)
	app.Post("/:collection", s.replaceCollection)

	s.app = app
	return s
}

// App returns the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Infow("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.timeout)
}
