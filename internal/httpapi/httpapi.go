// Package httpapi adapts the §6 HTTP surface to the Job Manager (C9),
// using Fiber exactly as the teacher's main.go wires it: BodyLimit set
// from config, logger and cors middleware.
package httpapi

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/catalinfl/ocrbatch/internal/cache"
	"github.com/catalinfl/ocrbatch/internal/config"
	"github.com/catalinfl/ocrbatch/internal/job"
	"github.com/catalinfl/ocrbatch/internal/logging"
)

// defaultOwner stands in for the session identity the source reads from
// Flask's session; authentication is out of scope (spec §1 Non-goals), so
// every request is attributed to a single implicit owner.
const defaultOwner = "default"

// Server wires the Job Manager, Cache Store, and Log Ring to fiber routes.
type Server struct {
	app     *fiber.App
	manager *job.Manager
	cache   *cache.Store
	ring    *logging.Ring
	logger  *logging.Logger
	cfg     *config.Config

	hangWarning time.Duration
}

// New builds a Server and registers every route from §6.
func New(cfg *config.Config, manager *job.Manager, store *cache.Store, ring *logging.Ring, log *logging.Logger) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.MaxUploadBytes),
	})
	app.Use(logger.New())
	app.Use(cors.New())

	s := &Server{
		app:         app,
		manager:     manager,
		cache:       store,
		ring:        ring,
		logger:      log,
		cfg:         cfg,
		hangWarning: time.Duration(cfg.HangWarningSecs) * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "OCR Batch Processing Service",
			"endpoints": []string{
				"POST /process",
				"GET /process-status/:id",
				"POST /cancel-process/:id",
				"GET /download/:id",
				"GET /download",
				"GET /logs",
				"GET /status",
				"GET /clear-cache",
			},
		})
	})
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": "ocrbatch"})
	})

	s.app.Post("/process", s.handleProcess)
	s.app.Get("/process-status/:id", s.handleProcessStatus)
	s.app.Post("/cancel-process/:id", s.handleCancelProcess)
	s.app.Get("/download/:id", s.handleDownload)
	s.app.Get("/download", s.handleDownloadLegacy)
	s.app.Get("/logs", s.handleLogs)
	s.app.Get("/status", s.handleStatus)
	s.app.Get("/clear-cache", s.handleClearCache)
}

// Listen starts the HTTP server on cfg.ListenAddr.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.ListenAddr)
}

// App exposes the underlying fiber app for tests that drive requests
// in-process (httptest-style, via app.Test).
func (s *Server) App() *fiber.App {
	return s.app
}

func downloadFilename(id string) string {
	return fmt.Sprintf("processed_files_%s.zip", id)
}
