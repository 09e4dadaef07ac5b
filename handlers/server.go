package handlers

import (
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"aaronromeo.com/inboxsweep/internal/connectivity"
	"aaronromeo.com/inboxsweep/internal/optimistic"
	"aaronromeo.com/inboxsweep/internal/queue"
	"aaronromeo.com/inboxsweep/internal/scheduler"
	"aaronromeo.com/inboxsweep/pkg/base"
	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
)

//go:embed views/*.html
var views embed.FS

// Deps are the components the control surface drives.
type Deps struct {
	Coordinator *optimistic.Coordinator
	Queue       *queue.Queue
	Scheduler   *scheduler.Scheduler
	Watcher     *connectivity.Watcher
	Logger      *slog.Logger
	// InboxLimit bounds POST /items/refresh.
	InboxLimit int
}

type server struct {
	Deps
}

// New builds the Fiber app serving the status page and the JSON control API.
func New(deps Deps) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &server{Deps: deps}

	sub, err := fs.Sub(views, "views")
	if err != nil {
		panic(err)
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")

	app := fiber.New(fiber.Config{
		Views:                 engine,
		ErrorHandler:          s.handleError,
		DisableStartupMessage: true,
	})
	app.Use(otelfiber.Middleware())

	app.Get("/", s.Home)
	app.Get("/healthz", s.Health)
	app.Get("/status", s.Status)
	app.Get("/items", s.Items)
	app.Post("/items/refresh", s.Refresh)
	app.Post("/actions", s.Apply)
	app.Post("/undo", s.Undo)
	app.Get("/queue", s.Pending)
	app.Post("/queue/flush", s.Flush)
	app.Post("/connectivity", s.Connectivity)
	app.Use(s.NotFound)

	return app
}

// StatusCode maps an error onto the HTTP status the API reports for it.
func StatusCode(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, base.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, base.ErrUndoImpossible), errors.Is(err, base.ErrFlushInProgress):
		return fiber.StatusConflict
	case errors.Is(err, base.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusBadGateway
	}
}

func (s *server) handleError(c *fiber.Ctx, err error) error {
	code := StatusCode(err)
	if code >= fiber.StatusInternalServerError {
		s.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Any("error", err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
