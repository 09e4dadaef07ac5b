package handlers

import (
	"aaronromeo.com/inboxsweep/internal/connectivity"
	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

type status struct {
	Pending        int                 `json:"pending"`
	Durable        bool                `json:"durable"`
	SchedulerQueue int                 `json:"scheduler_queue"`
	UndoDepth      int                 `json:"undo_depth"`
	Items          int                 `json:"items"`
	Connectivity   connectivity.Status `json:"connectivity"`
}

type actionRequest struct {
	Type string `json:"type"`
	action.Target
}

type connectivityRequest struct {
	State string `json:"state"`
}

func (s *server) snapshot(c *fiber.Ctx) (status, error) {
	pending, err := s.Queue.Count(c.UserContext())
	if err != nil {
		return status{}, err
	}
	return status{
		Pending:        pending,
		Durable:        s.Queue.Available(),
		SchedulerQueue: s.Scheduler.Len(),
		UndoDepth:      s.Coordinator.UndoDepth(),
		Items:          s.Coordinator.Items().Len(),
		Connectivity:   s.Watcher.Status(),
	}, nil
}

// Home renders the status page
func (s *server) Home(c *fiber.Ctx) error {
	st, err := s.snapshot(c)
	if err != nil {
		return err
	}
	return c.Render("index", fiber.Map{
		"Title":   "inboxsweep",
		"Status":  st,
		"History": s.Coordinator.UndoHistory(),
	})
}

func (s *server) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *server) Status(c *fiber.Ctx) error {
	st, err := s.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *server) Items(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"items": s.Coordinator.Items().Items()})
}

func (s *server) Refresh(c *fiber.Ctx) error {
	n, err := s.Coordinator.Refresh(c.UserContext(), s.InboxLimit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"loaded": n})
}

// Apply runs one optimistic action
func (s *server) Apply(c *fiber.Ctx) error {
	var req actionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid action body: "+err.Error())
	}
	typ, err := action.ParseType(req.Type)
	if err != nil {
		return err
	}

	applied, err := s.Coordinator.Apply(c.UserContext(), typ, req.Target)
	if err != nil {
		return errors.Wrapf(err, "apply %s", typ)
	}
	return c.Status(fiber.StatusAccepted).JSON(applied)
}

func (s *server) Undo(c *fiber.Ctx) error {
	undone, err := s.Coordinator.UndoLast(c.UserContext())
	if err != nil {
		return errors.Wrap(err, "undo")
	}
	return c.JSON(fiber.Map{"undone": undone, "undo_depth": s.Coordinator.UndoDepth()})
}

func (s *server) Pending(c *fiber.Ctx) error {
	intents, err := s.Queue.ListPending(c.UserContext())
	if err != nil {
		return err
	}
	if intents == nil {
		intents = []action.Intent{}
	}
	return c.JSON(fiber.Map{"pending": intents, "count": len(intents), "durable": s.Queue.Available()})
}

func (s *server) Flush(c *fiber.Ctx) error {
	res, err := s.Queue.Flush(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Connectivity accepts online, offline and visible transitions from the client.
func (s *server) Connectivity(c *fiber.Ctx) error {
	var req connectivityRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid connectivity body: "+err.Error())
	}
	t, err := connectivity.ParseTransition(req.State)
	if err != nil {
		return err
	}
	s.Watcher.Report(c.UserContext(), t)
	return c.JSON(s.Watcher.Status())
}

// NotFound renders the 404 view
func (s *server) NotFound(c *fiber.Ctx) error {
	if c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMETextHTML {
		return c.Status(fiber.StatusNotFound).Render("404", fiber.Map{"Path": c.Path()})
	}
	return fiber.ErrNotFound
}
