package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ngasd/ngasd/internal/node"
)

// Online runs the Online transition and returns the reconciliation summary
func (h *Handler) Online(c *fiber.Ctx) error {
	start := time.Now()

	res, err := h.node.Online(c.UserContext())
	if err != nil {
		return err
	}

	h.logger.WithContext(c.UserContext()).Info("Node brought Online via admin API", "ip", c.IP())
	return c.JSON(node.Summarize(res, time.Since(start)))
}

// Offline runs the Offline transition
func (h *Handler) Offline(c *fiber.Ctx) error {
	if err := h.node.Offline(c.UserContext()); err != nil {
		return err
	}

	h.logger.WithContext(c.UserContext()).Info("Node brought Offline via admin API", "ip", c.IP())
	return c.JSON(h.node.Snapshot())
}

// State returns the node state and the last reconciliation summary
func (h *Handler) State(c *fiber.Ctx) error {
	return c.JSON(h.node.Snapshot())
}
