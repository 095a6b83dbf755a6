package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ngasd/ngasd/internal/disks"
	"github.com/ngasd/ngasd/internal/models"
)

// ListDisks lists the disk records, optionally filtered by host_id and mounted
func (h *Handler) ListDisks(c *fiber.Ctx) error {
	all, err := h.gateway.ListDisks(c.UserContext())
	if err != nil {
		return err
	}

	hostID := c.Query("host_id")
	mounted := c.Query("mounted")

	out := make([]*models.DiskRecord, 0, len(all))
	for _, d := range all {
		if hostID != "" && d.HostID != hostID {
			continue
		}
		if mounted != "" && d.Mounted != (mounted == "true") {
			continue
		}
		out = append(out, d)
	}

	return c.JSON(models.DiskListResponse{Disks: out, Count: len(out)})
}

// GetDisk returns one disk record
func (h *Handler) GetDisk(c *fiber.Ctx) error {
	disk, err := h.gateway.ReadDisk(c.UserContext(), c.Params("disk_id"))
	if err != nil {
		return err
	}
	return c.JSON(disk)
}

// StreamDisks lists the disks of this node eligible for the mime_type query parameter
func (h *Handler) StreamDisks(c *fiber.Ctx) error {
	mimeType := c.Query("mime_type")
	if mimeType == "" {
		return fiber.NewError(fiber.StatusBadRequest, "mime_type is required")
	}

	recs, err := h.node.DiskInfoForMimeType(c.UserContext(), mimeType)
	if err != nil {
		return err
	}
	return c.JSON(models.DiskListResponse{Disks: recs, Count: len(recs)})
}

// FindTargetDisk selects the disk the next file of a mime-type goes to
func (h *Handler) FindTargetDisk(c *fiber.Ctx) error {
	var req models.TargetDiskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	req.MimeType = strings.TrimSpace(req.MimeType)
	if req.MimeType == "" {
		return fiber.NewError(fiber.StatusBadRequest, "mime_type is required")
	}
	if req.RequiredBytes < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "required_bytes must not be negative")
	}

	disk, err := h.node.FindTargetDisk(c.UserContext(), disks.TargetRequest{
		MimeType:             req.MimeType,
		ExemptDiskIDs:        req.ExemptDiskIDs,
		Caching:              req.Caching,
		RequiredBytes:        req.RequiredBytes,
		SuppressNotification: req.SuppressNotification,
	})
	if err != nil {
		return err
	}
	return c.JSON(disk)
}

// UpdateDiskStatus records a file written to a disk
func (h *Handler) UpdateDiskStatus(c *fiber.Ctx) error {
	var req models.DiskStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.FileSize < 0 || req.IOTime < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "file_size and io_time must not be negative")
	}

	disk, err := h.node.UpdateDiskStatus(c.UserContext(), disks.StatusUpdate{
		DiskID:     c.Params("disk_id"),
		FileExists: req.FileExists,
		FileSize:   req.FileSize,
		IOTime:     req.IOTime,
	})
	if err != nil {
		return err
	}
	return c.JSON(disk)
}

// ResetCache drops the target disk cache
func (h *Handler) ResetCache(c *fiber.Ctx) error {
	h.node.ResetCache()
	return c.JSON(fiber.Map{"success": true})
}
