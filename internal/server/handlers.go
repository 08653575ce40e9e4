package server

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"capplan/internal/document"
	"capplan/internal/writer"
	"capplan/pkg/capacity"
)

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// getData returns the whole document in its persisted form.
func (s *Server) getData(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	doc, err := s.svc.Document(ctx)
	if err != nil {
		return writeError(c, err)
	}
	data, err := document.Encode(doc)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Send(data)
}

func (s *Server) getCollection(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	coll, err := s.svc.Collection(ctx, c.Params("name"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(coll)
}

func (s *Server) listBackups(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	var (
		names []string
		err   error
	)
	if c.QueryBool("archived") {
		names, err = s.svc.ArchivedBackups(ctx)
	} else {
		names, err = s.svc.Backups(ctx)
	}
	if err != nil {
		return writeError(c, err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(names)
}

func (s *Server) gaps(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	gaps, err := s.svc.Gaps(ctx)
	if err != nil {
		return writeError(c, err)
	}
	if gaps == nil {
		gaps = []capacity.ReferentialGap{}
	}
	return c.JSON(gaps)
}

func (s *Server) workbook(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	var buf bytes.Buffer
	if err := s.svc.Workbook(ctx, &buf); err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="capacity.xlsx"`)
	return c.Send(buf.Bytes())
}

// writeResponse reports a completed write.
type writeResponse struct {
	OK     bool    `json:"ok"`
	Backup *string `json:"backup"`
	Bytes  int     `json:"bytes"`
}

func newWriteResponse(res writer.Result) writeResponse {
	out := writeResponse{OK: true, Bytes: res.Bytes}
	if res.Backup != nil {
		name := res.Backup.Name
		out.Backup = &name
	}
	return out
}

func (s *Server) replaceCollection(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	name := c.Params("collection")
	res, err := s.svc.ReplaceCollection(ctx, name, c.Body(), c.Get(ActorHeader))
	if err != nil {
		s.log.Warnw("collection replace failed", "collection", name, "error", err)
		return writeError(c, err)
	}
	return c.JSON(newWriteResponse(res))
}

func (s *Server) restore(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	name := c.Params("filename")
	res, err := s.svc.Restore(ctx, name)
	if err != nil {
		return writeError(c, err)
	}
	s.log.Infow("backup restored", "name", name)
	return c.JSON(fiber.Map{"ok": true, "restored": name, "backup": newWriteResponse(res).Backup})
}

type importRequest struct {
	EmailContent string `json:"emailContent"`
}

func (s *Server) importHubSpot(c *fiber.Ctx) error {
	var body importRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(body.EmailContent) == "" {
		return badRequest(c, "emailContent is required")
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	project, res, err := s.svc.ImportHubSpotEmail(ctx, body.EmailContent)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"ok": true, "project": project, "backup": newWriteResponse(res).Backup})
}
