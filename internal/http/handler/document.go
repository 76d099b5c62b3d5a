package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"vaultcore/internal/pipeline"
	"vaultcore/internal/service"
)

// beginUploadBody is the request body for reserving a direct upload.
type beginUploadBody struct {
	FileName    string  `json:"file_name"`
	ContentType string  `json:"content_type"`
	SizeBytes   int64   `json:"size_bytes"`
	FolderID    *string `json:"folder_id"`
}

// ListDocuments returns a tenant's documents with limit & offset, optionally
// scoped to a folder.
func ListDocuments(svc service.AdmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		var folderID *string
		if f := c.Query("folder_id"); f != "" {
			folderID = &f
		}

		res, err := svc.List(c.UserContext(), c.Params("tenant_id"), callerID(c), folderID, limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// UploadDocument admits and stores a document in one call
// (multipart/form-data, field name: file).
func UploadDocument(svc service.AdmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}
		var folderID *string
		if v := c.FormValue("folder_id"); v != "" {
			folderID = &v
		}

		doc, err := svc.Upload(c.UserContext(), service.UploadRequest{
			TenantID:    c.Params("tenant_id"),
			UserID:      callerID(c),
			FileName:    fh.Filename,
			ContentType: ct,
			SizeBytes:   fh.Size,
			FolderID:    folderID,
		}, f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// BeginUpload admits a direct upload and returns a presigned PUT URL.
func BeginUpload(svc service.AdmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body beginUploadBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		pending, err := svc.BeginUpload(c.UserContext(), service.UploadRequest{
			TenantID:    c.Params("tenant_id"),
			UserID:      callerID(c),
			FileName:    body.FileName,
			ContentType: body.ContentType,
			SizeBytes:   body.SizeBytes,
			FolderID:    body.FolderID,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(pending)
	}
}

// ConfirmUpload finalizes a direct upload after the client PUT the bytes.
// The body echoes the metadata from the begin call; the document row is
// created here, never before.
func ConfirmUpload(svc service.AdmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body beginUploadBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		doc, err := svc.ConfirmUpload(c.UserContext(), service.ConfirmUploadRequest{
			TenantID:    c.Params("tenant_id"),
			UserID:      callerID(c),
			UploadID:    c.Params("upload_id"),
			FileName:    body.FileName,
			ContentType: body.ContentType,
			SizeBytes:   body.SizeBytes,
			FolderID:    body.FolderID,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument returns a single document.
func GetDocument(svc service.AdmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := svc.Get(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DownloadDocument returns a time-limited download URL.
func DownloadDocument(svc service.AdmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		url, err := svc.PresignDownload(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"url": url, "expires_in_sec": int((15 * time.Minute).Seconds())})
	}
}

// DeleteDocument removes a document and releases its quota reservation.
func DeleteDocument(svc service.AdmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Delete(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ClassifyDocument runs the recognition pipeline for a document. Re-running
// a recognized document requires an explicit {"force": true} body.
func ClassifyDocument(cl *pipeline.Classifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Force bool `json:"force"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			}
		}

		run := cl.Process
		if body.Force {
			run = cl.Reprocess
		}
		out, err := run(c.UserContext(), c.Params("tenant_id"), c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(out)
	}
}

// RecoverDocument resolves a failed or deferred document with a recovery
// action: retry, manual_sort (folder_id picks the destination) or skip.
func RecoverDocument(cl *pipeline.Classifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Action   string `json:"action"`
			FolderID string `json:"folder_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
		out, err := cl.Recover(c.UserContext(), c.Params("tenant_id"), c.Params("id"), body.Action, body.FolderID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(out)
	}
}
