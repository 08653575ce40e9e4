package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"capplan/internal/service"
	"capplan/pkg/capacity"
)

// Error codes returned in the body of failed requests.
const (
	CodeInvalidArgument        = "INVALID_ARGUMENT"
	CodeUnknownCollection      = "UNKNOWN_COLLECTION"
	CodeBackupNotFound         = "BACKUP_NOT_FOUND"
	CodeHistoryRewrite         = "HISTORY_REWRITE"
	CodeCorruptDocument        = "CORRUPT_DOCUMENT"
	CodeSerializationInvariant = "SERIALIZATION_INVARIANT"
	CodeIOFailure              = "IO_FAILURE"
	CodeUnavailable            = "UNAVAILABLE"
	CodeTimeout                = "TIMEOUT"
	CodeInternal               = "INTERNAL"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Step names the write protocol step that
// failed, when there was one.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
}

func writeError(c *fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	code := CodeInternal

	switch {
	case errors.Is(err, capacity.ErrUnknownCollection):
		status, code = http.StatusNotFound, CodeUnknownCollection
	case errors.Is(err, capacity.ErrInvalidArgument):
		status, code = http.StatusBadRequest, CodeInvalidArgument
	case errors.Is(err, capacity.ErrBackupNotFound):
		status, code = http.StatusNotFound, CodeBackupNotFound
	case errors.Is(err, capacity.ErrHistoryRewrite):
		status, code = http.StatusConflict, CodeHistoryRewrite
	case errors.Is(err, capacity.ErrCorruptDocument):
		code = CodeCorruptDocument
	case errors.Is(err, capacity.ErrSerializationInvariant):
		code = CodeSerializationInvariant
	case errors.Is(err, capacity.ErrIO):
		code = CodeIOFailure
	case errors.Is(err, capacity.ErrSerializerClosed), errors.Is(err, service.ErrNoMirror):
		status, code = http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, CodeTimeout
	}

	detail := ErrorDetail{Code: code, Message: err.Error()}
	var step *capacity.StepError
	if errors.As(err, &step) {
		detail.Step = string(step.Step)
	}
	return c.Status(status).JSON(ErrorBody{Error: detail})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorBody{Error: ErrorDetail{Code: CodeInvalidArgument, Message: msg}})
}
