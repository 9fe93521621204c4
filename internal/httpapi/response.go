package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
)

// SuccessResponse is the JSON envelope for successful calls.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the JSON envelope for failed calls.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

func accepted(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusAccepted, SuccessResponse{Success: true, Message: message, Data: data})
}

func created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: message})
}

func unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Success: false, Error: message})
}

func notFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: message})
}

// writeError maps service-layer sentinel errors onto HTTP statuses. Internal
// error details never reach the client on 5xx; the request id ties the
// response to the server log line.
func writeError(c echo.Context, err error) error {
	switch {
	case apperrors.IsValidationError(err), apperrors.IsBadRequestError(err):
		return badRequest(c, err.Error())
	case apperrors.IsUnauthorizedError(err):
		return unauthorized(c, "missing or insufficient credentials")
	case apperrors.IsNotFoundError(err), apperrors.IsExpiredError(err):
		return notFound(c, err.Error())
	case apperrors.IsTimeoutError(err):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Success: false, Error: "service busy, retry later"})
	default:
		logger.FromContext(c.Request().Context()).Error("Unhandled error in HTTP handler",
			zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "internal server error"})
	}
}
