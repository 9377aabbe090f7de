package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *errorPayload `json:"error,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    data,
	})
}

func fail(c echo.Context, code int, message string) error {
	return c.JSON(code, envelope{
		Success: false,
		Error:   &errorPayload{Message: message},
	})
}

func badRequest(c echo.Context, message string) error {
	return fail(c, http.StatusBadRequest, message)
}

func internalError(c echo.Context, message string) error {
	return fail(c, http.StatusInternalServerError, message)
}
