package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"mailpilot/internal/accounts"
	"mailpilot/internal/apperr"
	"mailpilot/internal/ledger"
	"mailpilot/internal/models"
)

func fail(c echo.Context, status int, message string, err error) error {
	resp := models.APIResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(status, resp)
}

// failFrom picks the status code for an engine error
func failFrom(c echo.Context, message string, err error) error {
	switch {
	case errors.Is(err, accounts.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		return fail(c, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrInvalidTransition):
		return fail(c, http.StatusConflict, message, err)
	case apperr.IsConfig(err):
		return fail(c, http.StatusBadRequest, apperr.Describe(err), err)
	}
	return fail(c, http.StatusInternalServerError, message, err)
}
