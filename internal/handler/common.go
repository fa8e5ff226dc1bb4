package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ronalking182/errandpay/internal/models"
)

// Response helpers shared by the session and callback handlers.
func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}
