package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/middleware"
)

// getUserID returns the authenticated user's id stored by JWTAuth.
func getUserID(c echo.Context) (string, error) {
	if v, ok := c.Get(middleware.CtxUserID).(string); ok && v != "" {
		return v, nil
	}
	return "", errUnauthorized
}

// bindValid binds the request body into v and runs the struct validator.
// Failures come back as InvalidArgument errors for respondError.
func bindValid(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, "invalid request body", err)
	}
	if err := c.Validate(v); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, validationMessage(err), err)
	}
	return nil
}
