package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// CtxInternalError is where writeError leaves an unexpected error for the
// request logger.
const CtxInternalError = "internal_error"

const requestTimeout = 5 * time.Second

var statusByCode = map[string]int{
	model.CodeAuthenticationRequired: http.StatusUnauthorized,
	model.CodeForbidden:              http.StatusForbidden,
	model.CodeNotFound:               http.StatusNotFound,
	model.CodeDuplicateBooking:       http.StatusConflict,
	model.CodeRoomUnavailable:        http.StatusConflict,
	model.CodeHoldExpired:            http.StatusConflict,
	model.CodeInvalidTransition:      http.StatusConflict,
	model.CodePaymentSession:         http.StatusBadGateway,
	model.CodeInvalidRequest:         http.StatusBadRequest,
	model.CodeBackend:                http.StatusInternalServerError,
}

// writeError is the single place errors become HTTP responses.
func writeError(c echo.Context, err error) error {
	code := model.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := err.Error()
	if code == model.CodeBackend {
		c.Set(CtxInternalError, err)
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// getUserID returns the caller set by middleware.JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := c.Get("user_id").(uint64); ok && id != 0 {
		return id, nil
	}
	return 0, model.ErrAuthenticationRequired
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, invalid("invalid %s", name)
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) int {
	if n, err := strconv.Atoi(c.QueryParam(name)); err == nil {
		return n
	}
	return def
}

// bind decodes the body into v and runs struct validation.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return invalid("malformed body")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(v)
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// RequestValidator adapts go-playground/validator to echo.Validator.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate reports the first failing field as an invalid_request error.
func (rv *RequestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalid("%s failed %s", fe.Field(), fe.Tag())
	}
	return invalid("%v", err)
}
