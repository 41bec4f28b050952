package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/conference-checkin/internal/service"
)

// requestTimeout bounds the storage work of one request.
const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// RequestValidator adapts the shared validator to echo.Validator so
// handlers can call c.Validate on their request bodies.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator returns the echo validator used by the router.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: service.Validator()}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// bindValid binds the JSON body into dst and validates it.  It writes the
// error response itself and reports whether the handler may continue.
func bindValid(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = "The " + fe.Field() + " field is invalid."
			if fe.Tag() == "required" {
				fields[fe.Field()] = "The " + fe.Field() + " field is required."
			}
		}
		return false, c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "errors": fields})
	}
	return true, nil
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badID(c echo.Context, name string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid " + name})
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindValidation, service.KindIneligible, service.KindCapacity:
		return http.StatusUnprocessableEntity
	case service.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail renders err.  Service errors keep their message and field map;
// anything else is logged and reported as a generic 500.
func fail(c echo.Context, op string, err error) error {
	var se *service.Error
	if errors.As(err, &se) {
		body := echo.Map{"error": se.Message}
		if len(se.Fields) > 0 {
			body["errors"] = se.Fields
		}
		return c.JSON(statusFor(se.Kind), body)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": op + " timed out"})
	}
	log.Printf("handler: %s: %v", op, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": op + " failed"})
}
