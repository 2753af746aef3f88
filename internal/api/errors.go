package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/auth"
	"task-tracker/internal/model"
)

var errUnauthenticated = errors.New("unauthenticated")

type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// ErrorHandler maps domain errors onto HTTP responses. Unexpected errors are logged, never echoed.
func ErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := errorBody(err)
		if status == http.StatusInternalServerError {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Error("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.WithError(writeErr).Warn("write error response")
		}
	}
}

func errorBody(err error) (int, errorResponse) {
	var verr *model.ValidationError
	var herr *echo.HTTPError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, validationBody(verr)
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, errorResponse{Message: "Not found."}
	case errors.Is(err, errUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrRevokedToken):
		return http.StatusUnauthorized, errorResponse{Message: "Unauthenticated."}
	case errors.As(err, &herr):
		msg := http.StatusText(herr.Code)
		if s, ok := herr.Message.(string); ok && s != "" {
			msg = s
		} else if herr.Message != nil {
			msg = fmt.Sprint(herr.Message)
		}
		return herr.Code, errorResponse{Message: msg}
	default:
		return http.StatusInternalServerError, errorResponse{Message: "Server error."}
	}
}

// validationBody mirrors the {"message", "errors": {field: [msg]}} shape clients expect.
func validationBody(verr *model.ValidationError) errorResponse {
	fields := make([]string, 0, len(verr.Fields))
	for f := range verr.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	body := errorResponse{Message: "The given data was invalid.", Errors: make(map[string][]string, len(fields))}
	for i, f := range fields {
		if i == 0 {
			body.Message = verr.Fields[f]
		}
		body.Errors[f] = []string{verr.Fields[f]}
	}
	return body
}
