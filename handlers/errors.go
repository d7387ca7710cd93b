package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"go.uber.org/zap"
)

type MessageResponse struct {
	Message string `json:"message" example:"Token revoked"`
}

// ErrorHandler renders flow errors as {"message": ...}. Causes of internal failures are
// logged and never sent to the client.
func ErrorHandler(logger *logging.Service) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err))
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, MessageResponse{Message: message})
		}
		if writeErr != nil {
			logger.Warn("failed to write error response", zap.Error(writeErr))
		}
	}
}

func classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, fmt.Sprint(he.Message)
	}

	switch apperror.Kind(err) {
	case apperror.KindInvalidCredentials:
		return http.StatusBadRequest, "Username or password is incorrect"
	case apperror.KindInvalidToken:
		return http.StatusBadRequest, "Invalid token"
	case apperror.KindValidation:
		var ve *apperror.ValidationError
		errors.As(err, &ve)
		return http.StatusBadRequest, ve.Message
	case apperror.KindNotFound:
		return http.StatusNotFound, "User not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
