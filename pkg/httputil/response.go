package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jwalitptl/orderpay/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, err error) {
	var statusCode int
	message := "internal server error"

	appErr, ok := err.(*errors.AppError)
	if ok {
		message = appErr.Message
	}

	switch errors.Code(err) {
	case errors.ErrNotFound, errors.ErrAccountNotFound, errors.ErrOrderNotFound:
		statusCode = http.StatusNotFound
	case errors.ErrConflict, errors.ErrAccountAlreadyExists:
		statusCode = http.StatusConflict
	case errors.ErrBadRequest, errors.ErrInvalidAmount:
		statusCode = http.StatusBadRequest
	case errors.ErrInsufficientFunds:
		statusCode = http.StatusUnprocessableEntity
	default:
		statusCode = http.StatusInternalServerError
	}

	c.JSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:    int(errors.Code(err)),
			Message: message,
		},
	})
}
