package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the standardized API response envelope. Code mirrors the HTTP
// status so clients can branch on the body alone.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success sends a 200 response with the given data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

// SuccessMessage sends a 200 response with a custom message and no data.
func SuccessMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: message,
		Data:    nil,
	})
}

// Fail sends an error response derived from a domain error. Non-domain
// errors collapse to a generic 500.
func Fail(c *gin.Context, err error) {
	appErr := AsAppError(err)
	c.JSON(appErr.Status, Response{
		Code:    appErr.Status,
		Message: appErr.Message,
		Data:    nil,
	})
}

// FailWithFields sends a validation error with field-level details as data.
func FailWithFields(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    http.StatusBadRequest,
		Message: ErrValidation.Message,
		Data:    fields,
	})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, err error) {
	appErr := AsAppError(err)
	c.AbortWithStatusJSON(appErr.Status, Response{
		Code:    appErr.Status,
		Message: appErr.Message,
		Data:    nil,
	})
}
