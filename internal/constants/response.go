package constants

import "github.com/gin-gonic/gin"

// Standard response field keys
const (
	ResponseFieldMessage = "message"
	ResponseFieldDetails = "details"
	ResponseFieldError   = "error"
	ResponseFieldSuccess = "success"
	ResponseFieldData    = "data"
)

// BuildSuccessResponse builds a success-shaped JSON body.
func BuildSuccessResponse(message string, data any) gin.H {
	resp := gin.H{
		ResponseFieldSuccess: true,
		ResponseFieldMessage: message,
	}
	if data != nil {
		resp[ResponseFieldData] = data
	}
	return resp
}

// BuildErrorResponse builds an error-shaped JSON body. Details are optional
// and must already be sanitized; internal errors never reach this function
// with their raw cause attached.
func BuildErrorResponse(message string, details string) gin.H {
	resp := gin.H{
		ResponseFieldSuccess: false,
		ResponseFieldMessage: message,
	}
	if details != "" {
		resp[ResponseFieldDetails] = details
	}
	return resp
}
