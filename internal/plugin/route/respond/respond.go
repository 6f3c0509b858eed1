package respond

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/adrianwedd/ltm-service/internal/model"
)

// Error translates a module error into the uniform error object
// {error:{code,message,detail?}} and the matching HTTP status. Internal
// errors are logged with full context and surfaced without detail.
func Error(c *gin.Context, err error) {
	code := model.ErrorCode(err)

	var detail map[string]any
	var validation *model.ValidationError
	if errors.As(err, &validation) {
		detail = map[string]any{validation.Field: validation.Message}
	}

	message := err.Error()
	status := http.StatusInternalServerError
	switch code {
	case model.CodeValidation:
		status = http.StatusUnprocessableEntity
	case model.CodeForbidden:
		status = http.StatusForbidden
	case model.CodeNotFound:
		status = http.StatusNotFound
	case model.CodeBackendUnavailable, model.CodeEmbedUnavailable:
		status = http.StatusServiceUnavailable
	case model.CodeTimeout:
		status = http.StatusGatewayTimeout
		message = "request deadline exceeded"
	default:
		log.Error("Internal error",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"err", err,
		)
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, model.ErrorBody(code, message, detail))
}

// BindError reports a malformed request body as a VALIDATION_ERROR with a
// field-level diagnostic.
func BindError(c *gin.Context, field string, err error) {
	Error(c, &model.ValidationError{Field: field, Message: err.Error()})
}
