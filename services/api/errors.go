package api

import (
	"errors"
	"net/http"

	"sonopix/pkg/models"

	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is reported when the caller went away before
// the operation finished.
const StatusClientClosedRequest = 499

// statusForCode maps an error code to an HTTP status
func statusForCode(code string) int {
	if models.OpaqueCode(code) {
		return http.StatusUnprocessableEntity
	}
	switch code {
	case models.ErrCodeValidation:
		return http.StatusBadRequest
	case models.ErrCodeCanceled:
		return StatusClientClosedRequest
	case models.ErrCodeJobsBusy:
		return http.StatusTooManyRequests
	case models.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writePipelineError reports an error from a pipeline run or job submission
// without exposing its cause. Opaque failures all carry the direction's
// failure code.
func writePipelineError(c *gin.Context, direction models.Direction, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	var e *models.Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": models.ErrInternalServer.Error()})
		return
	}

	status := statusForCode(e.Code)
	body := gin.H{"code": models.PublicCode(direction, e.Code)}

	switch {
	case models.OpaqueCode(e.Code):
		body["error"] = models.GenericFailureMessage(direction)
	case e.Code == models.ErrCodeValidation:
		body["error"] = "invalid passphrase"
		body["failing"] = e.Segments
	case e.Code == models.ErrCodeCanceled:
		body["error"] = "operation canceled"
	case e.Code == models.ErrCodeJobsBusy, e.Code == models.ErrCodePayloadTooLarge:
		body["error"] = e.Message
	default:
		body["error"] = models.ErrInternalServer.Error()
	}

	c.AbortWithStatusJSON(status, body)
}
