package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sonopix/pkg/models"
	"sonopix/pkg/progress"
	"sonopix/services/jobs"

	"github.com/gin-gonic/gin"
)

// submitEncryptJob starts a background encrypt and returns 202 with the job
func (s *Server) submitEncryptJob(c *gin.Context) {
	input, err := s.readInput(c, "payload")
	if err != nil {
		writeInputError(c, "payload", err)
		return
	}

	s.submitJob(c, jobs.Request{
		Direction:  models.DirectionEncrypt,
		Format:     string(input.format),
		InputBytes: int64(len(input.data)),
		Run: func(ctx context.Context, onProgress progress.Func) ([]byte, error) {
			var out bytes.Buffer
			if err := s.engine.EncryptTo(ctx, &out, input.format, input.data, input.pass, onProgress); err != nil {
				return nil, err
			}
			return out.Bytes(), nil
		},
	})
}

// submitDecryptJob starts a background decrypt and returns 202 with the job
func (s *Server) submitDecryptJob(c *gin.Context) {
	input, err := s.readInput(c, "artifact")
	if err != nil {
		writeInputError(c, "artifact", err)
		return
	}

	s.submitJob(c, jobs.Request{
		Direction:  models.DirectionDecrypt,
		InputBytes: int64(len(input.data)),
		Run: func(ctx context.Context, onProgress progress.Func) ([]byte, error) {
			return s.engine.DecryptFrom(ctx, bytes.NewReader(input.data), input.pass, onProgress)
		},
	})
}

func (s *Server) submitJob(c *gin.Context, req jobs.Request) {
	ip, userAgent := c.ClientIP(), c.Request.UserAgent()
	req.OnFinish = func(job *models.Job, err error, duration time.Duration) {
		jobID := job.ID
		s.createAuditLog(context.Background(), models.CreateAuditLogRequest{
			JobID:       &jobID,
			Direction:   job.Direction,
			Err:         err,
			InputBytes:  job.InputBytes,
			OutputBytes: job.OutputBytes,
			Duration:    duration,
			IPAddress:   ip,
			UserAgent:   userAgent,
		})
	}

	// Jobs outlive the request that submitted them
	job, err := s.jobs.Submit(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		writePipelineError(c, req.Direction, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/api/v1/jobs/%s", job.ID))
	c.JSON(http.StatusAccepted, job)
}

// getJob reports the state and progress of a job
func (s *Server) getJob(c *gin.Context) {
	id, err := s.parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}

	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// getJobResult returns the output of a succeeded job. It can be fetched once.
func (s *Server) getJobResult(c *gin.Context) {
	id, err := s.parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}

	data, job, err := s.jobs.Result(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrJobFailed) && job != nil {
			c.JSON(statusForCode(job.ErrorCode), gin.H{
				"error": genericFailureFor(job),
				"code":  job.ErrorCode,
			})
			return
		}
		writeJobError(c, err)
		return
	}

	if job.Direction == models.DirectionEncrypt {
		format, _ := s.parseFormat(job.Format)
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="artifact%s"`, format.Extension()))
		c.Header("X-Sonopix-Format", string(format))
		c.Data(http.StatusOK, format.ContentType(), data)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="payload.bin"`)
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// cancelJob requests cancellation; finished jobs are returned unchanged
func (s *Server) cancelJob(c *gin.Context) {
	id, err := s.parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}

	job, err := s.jobs.Cancel(c.Request.Context(), id)
	if err != nil {
		writeJobError(c, err)
		return
	}

	if job.Status.Terminal() {
		c.JSON(http.StatusOK, job)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// genericFailureFor is the client-facing text for a failed job. The record
// holds only public codes.
func genericFailureFor(job *models.Job) string {
	switch job.ErrorCode {
	case models.ErrCodeCanceled:
		return "operation canceled"
	case models.ErrCodeDecryptionFailed, models.ErrCodeEncryptionFailed:
		return models.GenericFailureMessage(job.Direction)
	case models.ErrCodePayloadTooLarge:
		return job.ErrorMessage
	}
	if job.Status == models.JobStatusCanceled {
		return "operation canceled"
	}
	return models.ErrInternalServer.Error()
}

func writeJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, models.ErrJobNotFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "job has not finished"})
	case errors.Is(err, models.ErrJobResultConsumed):
		c.JSON(http.StatusGone, gin.H{"error": "job result already retrieved"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": models.ErrInternalServer.Error()})
	}
}
