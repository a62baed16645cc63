package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"sonopix/pkg/imagecodec"
	"sonopix/pkg/models"
	"sonopix/pkg/passphrase"

	"github.com/gin-gonic/gin"
)

// PassphraseRequest carries the three passphrase segments
type PassphraseRequest struct {
	Letters string `json:"letters" form:"letters"`
	Digits  string `json:"digits" form:"digits"`
	Special string `json:"special" form:"special"`
}

func (r PassphraseRequest) passphrase() passphrase.Passphrase {
	return passphrase.Passphrase{Letters: r.Letters, Digits: r.Digits, Special: r.Special}
}

// validatePassphrase reports which segments fail without running anything
func (s *Server) validatePassphrase(c *gin.Context) {
	var req PassphraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	c.JSON(http.StatusOK, req.passphrase().Validate())
}

var errUnsupportedFormat = errors.New("unsupported format")

// pipelineInput is a parsed multipart pipeline request
type pipelineInput struct {
	pass   passphrase.Passphrase
	data   []byte
	format imagecodec.Format
}

// readInput parses the multipart form: a file under fileField, the passphrase
// segments and an optional format.
func (s *Server) readInput(c *gin.Context, fileField string) (*pipelineInput, error) {
	var req PassphraseRequest
	if err := c.ShouldBind(&req); err != nil {
		return nil, err
	}

	header, err := c.FormFile(fileField)
	if err != nil {
		return nil, err
	}
	data, err := readFormFile(header)
	if err != nil {
		return nil, err
	}

	format := s.format
	if raw := c.PostForm("format"); raw != "" {
		format, err = imagecodec.ParseFormat(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errUnsupportedFormat, raw)
		}
	}

	return &pipelineInput{pass: req.passphrase(), data: data, format: format}, nil
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// writeInputError reports a malformed upload
func writeInputError(c *gin.Context, fileField string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	if errors.Is(err, http.ErrMissingFile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("multipart field %q is required", fileField)})
		return
	}
	if errors.Is(err, errUnsupportedFormat) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

// encrypt hides the uploaded payload and returns the artifact image
func (s *Server) encrypt(c *gin.Context) {
	input, err := s.readInput(c, "payload")
	if err != nil {
		writeInputError(c, "payload", err)
		return
	}

	start := time.Now()
	var out bytes.Buffer
	err = s.engine.EncryptTo(c.Request.Context(), &out, input.format, input.data, input.pass, nil)

	s.recordAudit(c, models.CreateAuditLogRequest{
		Direction:   models.DirectionEncrypt,
		Err:         err,
		InputBytes:  int64(len(input.data)),
		OutputBytes: int64(out.Len()),
		Duration:    time.Since(start),
	})

	if err != nil {
		writePipelineError(c, models.DirectionEncrypt, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="artifact%s"`, input.format.Extension()))
	c.Header("X-Sonopix-Format", string(input.format))
	c.Data(http.StatusOK, input.format.ContentType(), out.Bytes())
}

// decrypt recovers the payload hidden in the uploaded artifact
func (s *Server) decrypt(c *gin.Context) {
	input, err := s.readInput(c, "artifact")
	if err != nil {
		writeInputError(c, "artifact", err)
		return
	}

	start := time.Now()
	payload, err := s.engine.DecryptFrom(c.Request.Context(), bytes.NewReader(input.data), input.pass, nil)

	s.recordAudit(c, models.CreateAuditLogRequest{
		Direction:   models.DirectionDecrypt,
		Err:         err,
		InputBytes:  int64(len(input.data)),
		OutputBytes: int64(len(payload)),
		Duration:    time.Since(start),
	})

	if err != nil {
		writePipelineError(c, models.DirectionDecrypt, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="payload.bin"`)
	c.Data(http.StatusOK, "application/octet-stream", payload)
}
