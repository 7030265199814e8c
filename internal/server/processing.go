package server

import (
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	pipelinedomain "github.com/stemforge/stemforge/internal/pipeline/domain"
	pricingdomain "github.com/stemforge/stemforge/internal/pricing/domain"
	processingdomain "github.com/stemforge/stemforge/internal/processing/domain"
	"go.uber.org/zap"
)

const defaultStems = 2

func (s *Server) handleSeparate(c *gin.Context) {
	stems := defaultStems
	if raw := c.PostForm("stems"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("stems", "invalid_stems", "stems must be a number"))
			return
		}
		stems = parsed
	}
	s.process(c, pricingdomain.ServiceSpleeter, stems)
}

func (s *Server) handleTranscribePiano(c *gin.Context) {
	s.process(c, pricingdomain.ServicePianoTranscription, 0)
}

func (s *Server) handleTranscribeYourMT3(c *gin.Context) {
	s.process(c, pricingdomain.ServiceYourMT3, 0)
}

func (s *Server) process(c *gin.Context, serviceType string, stems int) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "missing_file", "multipart field \"file\" is required"))
		return
	}

	localPath, cleanup, err := s.spoolUpload(c, file)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer cleanup()

	result, err := s.pipelineSvc.Process(c.Request.Context(), pipelinedomain.Request{
		Account:     account,
		ServiceType: serviceType,
		Stems:       stems,
		Filename:    filepath.Base(file.Filename),
		LocalPath:   localPath,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Status == processingdomain.StatusProcessing {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// spoolUpload writes the multipart part to a temp file so the pipeline can
// hash and probe it from disk.
func (s *Server) spoolUpload(c *gin.Context, file *multipart.FileHeader) (string, func(), error) {
	dir, err := os.MkdirTemp("", "stemforge-upload-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("cleanup upload spool", zap.Error(err))
		}
	}

	localPath := filepath.Join(dir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, localPath); err != nil {
		cleanup()
		return "", nil, err
	}
	return localPath, cleanup, nil
}
