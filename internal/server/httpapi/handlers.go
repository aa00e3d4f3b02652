package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/scanvault/internal/server/models"
	"github.com/dmitrijs2005/scanvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

type uploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType"`
}

type uploadURLResponse struct {
	UploadURL  string `json:"uploadUrl"`
	StorageKey string `json:"storageKey"`
	PublicURL  string `json:"publicUrl"`
}

type uploadCompleteRequest struct {
	StorageKey   string `json:"storageKey" binding:"required"`
	PublicURL    string `json:"publicUrl"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
}

type uploadTextRequest struct {
	Name    string `json:"name" binding:"required"`
	Content string `json:"content"`
}

type fileResponse struct {
	FileID string        `json:"fileId"`
	Status models.Status `json:"status"`
	Text   *string       `json:"text,omitempty"`
}

type statusResponse struct {
	ID     string        `json:"id"`
	Status models.Status `json:"status"`
	Text   *string       `json:"text,omitempty"`
	Error  *string       `json:"error,omitempty"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) createUploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ticket, err := s.uploads.CreateUploadURL(c.Request.Context(), currentUser(c), req.Filename, req.ContentType)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, uploadURLResponse{
		UploadURL:  ticket.UploadURL,
		StorageKey: ticket.StorageKey,
		PublicURL:  ticket.PublicURL,
	})
}

func (s *Server) uploadComplete(c *gin.Context) {
	var req uploadCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rec, err := s.uploads.RecordUploadComplete(c.Request.Context(), currentUser(c), services.CompleteUpload{
		StorageKey:   req.StorageKey,
		PublicURL:    req.PublicURL,
		OriginalName: req.OriginalName,
		ContentType:  req.ContentType,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, fileResponse{FileID: rec.ID, Status: rec.Status})
}

func (s *Server) uploadText(c *gin.Context) {
	var req uploadTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rec, err := s.uploads.UploadText(c.Request.Context(), currentUser(c), req.Name, req.Content)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, fileResponse{FileID: rec.ID, Status: rec.Status, Text: rec.ExtractedText})
}

func (s *Server) fileStatus(c *gin.Context) {
	rec, err := s.uploads.GetStatus(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		ID:     rec.ID,
		Status: rec.Status,
		Text:   rec.ExtractedText,
		Error:  rec.Error,
	})
}

func (s *Server) retryFile(c *gin.Context) {
	rec, err := s.uploads.Requeue(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusResponse{ID: rec.ID, Status: rec.Status})
}

// processPending keeps going when the caller hangs up; only the server's
// own shutdown or runTimeout stops the batch.
func (s *Server) processPending(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.runTimeout)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	summary, err := s.runs.Run(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
