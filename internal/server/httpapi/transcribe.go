package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/scanvault/internal/server/processing"
	"github.com/gin-gonic/gin"
)

// TranscribeErrorTrailer carries the failure of a stream that had already
// started when the error happened.
const TranscribeErrorTrailer = "X-Transcribe-Error"

type transcribeRequest struct {
	BlobURL   string `json:"blobUrl" binding:"required"`
	Extension string `json:"extension"`
}

// transcribe streams the transcript as plain text, one write per chunk in
// chunk order. Errors before the first chunk get a normal JSON response;
// later ones end the stream and are reported in the trailer.
func (s *Server) transcribe(c *gin.Context) {
	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var (
		started bool
		prev    string
	)
	emit := func(_ int, text string) error {
		if !started {
			started = true
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("Trailer", TranscribeErrorTrailer)
			c.Status(http.StatusOK)
		}
		if text == "" {
			return nil
		}
		if processing.NeedsSeam(prev, text) {
			text = " " + text
		}
		if _, err := c.Writer.WriteString(text); err != nil {
			return err
		}
		c.Writer.Flush()
		prev = text
		return nil
	}

	_, err := s.transcriptions.Transcribe(c.Request.Context(), currentUser(c), req.BlobURL, req.Extension, emit)
	if err == nil {
		if !started {
			c.Status(http.StatusOK)
		}
		return
	}

	if !started {
		s.writeError(c, err)
		return
	}
	s.logger.Warn(c.Request.Context(), "transcription stream aborted", "error", err)
	c.Writer.Header().Set(TranscribeErrorTrailer, err.Error())
}
