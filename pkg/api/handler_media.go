package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-ai/parley/pkg/services"
)

const maxUploadBytes = 20 << 20

// handleOCRUpload extracts text from an uploaded image.
func (s *Server) handleOCRUpload(c *gin.Context) {
	if s.ocr == nil {
		writeError(c, services.ErrEngineUnavailable)
		return
	}
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		writeBadRequest(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(c, err)
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody{
			Error: "image exceeds upload limit", Code: "too_large", RequestID: requestIDFrom(c),
		})
		return
	}

	text, err := s.ocr.Recognize(c.Request.Context(), data, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, OCRResponse{Success: true, Text: text})
}

// handleTranscribe converts an uploaded audio blob to a transcript.
func (s *Server) handleTranscribe(c *gin.Context) {
	if s.transcriber == nil {
		writeError(c, services.ErrEngineUnavailable)
		return
	}
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		writeBadRequest(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(c, err)
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody{
			Error: "audio exceeds upload limit", Code: "too_large", RequestID: requestIDFrom(c),
		})
		return
	}

	transcript, err := s.transcriber.Transcribe(c.Request.Context(), data, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TranscribeResponse{Success: true, Transcript: transcript})
}
