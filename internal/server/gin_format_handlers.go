package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"javafmtd/internal/client"
	"javafmtd/internal/formatter"
	"javafmtd/internal/registry"
	"javafmtd/internal/runtime/commands"
)

type formatDocumentRequest struct {
	URI        string  `json:"uri" binding:"required"`
	LanguageID string  `json:"language_id" binding:"required"`
	Text       *string `json:"text" binding:"required"`
}

type formatFileRequest struct {
	FilePath string `json:"file_path" binding:"required"`
}

type visibleEditorsRequest struct {
	URIs []string `json:"uris" binding:"required"`
}

// POST /api/v1/format
func (s *GinServer) handleFormatDocument(c *gin.Context) {
	var req formatDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	resp, err := s.rt.Dispatcher.Dispatch(c.Request.Context(), formatter.FormatDocumentCommand{
		Document: formatter.Document{URI: req.URI, LanguageID: req.LanguageID, Text: *req.Text},
	})
	if err != nil {
		writeCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/format/file
func (s *GinServer) handleFormatFile(c *gin.Context) {
	var req formatFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	resp, err := s.rt.Dispatcher.Dispatch(c.Request.Context(), formatter.FormatFileCommand{Path: req.FilePath})
	if err != nil {
		writeCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *GinServer) handleGetVisible(c *gin.Context) {
	uris := s.rt.Visible.URIs()
	if uris == nil {
		uris = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"uris": uris})
}

// PUT /api/v1/editors/visible
func (s *GinServer) handlePutVisible(c *gin.Context) {
	var req visibleEditorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	s.rt.Visible.Replace(req.URIs)
	c.JSON(http.StatusOK, gin.H{"uris": req.URIs})
}

func (s *GinServer) handleEnsureService(c *gin.Context) {
	resp, err := s.rt.Dispatcher.Dispatch(c.Request.Context(), registry.ServiceEnsureCommand{})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *GinServer) handleStatus(c *gin.Context) {
	resp, err := s.rt.Dispatcher.Dispatch(c.Request.Context(), registry.ServiceStatusCommand{JournalLimit: 20})
	if err != nil {
		writeCommandError(c, err)
		return
	}
	st := resp.(registry.ServiceStatusResponse)
	c.JSON(http.StatusOK, gin.H{
		"registry": st.Registry,
		"health":   st.Health,
		"overall":  st.Overall,
		"launches": st.Launches,
		"visible":  s.rt.Visible.URIs(),
	})
}

func writeCommandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, client.ErrServiceUnavailable), errors.Is(err, formatter.ErrMissingJava):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, formatter.ErrUnsupportedLanguage):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, commands.ErrInvalidCommand):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
