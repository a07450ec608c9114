package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geminichat/internal/models"
	"geminichat/internal/service/ai"
	"geminichat/internal/service/assistant"
	"geminichat/internal/service/upload"
	"geminichat/internal/session"
	"geminichat/internal/worker"
)

// Comparer answers one prompt with several models.
type Comparer interface {
	Compare(ctx context.Context, message string, models []string) []ai.CompareResult
}

// Handler wires HTTP routes to the assistant, comparison and upload services.
type Handler struct {
	assistant *assistant.Service
	comparer  Comparer
	uploads   *upload.Service
	logger    *zap.Logger
}

// NewHandler constructs a Handler instance. uploads may be nil, which
// disables the upload routes.
func NewHandler(service *assistant.Service, comparer Comparer, uploads *upload.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		assistant: service,
		comparer:  comparer,
		uploads:   uploads,
		logger:    logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	registerValidators(h.logger)
	router.Use(RequestLogger(h.logger))

	api := router.Group("/api")
	api.GET("/health", h.health)
	api.GET("/models", h.listModels)
	api.POST("/compare", h.compare)
	api.POST("/chat/compare", h.compare)
	if h.uploads != nil {
		api.POST("/upload", h.uploadFile)
		router.Static(strings.TrimSuffix(upload.URLPrefix, "/"), h.uploads.Dir())
	}

	sessionRoutes := api.Group("")
	sessionRoutes.Use(session.Middleware())
	sessionRoutes.GET("/conversations", h.listConversations)
	sessionRoutes.POST("/conversations", h.createConversation)
	sessionRoutes.GET("/conversations/:id", h.getConversation)
	sessionRoutes.PATCH("/conversations/:id", h.updateConversation)
	sessionRoutes.DELETE("/conversations/:id", h.deleteConversation)
	sessionRoutes.GET("/conversations/:id/messages", h.listMessages)
	sessionRoutes.POST("/conversations/:id/messages", h.sendMessage)
	sessionRoutes.PATCH("/messages/:id", h.updateMessage)
	sessionRoutes.DELETE("/messages/:id", h.deleteMessage)
	sessionRoutes.GET("/settings", h.getSettings)
	sessionRoutes.PATCH("/settings", h.updateSettings)
	sessionRoutes.GET("/usage", h.listUsage)
	sessionRoutes.GET("/analytics/usage", h.listUsage)
	sessionRoutes.GET("/analytics/totals", h.usageTotals)
}

func (h *Handler) sessionID(c *gin.Context) (string, bool) {
	sessionID, ok := session.FromContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sessionId"})
		return "", false
	}
	return sessionID, true
}

// respondError maps service errors onto status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, assistant.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	case errors.Is(err, worker.ErrDispatcherClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
	case errors.Is(err, context.DeadlineExceeded):
		// the job waited in its session queue past the generation timeout
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out, please retry"})
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bindStrict decodes a JSON body rejecting unknown fields. The session id may
// travel in the body, so a sessionId field is tolerated.
func bindStrict(c *gin.Context, dst interface{}) error {
	var body []byte
	if cached, ok := c.Get(gin.BodyBytesKey); ok {
		body, _ = cached.([]byte)
	} else {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return err
		}
		body = data
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	delete(envelope, session.BodyField)
	cleaned, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(cleaned))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Conversations

func (h *Handler) listConversations(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	convs, err := h.assistant.ListConversations(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if convs == nil {
		convs = make([]models.Conversation, 0)
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) createConversation(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req models.NewConversation
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid conversation data: %v", err)})
		return
	}
	conv, err := h.assistant.CreateConversation(c.Request.Context(), sessionID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) getConversation(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	conv, err := h.assistant.GetConversation(c.Request.Context(), sessionID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) updateConversation(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	var patch models.ConversationPatch
	if err := bindStrict(c, &patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid conversation data: %v", err)})
		return
	}
	conv, err := h.assistant.UpdateConversation(c.Request.Context(), sessionID, c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) deleteConversation(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.assistant.DeleteConversation(c.Request.Context(), sessionID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

// Messages

func (h *Handler) listMessages(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	msgs, err := h.assistant.ListMessages(c.Request.Context(), sessionID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sendMessage(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req assistant.SendMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid message data: %v", err)})
		return
	}
	result, err := h.assistant.SendMessage(c.Request.Context(), sessionID, c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.GenerationErr != nil {
		h.logger.Warn("message stored without reply",
			zap.String("session_id", sessionID),
			zap.String("conversation_id", c.Param("id")),
			zap.Error(result.GenerationErr))
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) updateMessage(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	var patch models.MessagePatch
	if err := bindStrict(c, &patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid message data: %v", err)})
		return
	}
	msg, err := h.assistant.UpdateMessage(c.Request.Context(), sessionID, c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) deleteMessage(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.assistant.DeleteMessage(c.Request.Context(), sessionID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully"})
}

// Settings and usage

func (h *Handler) getSettings(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	settings, err := h.assistant.GetSettings(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) updateSettings(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	var patch models.SettingsPatch
	if err := bindStrict(c, &patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid settings: %v", err)})
		return
	}
	settings, err := h.assistant.UpdateSettings(c.Request.Context(), sessionID, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) listUsage(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	rows, err := h.assistant.ListUsage(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if rows == nil {
		rows = make([]models.UsageStat, 0)
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) usageTotals(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	summary, err := h.assistant.UsageTotals(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Stateless routes

type compareRequest struct {
	Message string   `json:"message" binding:"required"`
	Model   string   `json:"model" binding:"omitempty,chatmodel"`
	Models  []string `json:"models" binding:"omitempty,max=8,dive,chatmodel"`
}

// compare answers a single model with one result object and a models list
// with {"results": [...]}.
func (h *Handler) compare(c *gin.Context) {
	var req compareRequest
	err := c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("models must name at most %d supported models", ai.MaxCompareModels)})
		return
	}
	if len(req.Models) > 0 {
		results := h.comparer.Compare(c.Request.Context(), req.Message, req.Models)
		c.JSON(http.StatusOK, gin.H{"results": results})
		return
	}
	results := h.comparer.Compare(c.Request.Context(), req.Message, []string{req.Model})
	if len(results) == 0 || results[0].Error != "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate comparison response"})
		return
	}
	c.JSON(http.StatusOK, results[0])
}

func (h *Handler) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, ai.Catalog())
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) uploadFile(c *gin.Context) {
	// leave room for the multipart envelope around the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploads.MaxBytes()+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": upload.ErrTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": upload.ErrNoFile.Error()})
		return
	}
	result, err := h.uploads.Save(c.Request.Context(), file)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrUnsupportedType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, upload.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		default:
			h.logger.Error("upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload file"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}
