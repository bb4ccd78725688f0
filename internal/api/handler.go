package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"study-assistant/internal/models"
)

// Assistant is the pipeline behind the HTTP routes
type Assistant interface {
	Ingest(ctx context.Context, filename string, data []byte) (models.Document, error)
	Query(ctx context.Context, question, sessionID string) (models.PromptResponse, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	History(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	SeedFAQs(ctx context.Context) (int, error)
	ListFAQs(ctx context.Context) ([]models.FAQItem, error)
	Stats(ctx context.Context) (models.Stats, error)
}

type Handler struct {
	svc         Assistant
	maxUploadMB int64
}

func NewHandler(svc Assistant, maxUploadMB int64) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	return &Handler{svc: svc, maxUploadMB: maxUploadMB}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/", h.Root)
	r.POST("/upload-document", h.UploadDocument)
	r.GET("/documents", h.ListDocuments)
	r.DELETE("/documents/:id", h.DeleteDocument)
	r.POST("/query", h.Query)
	r.GET("/chat-history/:session_id", h.ChatHistory)
	r.POST("/faqs/seed", h.SeedFAQs)
	r.GET("/faqs", h.ListFAQs)
	r.GET("/stats", h.Stats)
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Student Study Assistant API"})
}

func (h *Handler) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUploadMB<<20 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d MB", h.maxUploadMB)})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	doc, err := h.svc.Ingest(c.Request.Context(), file.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.svc.ListDocuments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.svc.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}

func (h *Handler) Query(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Query(c.Request.Context(), req.Query, req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ChatHistory(c *gin.Context) {
	msgs, err := h.svc.History(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) SeedFAQs(c *gin.Context) {
	n, err := h.svc.SeedFAQs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if n == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "FAQs already seeded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Seeded %d FAQs successfully", n)})
}

func (h *Handler) ListFAQs(c *gin.Context) {
	faqs, err := h.svc.ListFAQs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, faqs)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// StatusFor maps an error kind to an HTTP status
func StatusFor(err error) int {
	switch models.Kind(err) {
	case models.ErrInvalidInput, models.ErrUnsupportedFormat, models.ErrExtraction, models.ErrEmptyContent:
		return http.StatusBadRequest
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrTimeout:
		return http.StatusGatewayTimeout
	case models.ErrEmbedding, models.ErrGeneration:
		return http.StatusBadGateway
	case models.ErrStore:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		body["stage"] = pe.Stage
		body["kind"] = pe.Kind.Error()
	}
	c.JSON(StatusFor(err), body)
}
