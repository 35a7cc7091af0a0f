package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/smile-api/internal/history"
	"github.com/Brownie44l1/smile-api/internal/model"
	"github.com/Brownie44l1/smile-api/internal/notify"
	"github.com/Brownie44l1/smile-api/internal/source"
	"github.com/Brownie44l1/smile-api/internal/usecase"
)

// MaxUploadSize bounds multipart uploads to /predict/image.
const MaxUploadSize = 10 << 20

// Service is what the HTTP layer needs from the detection use case.
type Service interface {
	Detect(ctx context.Context, src source.Source, opts ...usecase.DetectOption) (*usecase.Detection, error)
	PredictTensor(ctx context.Context, data []float32) (*model.Result, error)
	Reload(ctx context.Context) error
	Result(ctx context.Context, id string) (*history.Entry, error)
	Recent(ctx context.Context, limit int) ([]*history.Entry, error)
	Statistics() usecase.Stats
}

type Handler struct {
	svc    Service
	logger *zap.Logger
}

func NewHandler(svc Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.Named("handlers")}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc Service, logger *zap.Logger) {
	h := NewHandler(svc, logger)

	router.Use(CORS())
	router.GET("/health", h.Health)
	router.POST("/predict", h.Predict)
	router.POST("/predict/image", h.PredictFromImage)
	router.GET("/results", h.Recent)
	router.GET("/results/:id", h.Result)
	router.POST("/model/reload", h.Reload)
	router.GET("/stats", h.Stats)
}

// CORS allows browser clients on any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (h *Handler) Health(c *gin.Context) {
	stats := h.svc.Statistics()
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": stats.Pipeline.Loaded,
		"runtime":      stats.Pipeline.Runtime,
	})
}

// Predict scores a raw tensor already laid out in the model's input shape.
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	result, err := h.svc.PredictTensor(c.Request.Context(), req.Image)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type detectionResponse struct {
	*usecase.Detection
	Preview string `json:"preview,omitempty"`
}

func (h *Handler) PredictFromImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided. Use 'image' as the form field name"})
		return
	}

	var opts []usecase.DetectOption
	wantPreview, _ := strconv.ParseBool(c.Query("preview"))
	if wantPreview {
		opts = append(opts, usecase.WithPreview())
	}

	detection, err := h.svc.Detect(c.Request.Context(), source.Upload(header), opts...)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := detectionResponse{Detection: detection}
	if wantPreview && len(detection.Preview) > 0 {
		resp.Preview = base64.StdEncoding.EncodeToString(detection.Preview)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Recent(c *gin.Context) {
	limit := history.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := h.svc.Recent(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"results": entries})
}

func (h *Handler) Result(c *gin.Context) {
	entry, err := h.svc.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"result": entry}
	if len(entry.Preview) > 0 {
		resp["preview"] = base64.StdEncoding.EncodeToString(entry.Preview)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Reload(c *gin.Context) {
	if err := h.svc.Reload(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": notify.TextModelLoaded, "model": h.svc.Statistics().Pipeline})
}

func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Statistics())
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	switch {
	case errors.Is(err, history.ErrNotFound):
		c.JSON(status, gin.H{"error": "result not found"})
	case errors.Is(err, usecase.ErrHistoryDisabled):
		c.JSON(status, gin.H{"error": err.Error()})
	default:
		c.JSON(status, gin.H{"error": notify.MessageFor(err).Text, "detail": err.Error()})
	}
}

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, source.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrPreprocess):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrHistoryDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
