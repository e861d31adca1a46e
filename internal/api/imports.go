package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forkcast/backend/internal/service"
)

// photoUploadLimit caps recipe photo uploads at 15 MB.
const photoUploadLimit = 15 << 20

type ImportHandler struct {
	importer *service.ImporterService
	jobs     *service.JobStore
	logger   *zap.Logger
}

func NewImportHandler(importer *service.ImporterService, jobs *service.JobStore, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{importer: importer, jobs: jobs, logger: logger}
}

func (h *ImportHandler) RegisterRoutes(router *gin.RouterGroup) {
	imports := router.Group("/recipes/import")
	{
		imports.POST("", h.ImportFromURL)
		imports.POST("/bulk", h.BulkImport)
		imports.POST("/photo", h.ImportFromPhoto)
		imports.GET("/jobs", h.ListJobs)
		imports.GET("/jobs/:id", h.GetJob)
		imports.GET("/history", h.History)
	}
}

type importRequest struct {
	URL    string     `json:"url" binding:"required"`
	UserID *uuid.UUID `json:"user_id"`
}

// ImportFromURL queues the import and returns the job id immediately; the
// client polls the job endpoint for the outcome.
func (h *ImportHandler) ImportFromURL(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.jobs == nil {
		// No job store: import synchronously.
		result, err := h.importer.ImportFromURL(c.Request.Context(), req.URL, req.UserID)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue import"})
		return
	}

	go h.runImport(job.ID, req.URL, req.UserID)

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

type bulkImportRequest struct {
	URLs   []string   `json:"urls" binding:"required"`
	UserID *uuid.UUID `json:"user_id"`
}

// BulkImport walks the URLs in order and imports each one synchronously. One
// bad URL doesn't abort the batch; its error lands in that URL's result row.
func (h *ImportHandler) BulkImport(c *gin.Context) {
	var req bulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one URL is required"})
		return
	}
	if len(req.URLs) > 20 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At most 20 URLs per batch"})
		return
	}

	results := make([]gin.H, 0, len(req.URLs))
	imported := 0
	for _, url := range req.URLs {
		result, err := h.importer.ImportFromURL(c.Request.Context(), url, req.UserID)
		if err != nil {
			results = append(results, gin.H{"url": url, "success": false, "error": err.Error()})
			continue
		}
		imported++
		results = append(results, gin.H{
			"url":          url,
			"success":      true,
			"recipe_id":    result.RecipeID,
			"recipe_title": result.RecipeTitle,
		})
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "total": len(req.URLs), "results": results})
}

func (h *ImportHandler) runImport(jobID, url string, userID *uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	if err := h.jobs.MarkRunning(ctx, jobID); err != nil {
		h.logger.Warn("failed to mark import job running", zap.String("job_id", jobID), zap.Error(err))
	}

	result, err := h.importer.ImportFromURL(ctx, url, userID)
	if err != nil {
		h.logger.Warn("import job failed", zap.String("url", url), zap.Error(err))
		if markErr := h.jobs.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			h.logger.Error("failed to mark import job failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return
	}

	if err := h.jobs.MarkDone(ctx, jobID, result.RecipeID, result.RecipeTitle); err != nil {
		h.logger.Error("failed to mark import job done", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (h *ImportHandler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job store not configured"})
		return
	}
	jobs, err := h.jobs.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *ImportHandler) GetJob(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job store not configured"})
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found or expired"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ImportFromPhoto extracts a recipe from an uploaded image synchronously.
// Vision extraction is a single model call, so there's no job to poll.
func (h *ImportHandler) ImportFromPhoto(c *gin.Context) {
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo file is required"})
		return
	}
	if fileHeader.Size > photoUploadLimit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Photo exceeds 15MB limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, photoUploadLimit))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
		return
	}

	var userID *uuid.UUID
	if raw := c.PostForm("user_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			userID = &id
		}
	}

	contentType := fileHeader.Header.Get("Content-Type")
	result, err := h.importer.ImportFromImage(c.Request.Context(), data, contentType, fileHeader.Filename, userID)
	if err != nil {
		if errors.Is(err, service.ErrAIUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI not configured"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ImportHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.importer.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch import history"})
		return
	}
	c.JSON(http.StatusOK, logs)
}
