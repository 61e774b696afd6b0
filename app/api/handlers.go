package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/season-rank/app/season"
	"github.com/lysyi3m/season-rank/app/tasks"
)

func NewHandler(store SeasonStore, seasons SeasonLister, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		store:     store,
		seasons:   seasons,
		scheduler: scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if entries, err := h.store.List(); err == nil {
		health["seasons"] = len(entries)
	}

	status := h.scheduler.Status()
	health["scheduler"] = map[string]interface{}{
		"running":      status.Running != nil,
		"queue_length": status.QueueLength,
		"next_run_at":  status.NextRunAt,
	}

	c.JSON(http.StatusOK, health)
}

// GetAvailableSeasons lists readable season documents, newest first. The
// newest one is reported as the current season.
func (h *Handler) GetAvailableSeasons(c *gin.Context) {
	entries, err := h.store.List()
	if err != nil {
		slog.Error("Failed to list seasons", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list seasons"})
		return
	}

	available := AvailableSeasons{AvailableSeasons: make([]int, 0, len(entries))}
	for _, entry := range entries {
		if !entry.Readable {
			continue
		}
		available.AvailableSeasons = append(available.AvailableSeasons, entry.Year*100+entry.Month)
	}
	if len(available.AvailableSeasons) > 0 {
		available.CurrentSeasonID = available.AvailableSeasons[0]
	}

	c.JSON(http.StatusOK, available)
}

func (h *Handler) GetSeason(c *gin.Context) {
	id := c.Param("id")
	year, month, err := season.ParseKey(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid season id", "details": err.Error()})
		return
	}

	doc, err := h.store.Load(year, month)
	if err != nil {
		slog.Error("Failed to load season", "season", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load season"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Season not found"})
		return
	}

	c.Header("X-Season-Subjects", strconv.Itoa(len(doc.Subjects)))
	c.Header("X-Last-Updated", doc.LastUpdateTime)

	c.JSON(http.StatusOK, SeasonDetail{
		SeasonID:  id,
		Title:     doc.Title,
		UpdatedAt: doc.LastUpdateTime,
		Subjects:  doc.Subjects,
	})
}

func (h *Handler) APIRefreshAll(c *gin.Context) {
	force, ok := forceParam(c)
	if !ok {
		return
	}

	taskID, err := h.scheduler.RefreshAll(force)
	if err != nil {
		h.enqueueFailed(c, "all", err)
		return
	}

	slog.Info("Full refresh requested", "task_id", taskID, "force", force)
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Refresh enqueued",
		"task": gin.H{
			"id":    taskID,
			"type":  tasks.TaskTypeRefreshAll,
			"force": force,
		},
	})
}

func (h *Handler) APIRefreshSeason(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1900 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year parameter"})
		return
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid month parameter"})
		return
	}

	force, ok := forceParam(c)
	if !ok {
		return
	}

	key := season.Key(year, month)
	taskID, err := h.scheduler.RefreshSeason(year, month, force)
	if err != nil {
		h.enqueueFailed(c, key, err)
		return
	}

	slog.Info("Season refresh requested", "task_id", taskID, "season", key, "force", force)
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Season refresh enqueued",
		"task": gin.H{
			"id":     taskID,
			"type":   tasks.TaskTypeRefreshSeason,
			"season": key,
			"force":  force,
		},
	})
}

func (h *Handler) APIListSeasons(c *gin.Context) {
	statuses, err := h.seasons.Seasons(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list seasons", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list seasons"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"seasons": statuses,
		"total":   len(statuses),
	})
}

func (h *Handler) APISchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}

func (h *Handler) enqueueFailed(c *gin.Context, target string, err error) {
	slog.Error("Error enqueueing refresh task", "target", target, "error", err)

	status := http.StatusInternalServerError
	if errors.Is(err, tasks.ErrQueueFull) || errors.Is(err, tasks.ErrSchedulerStopped) {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"error":   "Failed to enqueue refresh task",
		"details": err.Error(),
	})
}

func forceParam(c *gin.Context) (bool, bool) {
	value := c.Query("force")
	if value == "" {
		return false, true
	}
	force, err := strconv.ParseBool(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid force parameter"})
		return false, false
	}
	return force, true
}
