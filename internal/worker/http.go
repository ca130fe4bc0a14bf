package worker

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/internal/job"
)

// JobRequest is the /jobs intake body, mirroring a dispatch job: the
// room to join plus the raw metadata string.
type JobRequest struct {
	ID       string `json:"id"`
	Room     string `json:"room" binding:"required"`
	Metadata string `json:"metadata"`
}

// RegisterRoutes mounts the job intake and health endpoints.
func RegisterRoutes(r *gin.Engine, w *Worker) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "active_jobs": w.Active()})
	})

	r.POST("/jobs", func(c *gin.Context) {
		var req JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "room is required"})
			return
		}

		id, err := w.Submit(job.Job{ID: req.ID, RoomName: req.Room, Metadata: req.Metadata})
		if err != nil {
			if errors.Is(err, ErrStopped) || errors.Is(err, ErrNotStarted) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
				return
			}
			if errors.Is(err, ErrAtCapacity) {
				c.JSON(http.StatusTooManyRequests, gin.H{"detail": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": id})
	})
}
