package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pressroom/internal/service/publisher"
)

type SchedulerHandler struct {
	scheduler       *publisher.Scheduler
	defaultCooldown time.Duration
	logger          *zap.Logger
}

func NewSchedulerHandler(scheduler *publisher.Scheduler, defaultCooldown time.Duration, logger *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler:       scheduler,
		defaultCooldown: defaultCooldown,
		logger:          logger,
	}
}

// Run triggers an opportunistic scheduler pass.
// POST /admin/scheduler/run?cooldown_seconds=60
func (h *SchedulerHandler) Run(c *gin.Context) {
	cooldown := h.defaultCooldown
	if raw := c.Query("cooldown_seconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cooldown_seconds"})
			return
		}
		cooldown = time.Duration(seconds) * time.Second
	}

	result, err := h.scheduler.MaybeRun(c.Request.Context(), cooldown)
	if err != nil {
		h.logger.Error("Scheduler run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scheduler pass failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
