package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pressroom/internal/repository"
	"pressroom/internal/service/notify"
)

const defaultFeedLimit = 20

type NotificationHandler struct {
	repo   *repository.NotificationRepository
	unread *notify.UnreadCache
	logger *zap.Logger
}

func NewNotificationHandler(repo *repository.NotificationRepository, unread *notify.UnreadCache, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		repo:   repo,
		unread: unread,
		logger: logger,
	}
}

func callerID(c *gin.Context) (int64, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// ListRecent returns the newest in-app notifications for the caller.
// GET /notifications?limit=20
func (h *NotificationHandler) ListRecent(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit := defaultFeedLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	items, err := h.repo.ListRecent(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}

	type feedItem struct {
		ID       int64  `json:"id"`
		Type     string `json:"type"`
		Subject  string `json:"subject"`
		Message  string `json:"message"`
		Href     string `json:"href,omitempty"`
		Severity string `json:"severity,omitempty"`
		IsRead   bool   `json:"is_read"`
		Created  string `json:"created_at"`
	}

	feed := make([]feedItem, 0, len(items))
	for _, n := range items {
		feed = append(feed, feedItem{
			ID:       n.ID,
			Type:     n.Type,
			Subject:  n.Subject,
			Message:  n.Payload.Message,
			Href:     n.Payload.Href,
			Severity: n.Payload.Severity,
			IsRead:   n.IsRead,
			Created:  n.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"notifications": feed})
}

// UnreadCount returns the caller's unread in-app notification count.
// GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ctx := c.Request.Context()
	if count, hit := h.unread.Get(ctx, userID); hit {
		c.JSON(http.StatusOK, gin.H{"unread": count})
		return
	}

	count, err := h.repo.UnreadCount(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to count unread notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread notifications"})
		return
	}

	h.unread.Set(ctx, userID, count)
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// MarkRead marks one notification as read.
// POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	ctx := c.Request.Context()
	if err := h.repo.MarkRead(ctx, userID, id); err != nil {
		h.logger.Error("Failed to mark notification read", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
		return
	}

	h.unread.Invalidate(ctx, userID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MarkAllRead marks every unread notification of the caller as read.
// POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ctx := c.Request.Context()
	if err := h.repo.MarkAllRead(ctx, userID); err != nil {
		h.logger.Error("Failed to mark all notifications read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark all read"})
		return
	}

	h.unread.Invalidate(ctx, userID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
