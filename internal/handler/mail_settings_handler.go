package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/internal/repository"
	"pressroom/internal/secrets"
	"pressroom/internal/service/mailer"
)

type MailSettingsHandler struct {
	repo     *repository.MailSettingsRepository
	secrets  *secrets.Store
	resolver *mailer.Resolver
	logger   *zap.Logger
}

func NewMailSettingsHandler(
	repo *repository.MailSettingsRepository,
	secretStore *secrets.Store,
	resolver *mailer.Resolver,
	logger *zap.Logger,
) *MailSettingsHandler {
	return &MailSettingsHandler{
		repo:     repo,
		secrets:  secretStore,
		resolver: resolver,
		logger:   logger,
	}
}

// Get returns the credential-free settings projection.
// GET /admin/mail-settings
func (h *MailSettingsHandler) Get(c *gin.Context) {
	settings, err := h.repo.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load mail settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load mail settings"})
		return
	}

	if settings == nil {
		settings = &model.MailSettings{}
	}
	c.JSON(http.StatusOK, settings.View())
}

// Update merges a patch into the stored settings, encrypting any new
// credentials, and invalidates the resolver cache so the change takes
// effect immediately.
// PUT /admin/mail-settings
func (h *MailSettingsHandler) Update(c *gin.Context) {
	var patch mailer.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}

	ctx := c.Request.Context()
	existing, err := h.repo.Get(ctx)
	if err != nil {
		h.logger.Error("Failed to load mail settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load mail settings"})
		return
	}

	merged := mailer.ApplyUpdate(existing, patch, h.secrets)
	if err := h.repo.Save(ctx, &merged); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save mail settings"})
		return
	}

	// 保存后必须清缓存，否则 TTL 内仍会用到旧配置
	h.resolver.Invalidate()

	c.JSON(http.StatusOK, merged.View())
}
