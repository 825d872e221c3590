package mailer

import (
	"context"
	"net/mail"
	"sync"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/pkg/config"
)

const (
	// DefaultCacheTTL bounds how stale a resolved runtime config may be.
	DefaultCacheTTL = 60 * time.Second

	// DefaultAPIEndpoint is used when neither settings nor environment
	// name an explicit HTTP mail API endpoint.
	DefaultAPIEndpoint = "https://api.resend.com/emails"

	defaultSMTPPort = 587
)

// SettingsStore loads the persisted mail provider settings.
type SettingsStore interface {
	Get(ctx context.Context) (*model.MailSettings, error)
}

// SecretStore opens credentials stored in encrypted form.
type SecretStore interface {
	Decrypt(ciphertext string) (string, bool)
}

// Resolver turns persisted or environment mail configuration into a
// decrypted, ready-to-send runtime config, cached with a TTL. A nil
// result means "confirmed unconfigured" and is cached as well.
type Resolver struct {
	settings SettingsStore
	secrets  SecretStore
	env      config.MailEnvConfig
	logger   *zap.Logger
	ttl      time.Duration

	mu        sync.Mutex
	cached    model.MailRuntime
	fetchedAt time.Time
	hasValue  bool
}

func NewResolver(settings SettingsStore, secrets SecretStore, env config.MailEnvConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		settings: settings,
		secrets:  secrets,
		env:      env,
		logger:   logger,
		ttl:      DefaultCacheTTL,
	}
}

// WithTTL overrides the cache TTL.
func (r *Resolver) WithTTL(ttl time.Duration) *Resolver {
	r.ttl = ttl
	return r
}

// RuntimeConfig returns the active mail runtime, or nil when outbound
// mail is unconfigured. Misconfiguration degrades to nil, never to an
// error: a broken mail provider must not crash its callers.
func (r *Resolver) RuntimeConfig(ctx context.Context, force bool) model.MailRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !force && r.hasValue && time.Since(r.fetchedAt) < r.ttl {
		return r.cached
	}

	runtime := r.resolve(ctx)

	r.cached = runtime
	r.fetchedAt = time.Now()
	r.hasValue = true
	return runtime
}

// Invalidate drops the cached value so the next resolution reloads the
// store. Callers must invoke this after persisting a settings change.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	r.hasValue = false
}

func (r *Resolver) resolve(ctx context.Context) model.MailRuntime {
	settings, err := r.settings.Get(ctx)
	if err != nil {
		r.logger.Warn("Failed to load mail settings, falling back to environment", zap.Error(err))
		return r.fromEnv()
	}

	if settings == nil || !settings.Enabled || !plausibleAddress(settings.FromEmail) {
		return r.fromEnv()
	}

	switch settings.Provider {
	case model.ProviderAPI:
		return r.apiRuntime(settings)
	case model.ProviderSMTP:
		return r.smtpRuntime(settings)
	default:
		r.logger.Warn("Unknown mail provider in settings",
			zap.String("provider", string(settings.Provider)),
		)
		return nil
	}
}

func (r *Resolver) apiRuntime(s *model.MailSettings) model.MailRuntime {
	if s.APIKeyEncrypted == "" {
		return nil
	}
	apiKey, ok := r.secrets.Decrypt(s.APIKeyEncrypted)
	if !ok || apiKey == "" {
		r.logger.Warn("Failed to decrypt mail API key, treating mail as unconfigured")
		return nil
	}

	endpoint := s.APIEndpoint
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	return &model.APIRuntime{
		Endpoint:  endpoint,
		APIKey:    apiKey,
		FromEmail: s.FromEmail,
		ReplyTo:   s.ReplyTo,
	}
}

func (r *Resolver) smtpRuntime(s *model.MailSettings) model.MailRuntime {
	if s.SMTPHost == "" || s.SMTPPassEncrypted == "" {
		return nil
	}
	pass, ok := r.secrets.Decrypt(s.SMTPPassEncrypted)
	if !ok || pass == "" {
		r.logger.Warn("Failed to decrypt SMTP password, treating mail as unconfigured")
		return nil
	}

	user := s.SMTPUser
	if user == "" {
		user = s.FromEmail
	}
	port := s.SMTPPort
	if port == 0 {
		port = defaultSMTPPort
	}
	return &model.SMTPRuntime{
		Host:      s.SMTPHost,
		Port:      port,
		User:      user,
		Pass:      pass,
		FromEmail: s.FromEmail,
		ReplyTo:   s.ReplyTo,
	}
}

// fromEnv is the environment-variable fallback tier: the HTTP API
// provider is checked first, then SMTP.
func (r *Resolver) fromEnv() model.MailRuntime {
	if r.env.APIKey != "" && plausibleAddress(r.env.FromEmail) {
		endpoint := r.env.APIEndpoint
		if endpoint == "" {
			endpoint = DefaultAPIEndpoint
		}
		return &model.APIRuntime{
			Endpoint:  endpoint,
			APIKey:    r.env.APIKey,
			FromEmail: r.env.FromEmail,
			ReplyTo:   r.env.ReplyTo,
		}
	}

	if r.env.SMTPHost != "" && r.env.SMTPPass != "" && plausibleAddress(r.env.FromEmail) {
		user := r.env.SMTPUser
		if user == "" {
			user = r.env.FromEmail
		}
		port := r.env.SMTPPort
		if port == 0 {
			port = defaultSMTPPort
		}
		return &model.SMTPRuntime{
			Host:      r.env.SMTPHost,
			Port:      port,
			User:      user,
			Pass:      r.env.SMTPPass,
			FromEmail: r.env.FromEmail,
			ReplyTo:   r.env.ReplyTo,
		}
	}

	return nil
}

func plausibleAddress(addr string) bool {
	if addr == "" {
		return false
	}
	_, err := mail.ParseAddress(addr)
	return err == nil
}
