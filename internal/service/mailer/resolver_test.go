package mailer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/pkg/config"
)

type fakeSettingsStore struct {
	settings *model.MailSettings
	err      error
	calls    int
}

func (f *fakeSettingsStore) Get(ctx context.Context) (*model.MailSettings, error) {
	f.calls++
	return f.settings, f.err
}

type fakeSecretStore struct{}

func (fakeSecretStore) Decrypt(ciphertext string) (string, bool) {
	if plain, ok := strings.CutPrefix(ciphertext, "enc:"); ok {
		return plain, true
	}
	return "", false
}

func TestRuntimeConfigResolvesSMTPSettings(t *testing.T) {
	store := &fakeSettingsStore{settings: &model.MailSettings{
		Enabled:           true,
		Provider:          model.ProviderSMTP,
		FromEmail:         "news@example.com",
		ReplyTo:           "reply@example.com",
		SMTPHost:          "smtp.example.com",
		SMTPPort:          465,
		SMTPUser:          "mailer",
		SMTPPassEncrypted: "enc:hunter2",
	}}
	r := NewResolver(store, fakeSecretStore{}, config.MailEnvConfig{}, zap.NewNop())

	runtime := r.RuntimeConfig(context.Background(), true)
	require.NotNil(t, runtime)

	smtp, ok := runtime.(*model.SMTPRuntime)
	require.True(t, ok)
	assert.Equal(t, "smtp.example.com", smtp.Host)
	assert.Equal(t, 465, smtp.Port)
	assert.Equal(t, "mailer", smtp.User)
	assert.Equal(t, "hunter2", smtp.Pass)
	assert.Equal(t, "news@example.com", smtp.FromEmail)
}

func TestRuntimeConfigSMTPUserFallsBackToFromEmail(t *testing.T) {
	store := &fakeSettingsStore{settings: &model.MailSettings{
		Enabled:           true,
		Provider:          model.ProviderSMTP,
		FromEmail:         "news@example.com",
		SMTPHost:          "smtp.example.com",
		SMTPPassEncrypted: "enc:hunter2",
	}}
	r := NewResolver(store, fakeSecretStore{}, config.MailEnvConfig{}, zap.NewNop())

	runtime := r.RuntimeConfig(context.Background(), true)
	smtp, ok := runtime.(*model.SMTPRuntime)
	require.True(t, ok)
	assert.Equal(t, "news@example.com", smtp.User)
	assert.Equal(t, 587, smtp.Port)
}

func TestRuntimeConfigResolvesAPISettings(t *testing.T) {
	store := &fakeSettingsStore{settings: &model.MailSettings{
		Enabled:         true,
		Provider:        model.ProviderAPI,
		FromEmail:       "news@example.com",
		APIKeyEncrypted: "enc:rk_live_123",
	}}
	r := NewResolver(store, fakeSecretStore{}, config.MailEnvConfig{}, zap.NewNop())

	runtime := r.RuntimeConfig(context.Background(), true)
	api, ok := runtime.(*model.APIRuntime)
	require.True(t, ok)
	assert.Equal(t, "rk_live_123", api.APIKey)
	assert.Equal(t, DefaultAPIEndpoint, api.Endpoint)
}

func TestRuntimeConfigDecryptFailureMeansUnconfigured(t *testing.T) {
	store := &fakeSettingsStore{settings: &model.MailSettings{
		Enabled:         true,
		Provider:        model.ProviderAPI,
		FromEmail:       "news@example.com",
		APIKeyEncrypted: "corrupted",
	}}
	r := NewResolver(store, fakeSecretStore{}, config.MailEnvConfig{}, zap.NewNop())

	assert.Nil(t, r.RuntimeConfig(context.Background(), true))
}

func TestRuntimeConfigDisabledSettingsFallBackToEnv(t *testing.T) {
	store := &fakeSettingsStore{settings: &model.MailSettings{
		Enabled:         false,
		Provider:        model.ProviderAPI,
		FromEmail:       "news@example.com",
		APIKeyEncrypted: "enc:rk_live_123",
	}}
	env := config.MailEnvConfig{
		SMTPHost:  "smtp.env.example.com",
		SMTPPass:  "env-pass",
		FromEmail: "env@example.com",
	}
	r := NewResolver(store, fakeSecretStore{}, env, zap.NewNop())

	runtime := r.RuntimeConfig(context.Background(), true)
	smtp, ok := runtime.(*model.SMTPRuntime)
	require.True(t, ok)
	assert.Equal(t, "smtp.env.example.com", smtp.Host)
	assert.Equal(t, "env-pass", smtp.Pass)
}

func TestRuntimeConfigEnvPrefersAPIOverSMTP(t *testing.T) {
	env := config.MailEnvConfig{
		APIKey:    "env-key",
		FromEmail: "env@example.com",
		SMTPHost:  "smtp.env.example.com",
		SMTPPass:  "env-pass",
	}
	r := NewResolver(&fakeSettingsStore{}, fakeSecretStore{}, env, zap.NewNop())

	runtime := r.RuntimeConfig(context.Background(), true)
	_, ok := runtime.(*model.APIRuntime)
	assert.True(t, ok)
}

func TestRuntimeConfigCachesWithinTTL(t *testing.T) {
	store := &fakeSettingsStore{}
	r := NewResolver(store, fakeSecretStore{}, config.MailEnvConfig{}, zap.NewNop())

	// nil（未配置）也会被缓存
	assert.Nil(t, r.RuntimeConfig(context.Background(), false))
	assert.Nil(t, r.RuntimeConfig(context.Background(), false))
	assert.Equal(t, 1, store.calls)
}

func TestRuntimeConfigForceBypassesCache(t *testing.T) {
	store := &fakeSettingsStore{}
	r := NewResolver(store, fakeSecretStore{}, config.MailEnvConfig{}, zap.NewNop())

	r.RuntimeConfig(context.Background(), false)
	r.RuntimeConfig(context.Background(), true)
	assert.Equal(t, 2, store.calls)
}

func TestRuntimeConfigExpiredTTLReloads(t *testing.T) {
	store := &fakeSettingsStore{}
	r := NewResolver(store, fakeSecretStore{}, config.MailEnvConfig{}, zap.NewNop()).
		WithTTL(time.Nanosecond)

	r.RuntimeConfig(context.Background(), false)
	time.Sleep(time.Millisecond)
	r.RuntimeConfig(context.Background(), false)
	assert.Equal(t, 2, store.calls)
}

func TestInvalidateDropsCachedValue(t *testing.T) {
	store := &fakeSettingsStore{}
	r := NewResolver(store, fakeSecretStore{}, config.MailEnvConfig{}, zap.NewNop())

	r.RuntimeConfig(context.Background(), false)
	r.Invalidate()
	r.RuntimeConfig(context.Background(), false)
	assert.Equal(t, 2, store.calls)
}

func TestRuntimeConfigStoreErrorFallsBackToEnv(t *testing.T) {
	store := &fakeSettingsStore{err: assert.AnError}
	env := config.MailEnvConfig{APIKey: "env-key", FromEmail: "env@example.com"}
	r := NewResolver(store, fakeSecretStore{}, env, zap.NewNop())

	runtime := r.RuntimeConfig(context.Background(), true)
	require.NotNil(t, runtime)
	assert.Equal(t, model.ProviderAPI, runtime.Transport())
}
