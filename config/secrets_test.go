package config

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSecrets map[string]string

func (m mapSecrets) GetSecret(key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", assert.AnError
}

func TestEnvSecretManager_GetSecret(t *testing.T) {
	t.Setenv("AFDATA_AUTOFOCUS_API_KEY", "af-key")

	value, err := (&EnvSecretManager{}).GetSecret(SecretAutoFocusKey)
	require.NoError(t, err)
	assert.Equal(t, "af-key", value)
}

func TestEnvSecretManager_MissingSecret(t *testing.T) {
	t.Setenv("AFDATA_GEOCODE_API_KEY", "")

	_, err := (&EnvSecretManager{}).GetSecret(SecretGeocodeKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AFDATA_GEOCODE_API_KEY")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestNewSecretManager_Providers(t *testing.T) {
	cfg := &Config{}
	manager, err := NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &EnvSecretManager{}, manager, "env is the default provider")

	cfg.Secrets.Provider = "gcp"
	_, err = NewSecretManager(cfg)
	assert.True(t, IsValidationError(err))
}

func TestVaultSecretManager_ReadsKV(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
	}{
		{"kv v1", `{"data":{"autofocus_api_key":"from-vault"}}`},
		{"kv v2", `{"data":{"data":{"autofocus_api_key":"from-vault"},"metadata":{}}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var reads atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reads.Add(1)
				assert.Equal(t, "/v1/secret/afdata", r.URL.Path)
				assert.Equal(t, "vault-token", r.Header.Get("X-Vault-Token"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tc.body)
			}))
			defer server.Close()

			cfg := &Config{}
			cfg.Secrets.Provider = "vault"
			cfg.Secrets.Vault.Address = server.URL
			cfg.Secrets.Vault.Token = "vault-token"

			manager, err := NewSecretManager(cfg)
			require.NoError(t, err)

			value, err := manager.GetSecret(SecretAutoFocusKey)
			require.NoError(t, err)
			assert.Equal(t, "from-vault", value)

			_, err = manager.GetSecret(SecretGeocodeKey)
			assert.ErrorIs(t, err, ErrSecretNotFound)
			assert.Equal(t, int32(1), reads.Load(), "the secret is read once per run")
		})
	}
}

func TestResolveKeys(t *testing.T) {
	keys, err := ResolveKeys(mapSecrets{SecretAutoFocusKey: "af", SecretGeocodeKey: "geo"}, Keys{})
	require.NoError(t, err)
	assert.Equal(t, Keys{AutoFocus: "af", Geocode: "geo"}, keys)

	keys, err = ResolveKeys(mapSecrets{SecretAutoFocusKey: "af"}, Keys{AutoFocus: "flag"})
	require.NoError(t, err)
	assert.Equal(t, "flag", keys.AutoFocus, "flags win over stored secrets")
	assert.Empty(t, keys.Geocode, "a missing geocoding key is not an error")

	_, err = ResolveKeys(mapSecrets{}, Keys{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
