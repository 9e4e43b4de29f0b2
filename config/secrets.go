package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
)

// Names of the keys afdata looks up in a secret store
const (
	SecretAutoFocusKey = "autofocus_api_key"
	SecretGeocodeKey   = "geocode_api_key"
)

// ErrSecretNotFound is returned when a store has no value for a key
var ErrSecretNotFound = errors.New("secret not found")

// SecretManager retrieves API keys
type SecretManager interface {
	GetSecret(key string) (string, error)
}

// EnvSecretManager reads AFDATA_<KEY> environment variables. It is the default provider.
type EnvSecretManager struct{}

func (e *EnvSecretManager) GetSecret(key string) (string, error) {
	name := "AFDATA_" + strings.ToUpper(key)
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, name)
}

// bundle holds one remote secret document, fetched on first use. Both keys of a run
// resolve from a single read.
type bundle struct {
	source string
	fetch  func() (map[string]any, error)

	once   sync.Once
	values map[string]any
	err    error
}

func (b *bundle) GetSecret(key string) (string, error) {
	b.once.Do(func() { b.values, b.err = b.fetch() })
	if b.err != nil {
		return "", b.err
	}
	raw, ok := b.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %s", ErrSecretNotFound, b.source, key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: value of %s is not a non-empty string", b.source, key)
	}
	return s, nil
}

// NewVaultSecretManager reads keys from the KV secret at secrets.vault.path (KV v1 or v2)
func NewVaultSecretManager(cfg *Config) (SecretManager, error) {
	vc := cfg.Secrets.Vault
	client, err := vault.NewClient(&vault.Config{Address: vc.Address, Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	token := vc.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token != "" {
		client.SetToken(token)
	}

	path := vc.Path
	if path == "" {
		path = "secret/afdata"
	}
	return &bundle{
		source: "vault secret " + path,
		fetch: func() (map[string]any, error) {
			secret, err := client.Logical().Read(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read Vault secret %s: %w", path, err)
			}
			if secret == nil || secret.Data == nil {
				return nil, fmt.Errorf("%w: no Vault secret at %s", ErrSecretNotFound, path)
			}
			if inner, ok := secret.Data["data"].(map[string]any); ok {
				return inner, nil
			}
			return secret.Data, nil
		},
	}, nil
}

// NewAWSSecretManager reads keys from a JSON object stored in AWS Secrets Manager
func NewAWSSecretManager(cfg *Config) (SecretManager, error) {
	ac := cfg.Secrets.AWS
	awsCfg := &aws.Config{Region: aws.String(ac.Region)}
	if ac.AccessKey != "" && ac.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(ac.AccessKey, ac.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	client := secretsmanager.New(sess)

	id := ac.SecretID
	if id == "" {
		id = "afdata/secrets"
	}
	return &bundle{
		source: "AWS secret " + id,
		fetch: func() (map[string]any, error) {
			out, err := client.GetSecretValue(&secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
			if err != nil {
				return nil, fmt.Errorf("failed to read AWS secret %s: %w", id, err)
			}
			if out.SecretString == nil {
				return nil, fmt.Errorf("AWS secret %s has no string value", id)
			}
			var values map[string]any
			if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
				return nil, fmt.Errorf("AWS secret %s is not a JSON object: %w", id, err)
			}
			return values, nil
		},
	}, nil
}

// NewSecretManager creates the manager selected by secrets.provider
func NewSecretManager(cfg *Config) (SecretManager, error) {
	switch cfg.Secrets.Provider {
	case "", "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(cfg)
	case "aws":
		return NewAWSSecretManager(cfg)
	}
	return nil, &ValidationError{Field: "secrets.provider", Message: fmt.Sprintf("unsupported provider %q", cfg.Secrets.Provider)}
}

// Keys holds the resolved API keys
type Keys struct {
	AutoFocus string
	Geocode   string
}

// ResolveKeys fills keys not already given (by flag) from the secret manager.
// The AutoFocus key is required; a missing geocoding key only disables geocoding.
func ResolveKeys(manager SecretManager, given Keys) (Keys, error) {
	keys := given
	if keys.AutoFocus == "" {
		v, err := manager.GetSecret(SecretAutoFocusKey)
		if err != nil {
			return keys, &ValidationError{Field: "api key", Message: "no AutoFocus API key: " + err.Error()}
		}
		keys.AutoFocus = v
	}
	if keys.Geocode == "" {
		if v, err := manager.GetSecret(SecretGeocodeKey); err == nil {
			keys.Geocode = v
		}
	}
	return keys, nil
}
