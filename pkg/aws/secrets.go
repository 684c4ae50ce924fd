package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// ErrSecretNotFound lets callers fall back to env values for absent secrets.
var ErrSecretNotFound = errors.New("secret not found")

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient resolves provider keys and DB credentials once per process.
// Only hits are cached so a secret created after boot is picked up on the
// next lookup.
type SecretsClient struct {
	api SecretsManagerAPI

	mu    sync.RWMutex
	cache map[string]string
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return NewSecretsClientWithAPI(secretsmanager.NewFromConfig(cfg))
}

func NewSecretsClientWithAPI(api SecretsManagerAPI) *SecretsClient {
	return &SecretsClient{api: api, cache: map[string]string{}}
}

func (s *SecretsClient) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	cached, hit := s.cache[name]
	s.mu.RUnlock()
	if hit {
		return cached, nil
	}

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
	var missing *smtypes.ResourceNotFoundException
	switch {
	case errors.As(err, &missing):
		return "", fmt.Errorf("%s: %w", name, ErrSecretNotFound)
	case err != nil:
		return "", fmt.Errorf("read secret %s: %w", name, err)
	case out.SecretString == nil || *out.SecretString == "":
		// binary secrets are not used by this service
		return "", fmt.Errorf("%s has no string value: %w", name, ErrSecretNotFound)
	}

	s.mu.Lock()
	s.cache[name] = *out.SecretString
	s.mu.Unlock()
	return *out.SecretString, nil
}
