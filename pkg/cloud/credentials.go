package cloud

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v8"
)

// ErrMissingCredential reports an unset credential environment variable.
// The driver surfaces it as an authentication failure during init.
var ErrMissingCredential = errors.New("missing credential")

// Credentials are the four opaque secrets the control plane authenticates
// with. They are read from the environment only; configuration files never
// carry them.
type Credentials struct {
	// ClientID identifies the service principal. It doubles as the
	// authorization subject.
	ClientID string `env:"ARM_CLIENT_ID"`
	// ClientSecret authenticates the service principal.
	ClientSecret string `env:"ARM_CLIENT_SECRET"`
	// SubscriptionID is the default subscription.
	SubscriptionID string `env:"ARM_SUBSCRIPTION_ID"`
	// TenantID is the directory tenant.
	TenantID string `env:"ARM_TENANT_ID"`
}

// LoadCredentials reads credentials from the environment. Every variable
// must be present and non-empty.
func LoadCredentials() (*Credentials, error) {
	creds := &Credentials{}
	if err := env.Parse(creds); err != nil {
		return nil, fmt.Errorf("failed to parse credential environment: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// Validate checks that every credential is set.
func (c *Credentials) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"ARM_CLIENT_ID", c.ClientID},
		{"ARM_CLIENT_SECRET", c.ClientSecret},
		{"ARM_SUBSCRIPTION_ID", c.SubscriptionID},
		{"ARM_TENANT_ID", c.TenantID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s is not set", ErrMissingCredential, r.name)
		}
	}
	return nil
}

// Redacted returns a loggable view of the credentials with the secret
// masked.
func (c *Credentials) Redacted() map[string]string {
	return map[string]string{
		"client_id":       c.ClientID,
		"client_secret":   "***",
		"subscription_id": c.SubscriptionID,
		"tenant_id":       c.TenantID,
	}
}
