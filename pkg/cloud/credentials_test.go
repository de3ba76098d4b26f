package cloud

import (
	"errors"
	"strings"
	"testing"
)

func setCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ARM_CLIENT_ID", "11111111-1111-1111-1111-111111111111")
	t.Setenv("ARM_CLIENT_SECRET", "s3cret")
	t.Setenv("ARM_SUBSCRIPTION_ID", "22222222-2222-2222-2222-222222222222")
	t.Setenv("ARM_TENANT_ID", "33333333-3333-3333-3333-333333333333")
}

func TestLoadCredentials(t *testing.T) {
	setCredentialEnv(t)

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if creds.ClientID != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("ClientID = %q", creds.ClientID)
	}
	if creds.SubscriptionID != "22222222-2222-2222-2222-222222222222" {
		t.Errorf("SubscriptionID = %q", creds.SubscriptionID)
	}
}

func TestLoadCredentialsMissing(t *testing.T) {
	vars := []string{"ARM_CLIENT_ID", "ARM_CLIENT_SECRET", "ARM_SUBSCRIPTION_ID", "ARM_TENANT_ID"}

	for _, missing := range vars {
		t.Run(missing, func(t *testing.T) {
			setCredentialEnv(t)
			t.Setenv(missing, "")

			_, err := LoadCredentials()
			if !errors.Is(err, ErrMissingCredential) {
				t.Fatalf("LoadCredentials() error = %v, want ErrMissingCredential", err)
			}
			if !strings.Contains(err.Error(), missing) {
				t.Errorf("error %q does not name %s", err, missing)
			}
		})
	}
}

func TestCredentialsRedacted(t *testing.T) {
	setCredentialEnv(t)

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	redacted := creds.Redacted()
	if redacted["client_secret"] == "s3cret" {
		t.Errorf("Redacted() leaks the client secret: %v", redacted)
	}
	if redacted["client_id"] != creds.ClientID {
		t.Errorf("Redacted() client_id = %q, want %q", redacted["client_id"], creds.ClientID)
	}
}
