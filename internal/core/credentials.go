package core

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read, when present, before the process environment is consulted.
const DefaultEnvFile = ".env.local"

var (
	// ErrNotConfigured means the hosted backend credentials are absent.
	ErrNotConfigured = errors.New("backend credentials are not configured")
)

const (
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeLoadError     = "LOAD_ERROR"
)

// Credentials locate and authorize the hosted backend.
type Credentials struct {
	URL string `env:"SNAPFRAME_BACKEND_URL"`
	Key string `env:"SNAPFRAME_BACKEND_KEY"`
}

// LoadCredentials reads the backend credentials from the given env files and the
// environment. Existing environment variables win over file values. Missing values
// yield ErrNotConfigured; any other failure is a load error.
func LoadCredentials(envFiles ...string) (*Credentials, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return nil, fmt.Errorf("failed to parse backend credentials: %w", err)
	}
	creds.URL = strings.TrimSpace(creds.URL)
	creds.Key = strings.TrimSpace(creds.Key)

	var missing []string
	if creds.URL == "" {
		missing = append(missing, "SNAPFRAME_BACKEND_URL")
	}
	if creds.Key == "" {
		missing = append(missing, "SNAPFRAME_BACKEND_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return &creds, nil
}

// CredentialErrorCode classifies a LoadCredentials error for API responses.
func CredentialErrorCode(err error) string {
	if errors.Is(err, ErrNotConfigured) {
		return CodeNotConfigured
	}
	return CodeLoadError
}
