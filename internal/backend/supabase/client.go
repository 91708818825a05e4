package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/supabase-community/postgrest-go"
	storage "github.com/supabase-community/storage-go"
)

const (
	DefaultBucket = "photos"
	DefaultTable  = "photos"

	defaultTimeout = 30 * time.Second

	storagePath = "/storage/v1"
	restPath    = "/rest/v1"
)

// Config points the client at a hosted backend project.
type Config struct {
	Endpoint string
	APIKey   string
	Bucket   string
	Table    string
	Timeout  time.Duration
}

// Client talks to a hosted backend over its storage and REST interfaces. It serves
// both as blob storage and as the photo record store.
type Client struct {
	endpoint string
	bucket   string
	table    string
	timeout  time.Duration

	// objectsMu serializes storage calls; upload options are applied to
	// headers shared by every request of the storage client.
	objectsMu sync.Mutex
	objects   *storage.Client
	rest      *postgrest.Client
}

func NewClient(config Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(config.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("backend endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid backend endpoint %q: %w", config.Endpoint, err)
	}
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("backend api key is required")
	}
	bucket := config.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	table := config.Table
	if table == "" {
		table = DefaultTable
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	headers := map[string]string{"apikey": apiKey}
	rest := postgrest.NewClient(endpoint+restPath, "public", headers).SetAuthToken(apiKey)
	if rest.ClientError != nil {
		return nil, fmt.Errorf("failed to create backend rest client: %w", rest.ClientError)
	}

	return &Client{
		endpoint: endpoint,
		bucket:   bucket,
		table:    table,
		timeout:  timeout,
		objects:  storage.NewClient(endpoint+storagePath, apiKey, headers),
		rest:     rest,
	}, nil
}

// APIError is an error answer from the backend's REST interface.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %s: %s", e.Code, e.Message)
	}
	return "backend returned: " + e.Message
}

// restError recovers the code of a failed REST call. The REST client reports
// those as "(code) message".
func restError(err error) error {
	msg := err.Error()
	if !strings.HasPrefix(msg, "(") {
		return err
	}
	code, message, ok := strings.Cut(msg[1:], ") ")
	if !ok {
		return err
	}
	return &APIError{Code: code, Message: message}
}

// call runs a backend request bounded by ctx and the client timeout. Neither
// backend library takes a context, so an abandoned request finishes in the
// background and its result is dropped.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		slog.Debug("Backend: request complete",
			"op", op,
			"duration_ms", time.Since(start).Milliseconds(),
			"failed", err != nil)
		return err
	case <-ctx.Done():
		slog.Warn("Backend: request abandoned", "op", op, "error", ctx.Err())
		return ctx.Err()
	}
}

// Close is a no-op; both backend clients use the shared default transport.
func (c *Client) Close() error {
	return nil
}
