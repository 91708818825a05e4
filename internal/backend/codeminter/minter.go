package codeminter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/jo-hoe/snapframe/internal/common"
)

const DefaultSize = 256

// ErrEmptyID is returned when asked to mint a code for a record without an id.
var ErrEmptyID = errors.New("record id is required")

// RetrievalCode is the scannable pointer to a published record. It is derived
// from the record id and never persisted on its own.
type RetrievalCode struct {
	URL string
	PNG []byte
}

// EncodingError means the retrieval URL could not be rendered as a code.
type EncodingError struct {
	URL string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode retrieval code for %s: %v", e.URL, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// ParseRecoveryLevel maps "low", "medium", "high" and "highest" to a QR recovery level.
// Empty selects medium.
func ParseRecoveryLevel(name string) (qrcode.RecoveryLevel, error) {
	switch strings.ToLower(name) {
	case "low":
		return qrcode.Low, nil
	case "", "medium":
		return qrcode.Medium, nil
	case "high":
		return qrcode.High, nil
	case "highest":
		return qrcode.Highest, nil
	default:
		return qrcode.Medium, fmt.Errorf("invalid recovery level: %s", name)
	}
}

// Minter turns record ids into retrieval codes for one public origin.
type Minter struct {
	origin string
	size   int
	level  qrcode.RecoveryLevel
}

func New(origin string, size int, level qrcode.RecoveryLevel) *Minter {
	if size == 0 {
		size = DefaultSize
	}
	return &Minter{origin: origin, size: size, level: level}
}

// URL returns the retrieval address for id without rendering a code.
func (m *Minter) URL(id string) string {
	return common.RetrievalURL(m.origin, id)
}

func (m *Minter) Mint(ctx context.Context, id string) (*RetrievalCode, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := m.URL(id)

	png, err := qrcode.Encode(target, m.level, m.size)
	if err != nil {
		slog.Error("CodeMinter: failed to render code", "url", target, "error", err)
		return nil, &EncodingError{URL: target, Err: err}
	}
	slog.Debug("CodeMinter: code rendered", "id", id, "png_size_bytes", len(png))
	return &RetrievalCode{URL: target, PNG: png}, nil
}
