package publisher

import (
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/pkg/idgen"
)

const (
	// PathPrefix is the storage folder every published photo lands in.
	PathPrefix = "photos/"

	suffixLength = 6
)

// NewSuffix is the random part of a file name: six base36 characters.
func NewSuffix() idgen.Generator {
	return idgen.NanoID(suffixLength)
}

// FileName returns "photo-<unix ms>-<suffix>.<ext>".
func FileName(now time.Time, suffix idgen.Generator, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("photo-%d-%s.%s", now.UnixMilli(), suffix(), ext)
}
