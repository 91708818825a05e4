package core

import (
	"fmt"
	"image"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/blobstore"
	"github.com/jo-hoe/snapframe/internal/backend/codeminter"
	"github.com/jo-hoe/snapframe/internal/backend/composer"
	"github.com/jo-hoe/snapframe/internal/session"
	"github.com/skip2/go-qrcode"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

// CompositionConfig describes the branded canvas every capture is rendered onto.
type CompositionConfig struct {
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`
	Format        string        `yaml:"format"`
	JPEGQuality   int           `yaml:"jpegQuality"`
	Resampler     string        `yaml:"resampler"`
	AssetLocation string        `yaml:"assetLocation"`
	AssetTimeout  time.Duration `yaml:"assetTimeout"`
	// MaxSourcePixels rejects captures whose declared width*height is larger.
	MaxSourcePixels int    `yaml:"maxSourcePixels"`
	BandColor       string `yaml:"bandColor"`
	TextColor       string `yaml:"textColor"`
	Caption         string `yaml:"caption"`
	Wordmark        string `yaml:"wordmark"`
}

type SessionConfig struct {
	CountdownFrom    int           `yaml:"countdownFrom"`
	TickInterval     time.Duration `yaml:"tickInterval"`
	OperationTimeout time.Duration `yaml:"operationTimeout"`
	// IdleTimeout evicts sessions nobody has touched for this long. Zero keeps them.
	IdleTimeout time.Duration `yaml:"idleTimeout"`
}

type CodeConfig struct {
	Size          int    `yaml:"size"`
	RecoveryLevel string `yaml:"recoveryLevel"`
}

type AdminConfig struct {
	// ListLimit caps how many records admin listings, stats and exports read.
	ListLimit int `yaml:"listLimit"`
}

type ServiceConfig struct {
	Port int `yaml:"port"`
	// Origin is the public base URL retrieval codes point at.
	Origin      string                  `yaml:"origin"`
	Timezone    string                  `yaml:"timezone"`
	Composition CompositionConfig       `yaml:"composition"`
	Session     SessionConfig           `yaml:"session"`
	Code        CodeConfig              `yaml:"code"`
	Storage     blobstore.StorageConfig `yaml:"storage"`
	Database    Database                `yaml:"database"`
	Admin       AdminConfig             `yaml:"admin"`
}

// DefaultServiceConfig returns the settings used for every key a config file omits.
func DefaultServiceConfig() ServiceConfig {
	composition := composer.DefaultOptions()
	style := composition.Style
	sessionDefaults := session.DefaultConfig()
	return ServiceConfig{
		Port:     8080,
		Origin:   "http://localhost:8080",
		Timezone: "UTC",
		Composition: CompositionConfig{
			Width:           composition.Canvas.X,
			Height:          composition.Canvas.Y,
			Format:          string(composition.Format),
			JPEGQuality:     composition.JPEGQuality,
			Resampler:       string(composition.Resampler),
			AssetTimeout:    composition.AssetTimeout,
			MaxSourcePixels: composition.MaxSourcePixels,
			BandColor:       hexColor(style.BandColor.R, style.BandColor.G, style.BandColor.B),
			TextColor:       hexColor(style.TextColor.R, style.TextColor.G, style.TextColor.B),
			Caption:         style.Caption,
			Wordmark:        style.Wordmark,
		},
		Session: SessionConfig{
			CountdownFrom:    sessionDefaults.CountdownFrom,
			TickInterval:     sessionDefaults.TickInterval,
			OperationTimeout: sessionDefaults.OperationTimeout,
			IdleTimeout:      30 * time.Minute,
		},
		Code: CodeConfig{
			Size:          codeminter.DefaultSize,
			RecoveryLevel: "medium",
		},
		Storage: blobstore.StorageConfig{
			Driver: "bolt",
			Params: map[string]any{"path": "snapframe-blobs.db"},
		},
		Database: Database{
			Type:             "sqlite",
			ConnectionString: "snapframe.db",
		},
		Admin: AdminConfig{ListLimit: 10000},
	}
}

func hexColor(r, g, b uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*ServiceConfig, error) {
	config := DefaultServiceConfig()
	// Params of the default driver must not leak into a differently configured one.
	config.Storage = blobstore.StorageConfig{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Storage.Driver == "" {
		config.Storage = DefaultServiceConfig().Storage
	}
	if config.Storage.Params == nil {
		config.Storage.Params = map[string]any{}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate checks values that cannot be caught at decode time.
func (c *ServiceConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	origin, err := url.ParseRequestURI(c.Origin)
	if err != nil || origin.Host == "" {
		return fmt.Errorf("origin must be an absolute URL, got %q", c.Origin)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	if _, err := c.ComposerOptions(); err != nil {
		return err
	}
	if _, err := c.RecoveryLevel(); err != nil {
		return err
	}
	if c.Code.Size <= 0 {
		return fmt.Errorf("code size must be positive, got %d", c.Code.Size)
	}
	if c.Session.CountdownFrom < 0 || c.Session.TickInterval <= 0 {
		return fmt.Errorf("invalid countdown: %d ticks of %s", c.Session.CountdownFrom, c.Session.TickInterval)
	}
	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session idle timeout must not be negative")
	}
	if !blobstore.DefaultRegistry.IsRegistered(c.Storage.Driver) {
		return fmt.Errorf("unknown storage driver %q (available: %s)", c.Storage.Driver,
			strings.Join(blobstore.DefaultRegistry.GetRegisteredNames(), ", "))
	}
	switch c.Database.Type {
	case "sqlite":
		if strings.TrimSpace(c.Database.ConnectionString) == "" {
			return fmt.Errorf("sqlite connection string is required")
		}
	case "supabase":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Admin.ListLimit < 0 {
		return fmt.Errorf("admin list limit must not be negative")
	}
	return nil
}

// ComposerOptions translates the composition section into composer options.
func (c *ServiceConfig) ComposerOptions() (composer.Options, error) {
	opts := composer.DefaultOptions()
	cc := c.Composition

	format, err := composer.ParseFormat(cc.Format)
	if err != nil {
		return opts, err
	}
	resampler, err := composer.ParseResampler(cc.Resampler)
	if err != nil {
		return opts, err
	}
	band, err := composer.ParseHexColor(cc.BandColor)
	if err != nil {
		return opts, fmt.Errorf("invalid band color: %w", err)
	}
	text, err := composer.ParseHexColor(cc.TextColor)
	if err != nil {
		return opts, fmt.Errorf("invalid text color: %w", err)
	}

	opts.Canvas = image.Pt(cc.Width, cc.Height)
	opts.Format = format
	opts.JPEGQuality = cc.JPEGQuality
	opts.Resampler = resampler
	opts.AssetTimeout = cc.AssetTimeout
	opts.MaxSourcePixels = cc.MaxSourcePixels
	opts.Style.BandColor = band
	opts.Style.TextColor = text
	opts.Style.Caption = cc.Caption
	opts.Style.Wordmark = cc.Wordmark

	if _, err := composer.New(nil, opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func (c *ServiceConfig) RecoveryLevel() (qrcode.RecoveryLevel, error) {
	return codeminter.ParseRecoveryLevel(c.Code.RecoveryLevel)
}

func (c *ServiceConfig) SessionSettings() session.Config {
	return session.Config{
		CountdownFrom:    c.Session.CountdownFrom,
		TickInterval:     c.Session.TickInterval,
		OperationTimeout: c.Session.OperationTimeout,
	}
}

func (c *ServiceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
