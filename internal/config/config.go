package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/civicpulse/upload-service/internal/domain"
	"github.com/civicpulse/upload-service/internal/log"
	"github.com/civicpulse/upload-service/internal/sniff"
	"github.com/civicpulse/upload-service/internal/transcode"
	"github.com/civicpulse/upload-service/internal/validation"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	Env           string `env:"ENV" envDefault:"development"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	SniffBackend  string `env:"SNIFF_BACKEND" envDefault:"mimetype"`

	Log       LogConfig       `envPrefix:"LOG_"`
	Upload    UploadConfig    `envPrefix:"UPLOAD_"`
	Transcode TranscodeConfig `envPrefix:"TRANSCODE_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

type UploadConfig struct {
	Root string `env:"ROOT" envDefault:"uploads/secure"`

	// A zero ceiling rejects the category outright.
	ImageMaxSize    int64 `env:"IMAGE_MAX_SIZE" envDefault:"10485760"`
	VideoMaxSize    int64 `env:"VIDEO_MAX_SIZE" envDefault:"52428800"`
	DocumentMaxSize int64 `env:"DOCUMENT_MAX_SIZE" envDefault:"0"`

	ImageTypes    []string `env:"IMAGE_TYPES" envSeparator:"," envDefault:"image/jpeg,image/png,image/gif,image/webp,image/tiff"`
	VideoTypes    []string `env:"VIDEO_TYPES" envSeparator:"," envDefault:"video/mp4,video/quicktime"`
	DocumentTypes []string `env:"DOCUMENT_TYPES" envSeparator:","`

	MaxFiles int `env:"MAX_FILES" envDefault:"5"`
}

type TranscodeConfig struct {
	Enabled      bool   `env:"ENABLED" envDefault:"true"`
	Format       string `env:"FORMAT" envDefault:"webp"`
	Quality      int    `env:"QUALITY" envDefault:"85"`
	MaxDimension int    `env:"MAX_DIMENSION" envDefault:"2048"`
	MaxPixels    int    `env:"MAX_PIXELS" envDefault:"50000000"`
}

type AuthConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"false"`
	JWKSUrl      string        `env:"JWKS_URL" envDefault:"http://user-service:3000/.well-known/jwks.json"`
	Issuer       string        `env:"ISSUER" envDefault:"http://user-service:3000"`
	Audience     string        `env:"AUDIENCE" envDefault:"civicpulse"`
	JWKSCacheTTL time.Duration `env:"JWKS_CACHE_TTL" envDefault:"15m"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom reads configuration from environ only, ignoring the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := log.New(io.Discard, c.Log.Level, c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	if _, err := sniff.New(c.SniffBackend); err != nil {
		errs = append(errs, err)
	}
	if c.Upload.Root == "" {
		errs = append(errs, errors.New("UPLOAD_ROOT must not be empty"))
	}
	if c.Upload.MaxFiles < 1 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_FILES must be positive, got %d", c.Upload.MaxFiles))
	}
	for category, size := range c.ceilings() {
		if size < 0 {
			errs = append(errs, fmt.Errorf("%s size ceiling must not be negative, got %d", category, size))
		}
	}
	for category, types := range c.allowLists() {
		if _, err := parseTypes(category, types); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Transcode.Enabled {
		if _, err := transcode.New(c.TranscodeOptions()); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Auth.Enabled && c.Auth.JWKSUrl == "" {
		errs = append(errs, errors.New("AUTH_JWKS_URL is required when auth is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Policy builds the validation policy. Validate must have succeeded.
func (c *Config) Policy() validation.Policy {
	policy := validation.Policy{
		Allowed: make(map[domain.Category][]domain.MIMEType),
		MaxSize: make(map[domain.Category]int64),
	}
	for category, types := range c.allowLists() {
		if parsed, _ := parseTypes(category, types); len(parsed) > 0 {
			policy.Allowed[category] = parsed
		}
	}
	for category, size := range c.ceilings() {
		if size > 0 {
			policy.MaxSize[category] = size
		}
	}
	return policy
}

func (c *Config) TranscodeOptions() transcode.Options {
	return transcode.Options{
		Format:       transcode.Format(strings.ToLower(c.Transcode.Format)),
		Quality:      c.Transcode.Quality,
		MaxDimension: c.Transcode.MaxDimension,
		MaxPixels:    c.Transcode.MaxPixels,
	}
}

func (c *Config) ceilings() map[domain.Category]int64 {
	return map[domain.Category]int64{
		domain.CategoryImage:    c.Upload.ImageMaxSize,
		domain.CategoryVideo:    c.Upload.VideoMaxSize,
		domain.CategoryDocument: c.Upload.DocumentMaxSize,
	}
}

func (c *Config) allowLists() map[domain.Category][]string {
	return map[domain.Category][]string{
		domain.CategoryImage:    c.Upload.ImageTypes,
		domain.CategoryVideo:    c.Upload.VideoTypes,
		domain.CategoryDocument: c.Upload.DocumentTypes,
	}
}

// parseTypes checks that every entry is a known type of the given category.
func parseTypes(category domain.Category, raw []string) ([]domain.MIMEType, error) {
	types := make([]domain.MIMEType, 0, len(raw))
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		m := domain.MIMEType(s)
		if !m.Known() {
			return nil, fmt.Errorf("%s allow-list: unknown type %q", category, s)
		}
		if c, _ := m.Category(); c != category {
			return nil, fmt.Errorf("%s allow-list: %s belongs to %s", category, s, c)
		}
		types = append(types, m)
	}
	return types, nil
}
