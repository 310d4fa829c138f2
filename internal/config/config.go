package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/lehigh-university-libraries/examtag/internal/raster"
	"github.com/lehigh-university-libraries/examtag/internal/scanner"
	"github.com/lehigh-university-libraries/examtag/internal/stamper"
)

const EnvPrefix = "EXAMTAG"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Scan        Scan          `mapstructure:"scan"`
	Stamp       stamper.Style `mapstructure:"stamp"`
	SessionsDir string        `mapstructure:"sessions_dir" validate:"required"`
}

type Scan struct {
	DPI           float64     `mapstructure:"dpi" validate:"gte=72,lte=1200"`
	Workers       int         `mapstructure:"workers" validate:"gte=1,lte=64"`
	QRRegion      raster.Rect `mapstructure:"qr_region"`
	NameBoxRegion raster.Rect `mapstructure:"name_box_region"`
}

// ScannerOptions builds scanner options. Name boxes are captured only when
// snapshots is set.
func (s Scan) ScannerOptions(snapshots bool) scanner.Options {
	opts := scanner.Options{
		DPI:      s.DPI,
		QRRegion: s.QRRegion,
		Workers:  s.Workers,
	}
	if snapshots {
		region := s.NameBoxRegion
		opts.SnapshotRegion = &region
	}
	return opts
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("scan.dpi", float64(raster.DefaultDPI))
	v.SetDefault("scan.workers", 1)
	setRect(v, "scan.qr_region", raster.QRRegion)
	setRect(v, "scan.name_box_region", raster.NameBoxRegion)

	style := stamper.DefaultStyle()
	v.SetDefault("stamp.margin", style.Margin)
	v.SetDefault("stamp.qr_size", style.QRSize)
	v.SetDefault("stamp.qr_dpi", style.QRDPI)
	v.SetDefault("stamp.name_label", style.NameLabel)
	v.SetDefault("stamp.date_label", style.DateLabel)

	v.SetDefault("sessions_dir", defaultSessionsDir())
}

func setRect(v *viper.Viper, key string, r raster.Rect) {
	v.SetDefault(key+".x", r.X)
	v.SetDefault(key+".y", r.Y)
	v.SetDefault(key+".w", r.W)
	v.SetDefault(key+".h", r.H)
}

func defaultSessionsDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "examtag", "sessions")
	}
	return filepath.Join(".examtag", "sessions")
}

// Load reads defaults, then the optional YAML file at path, then EXAMTAG_*
// environment variables (EXAMTAG_SCAN_WORKERS for scan.workers).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

type ctxKey struct{}

// WithContext attaches cfg to ctx.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the configuration attached by WithContext, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(ctxKey{}).(*Config)
	return cfg
}
