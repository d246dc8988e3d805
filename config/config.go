// Package config layers defaults, an optional .env file, an optional
// signcap.yaml and SIGNCAP_* environment variables into one validated
// Config. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"signcap/codec"
	"signcap/media"
	"signcap/remote"
)

const EnvPrefix = "SIGNCAP"

type Config struct {
	CloudName     string        `mapstructure:"cloud_name" validate:"required"`
	UploadPreset  string        `mapstructure:"upload_preset" validate:"required"`
	UploadBaseURL string        `mapstructure:"upload_base_url" validate:"required,url"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout" validate:"gt=0"`

	InferenceBaseURL string        `mapstructure:"inference_base_url" validate:"required,url"`
	RecordPath       string        `mapstructure:"record_path" validate:"required,startswith=/"`
	UploadPath       string        `mapstructure:"upload_path" validate:"required,startswith=/"`
	InferenceTimeout time.Duration `mapstructure:"inference_timeout" validate:"gt=0"`
	InferenceRetries int           `mapstructure:"inference_retries" validate:"min=0,max=3"`

	MinDuration time.Duration `mapstructure:"min_duration" validate:"gte=0"`
	MaxDuration time.Duration `mapstructure:"max_duration" validate:"gtfield=MinDuration"`
	MaxImportMB int64         `mapstructure:"max_import_mb" validate:"gt=0"`

	Device    string   `mapstructure:"device"`
	FFmpeg    string   `mapstructure:"ffmpeg" validate:"required"`
	Width     int      `mapstructure:"width" validate:"gt=0"`
	Height    int      `mapstructure:"height" validate:"gt=0"`
	FrameRate int      `mapstructure:"frame_rate" validate:"gt=0,lte=120"`
	Codecs    []string `mapstructure:"codecs" validate:"dive,codec"`

	PreviewAddr string `mapstructure:"preview_addr" validate:"required,tcp_addr"`
	SettingsDir string `mapstructure:"settings_dir" validate:"required"`
}

type LoadOptions struct {
	ConfigFile string // explicit file, must exist
	EnvFile    string // defaults to ".env", may be missing
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cloud_name", "dzonya1wx")
	v.SetDefault("upload_preset", "signai")
	v.SetDefault("upload_base_url", remote.DefaultUploadBaseURL)
	v.SetDefault("upload_timeout", 2*time.Minute)

	v.SetDefault("inference_base_url", remote.DefaultInferenceBaseURL)
	v.SetDefault("record_path", remote.DefaultPaths[remote.VariantRecord])
	v.SetDefault("upload_path", remote.DefaultPaths[remote.VariantUpload])
	v.SetDefault("inference_timeout", 90*time.Second)
	v.SetDefault("inference_retries", 1)

	v.SetDefault("min_duration", 3*time.Second)
	v.SetDefault("max_duration", 30*time.Second)
	v.SetDefault("max_import_mb", 100)

	v.SetDefault("device", "")
	v.SetDefault("ffmpeg", "ffmpeg")
	v.SetDefault("width", media.DefaultWidth)
	v.SetDefault("height", media.DefaultHeight)
	v.SetDefault("frame_rate", media.DefaultFrameRate)
	v.SetDefault("codecs", []string{"vp9", "vp8", "h264"})

	v.SetDefault("preview_addr", "127.0.0.1:0")
	v.SetDefault("settings_dir", defaultSettingsDir())
}

func defaultSettingsDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".signcap")
	}
	return filepath.Join(dir, "signcap")
}

func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("signcap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultSettingsDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("codec", func(fl validator.FieldLevel) bool {
		_, ok := codec.Lookup(fl.Field().String())
		return ok
	})
	return v
}

// Validate is called by Load; call it again after applying flags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) UploadConfig() remote.UploadConfig {
	return remote.UploadConfig{
		BaseURL:   c.UploadBaseURL,
		CloudName: c.CloudName,
		Preset:    c.UploadPreset,
		Timeout:   c.UploadTimeout,
	}
}

func (c *Config) InferenceConfig() remote.InferenceConfig {
	return remote.InferenceConfig{
		BaseURL: c.InferenceBaseURL,
		Paths: map[remote.Variant]string{
			remote.VariantRecord: c.RecordPath,
			remote.VariantUpload: c.UploadPath,
		},
		Timeout: c.InferenceTimeout,
		Retries: c.InferenceRetries,
	}
}

func (c *Config) CaptureConfig() media.CaptureConfig {
	return media.CaptureConfig{Width: c.Width, Height: c.Height, FrameRate: c.FrameRate}
}

func (c *Config) Preference() ([]codec.Format, error) {
	return codec.ParsePreference(c.Codecs)
}

func (c *Config) MaxImportSize() int64 {
	return c.MaxImportMB << 20
}
