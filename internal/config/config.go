// Package config loads panelscribe settings from an optional config.yml, an
// optional .env file and PANELSCRIBE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/jwulff/panelscribe/internal/capture"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PANELSCRIBE_SERVER_ADDR.
const EnvPrefix = "PANELSCRIBE"

// Config is the full settings tree shared by all binaries.
type Config struct {
	Logging   Logging   `mapstructure:"logging"`
	Client    Client    `mapstructure:"client"`
	Capture   Capture   `mapstructure:"capture"`
	Server    Server    `mapstructure:"server"`
	Providers Providers `mapstructure:"providers"`
}

type Logging struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

type Client struct {
	ServerURL         string        `mapstructure:"server_url" validate:"required,url"`
	Grace             time.Duration `mapstructure:"grace" validate:"gte=0"`
	Timeslice         time.Duration `mapstructure:"timeslice" validate:"gt=0"`
	MinSegmentBytes   int           `mapstructure:"min_segment_bytes" validate:"gte=0"`
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout" validate:"gt=0"`
	AnalysisSpacing   time.Duration `mapstructure:"analysis_spacing" validate:"gte=0"`
	AnalysisPrompt    string        `mapstructure:"analysis_prompt"`
	AutoSave          bool          `mapstructure:"auto_save"`
	DBPath            string        `mapstructure:"db_path" validate:"required"`
}

type Capture struct {
	FFmpegPath     string        `mapstructure:"ffmpeg_path" validate:"required"`
	InputFormat    string        `mapstructure:"input_format" validate:"required"`
	Input          string        `mapstructure:"input"`
	SampleRate     int           `mapstructure:"sample_rate" validate:"gt=0"`
	Channels       int           `mapstructure:"channels" validate:"min=1,max=2"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" validate:"gt=0"`
}

type Server struct {
	Addr           string   `mapstructure:"addr" validate:"required,hostname_port"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes" validate:"gt=0"`
	RateLimit      int      `mapstructure:"rate_limit" validate:"gte=0"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	STTProvider    string   `mapstructure:"stt_provider" validate:"oneof=elevenlabs openai"`
}

type Providers struct {
	ElevenLabsKey string  `mapstructure:"elevenlabs_api_key"`
	OpenAIKey     string  `mapstructure:"openai_api_key"`
	STTModel      string  `mapstructure:"stt_model" validate:"required"`
	STTLanguage   string  `mapstructure:"stt_language"`
	WhisperModel  string  `mapstructure:"whisper_model" validate:"required"`
	ChatModel     string  `mapstructure:"chat_model" validate:"required"`
	Temperature   float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens     int     `mapstructure:"max_tokens" validate:"gt=0"`
}

// Option customizes Load.
type Option func(*options)

type options struct {
	configFile string
	envFile    string
	defaults   map[string]any
}

// WithConfigFile reads path instead of searching for config.yml. A missing
// explicit file is an error.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithEnvFile loads path instead of ./.env.
func WithEnvFile(path string) Option {
	return func(o *options) { o.envFile = path }
}

// WithDefault overrides a built-in default, e.g. a binary-specific log output.
func WithDefault(key string, value any) Option {
	return func(o *options) { o.defaults[key] = value }
}

// Dir is the per-user panelscribe directory.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "panelscribe")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("client.server_url", "http://127.0.0.1:3000")
	v.SetDefault("client.grace", 2*time.Second)
	v.SetDefault("client.timeslice", 100*time.Millisecond)
	v.SetDefault("client.min_segment_bytes", 5000)
	v.SetDefault("client.transcribe_timeout", 60*time.Second)
	v.SetDefault("client.analysis_spacing", time.Second)
	v.SetDefault("client.analysis_prompt", "")
	v.SetDefault("client.auto_save", true)
	v.SetDefault("client.db_path", filepath.Join(Dir(), "panelscribe.sqlite"))

	ff := capture.DefaultFFmpegConfig()
	v.SetDefault("capture.ffmpeg_path", ff.Path)
	v.SetDefault("capture.input_format", ff.InputFormat)
	v.SetDefault("capture.input", ff.Input)
	v.SetDefault("capture.sample_rate", ff.SampleRate)
	v.SetDefault("capture.channels", ff.Channels)
	v.SetDefault("capture.startup_timeout", ff.StartupTimeout)

	v.SetDefault("server.addr", "127.0.0.1:3000")
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.stt_provider", "elevenlabs")

	v.SetDefault("providers.elevenlabs_api_key", "")
	v.SetDefault("providers.openai_api_key", "")
	v.SetDefault("providers.stt_model", "scribe_v1")
	v.SetDefault("providers.stt_language", "eng")
	v.SetDefault("providers.whisper_model", "whisper-1")
	v.SetDefault("providers.chat_model", "gpt-4")
	v.SetDefault("providers.temperature", 0.3)
	v.SetDefault("providers.max_tokens", 2000)
}

// Load resolves the configuration and validates it.
func Load(opts ...Option) (*Config, error) {
	o := options{defaults: map[string]any{}}
	for _, opt := range opts {
		opt(&o)
	}

	envFile := o.envFile
	if envFile == "" && exists(".env") {
		envFile = ".env"
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	for k, val := range o.defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider keys are also read under their conventional names.
	v.BindEnv("providers.elevenlabs_api_key", EnvPrefix+"_PROVIDERS_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY")
	v.BindEnv("providers.openai_api_key", EnvPrefix+"_PROVIDERS_OPENAI_API_KEY", "OPENAI_API_KEY")

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", o.configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FFmpeg converts the capture section for capture.NewFFmpeg.
func (c Capture) FFmpeg() capture.FFmpegConfig {
	return capture.FFmpegConfig{
		Path:           c.FFmpegPath,
		InputFormat:    c.InputFormat,
		Input:          c.Input,
		SampleRate:     c.SampleRate,
		Channels:       c.Channels,
		StartupTimeout: c.StartupTimeout,
	}
}

// HasTranscriptionKey reports whether the configured STT provider has a key.
func (p Providers) HasTranscriptionKey(provider string) bool {
	if provider == "openai" {
		return p.OpenAIKey != ""
	}
	return p.ElevenLabsKey != ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
