package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/dvcrn/gymapp-client/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Credential store backends.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
	API      struct {
		BaseURL     string        `envconfig:"API_BASE_URL" required:"true" validate:"required,url"`
		Timeout     time.Duration `envconfig:"API_TIMEOUT" default:"10s" validate:"gt=0"`
		RefreshPath string        `envconfig:"API_REFRESH_PATH" default:"/sessions/refresh-token" validate:"required,startswith=/"`
	}
	Credentials struct {
		Store     string `envconfig:"CREDENTIALS_STORE" default:"file" validate:"oneof=file memory redis"`
		Path      string `envconfig:"CREDENTIALS_PATH"`
		RedisAddr string `envconfig:"REDIS_ADDR" validate:"required_if=Store redis"`
		RedisKey  string `envconfig:"REDIS_KEY" default:"gymapp:credentials"`
	}
	Proxy struct {
		Addr string `envconfig:"PROXY_ADDR" default:":8080"`
	}
}

// Load reads the given env files, .env when none are named, and then the
// process environment. A missing env file is not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file: %w", err)
		}
	} else {
		logger.Get().Debug().Strs("files", files).Msg("Loaded env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config from environment: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values, reporting every failing field at once.
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, len(validationErrors))
	for i, fe := range validationErrors {
		msgs[i] = fmt.Sprintf("%s: %s", fe.Namespace(), msgForTag(fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func msgForTag(tag, param string) string {
	switch tag {
	case "required", "required_if":
		return "value is required"
	case "url":
		return "must be an absolute URL"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", param)
	case "startswith":
		return fmt.Sprintf("must start with %q", param)
	case "gt":
		return fmt.Sprintf("must be greater than %s", param)
	default:
		return fmt.Sprintf("failed validation on rule: %s", tag)
	}
}
