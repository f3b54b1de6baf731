package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dvcrn/gymapp-client/internal/env"
	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35

	colorBold = 1
)

var (
	mu     sync.Mutex
	logger *zerolog.Logger
)

// Get returns the shared logger, building it from APP_ENV and LOG_LEVEL on
// first use unless Configure ran before.
func Get() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = build(env.GetOrDefault("APP_ENV", ""), env.GetOrDefault("LOG_LEVEL", ""), os.Stderr)
	}
	return logger
}

// Configure replaces the shared logger. An unknown level falls back to info.
func Configure(appEnv, level string) *zerolog.Logger {
	return ConfigureOutput(appEnv, level, os.Stderr)
}

// ConfigureOutput is Configure with an explicit sink.
func ConfigureOutput(appEnv, level string, out io.Writer) *zerolog.Logger {
	l := build(appEnv, level, out)
	mu.Lock()
	logger = l
	mu.Unlock()
	return l
}

func build(appEnv, level string, out io.Writer) *zerolog.Logger {
	logLevel := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			logLevel = parsed
		} else {
			fmt.Fprintf(os.Stderr, "Invalid LOG_LEVEL %q; defaulting to 'info'\n", level)
		}
	}
	zerolog.SetGlobalLevel(logLevel)

	switch appEnv {
	case "", "dev", "development", "test":
		return newDevelopment(out)
	default:
		return newProduction(out)
	}
}

func colorize(s interface{}, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

func formatLevel(i interface{}) string {
	ll, ok := i.(string)
	if !ok {
		return strings.ToUpper(fmt.Sprintf("%s", i))[0:3]
	}
	switch ll {
	case "trace":
		return colorize("TRC", colorMagenta)
	case "debug":
		return colorize("DBG", colorYellow)
	case "info":
		return colorize("INF", colorGreen)
	case "warn":
		return colorize("WRN", colorRed)
	case "error":
		return colorize("ERR", colorRed)
	case "fatal":
		return colorize("FTL", colorRed)
	case "panic":
		return colorize("PNC", colorRed)
	default:
		return colorize(strings.ToUpper(ll)[0:3], colorBold)
	}
}

func newDevelopment(out io.Writer) *zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:         out,
		TimeFormat:  "2006-01-02 15:04:05",
		FormatLevel: formatLevel,
	}
	zl := zerolog.New(output).With().Timestamp().Logger()
	return &zl
}

// newProduction logs JSON with UNIX timestamps.
func newProduction(out io.Writer) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zl := zerolog.New(out).With().Timestamp().Logger()
	return &zl
}
