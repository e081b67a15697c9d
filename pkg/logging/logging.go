// Package logging настраивает корневой zerolog логгер для всех компонентов.
//
// Компоненты получают под-логгер через Component и добавляют свои поля
// (session, route, call_id) сами.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Format формат вывода логов
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config конфигурация логирования
type Config struct {
	// Level минимальный уровень: trace, debug, info, warn, error
	Level string `toml:"level"`

	// Format console или json
	Format Format `toml:"format"`

	// Output куда писать логи (по умолчанию os.Stdout)
	Output io.Writer `toml:"-"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatConsole,
	}
}

var (
	mu         sync.RWMutex
	rootLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// ParseLevel преобразует имя уровня в zerolog.Level. Неизвестные имена дают info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New создает логгер по конфигурации, не трогая глобальный
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.StampMilli}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// Init заменяет корневой логгер процесса
func Init(cfg Config) zerolog.Logger {
	l := New(cfg)
	mu.Lock()
	rootLogger = l
	mu.Unlock()
	return l
}

// Default возвращает корневой логгер
func Default() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return rootLogger
}

// Component возвращает под-логгер корневого логгера с полем component
func Component(name string) zerolog.Logger {
	return Default().With().Str("component", name).Logger()
}
