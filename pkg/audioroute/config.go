package audioroute

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/arzzra/audio_routing/pkg/logging"
)

const (
	// DefaultReapplyDelay задержка повторного применения маршрута.
	// Некоторые драйверы применяют маршрут асинхронно и перетирают наш выбор.
	DefaultReapplyDelay = 200 * time.Millisecond

	DefaultSpeakerVolume  = 0.8
	DefaultEarpieceVolume = 0.6
)

// DefaultLegacyRetryDelays повторы переключателя громкой связи на платформах
// без явного выбора устройства
func DefaultLegacyRetryDelays() []time.Duration {
	return []time.Duration{
		50 * time.Millisecond,
		150 * time.Millisecond,
		300 * time.Millisecond,
		500 * time.Millisecond,
	}
}

// Config конфигурация контроллера маршрутизации
type Config struct {
	// ReapplyDelay задержка отложенного повторного применения (0 = по умолчанию)
	ReapplyDelay time.Duration

	// DisableReapply отключает отложенное повторное применение
	DisableReapply bool

	// LegacyRetryDelays задержки повторов для платформ без явной маршрутизации.
	// nil = по умолчанию, пустой срез = без повторов.
	LegacyRetryDelays []time.Duration

	// VolumeShaping устанавливать громкость голосового потока при смене маршрута
	VolumeShaping bool

	// SpeakerVolume доля максимальной громкости для громкой связи (0..1]
	SpeakerVolume float64

	// EarpieceVolume доля максимальной громкости для динамика у уха (0..1]
	EarpieceVolume float64

	// Logger логгер контроллера (nil = logging.Component("audioroute"))
	Logger *zerolog.Logger

	// Registerer реестр Prometheus метрик (nil = метрики не собираются)
	Registerer prometheus.Registerer

	// MetricsNamespace префикс метрик
	MetricsNamespace string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		ReapplyDelay:      DefaultReapplyDelay,
		LegacyRetryDelays: DefaultLegacyRetryDelays(),
		VolumeShaping:     true,
		SpeakerVolume:     DefaultSpeakerVolume,
		EarpieceVolume:    DefaultEarpieceVolume,
		MetricsNamespace:  "audioroute",
	}
}

// Validate проверяет конфигурацию и заполняет значения по умолчанию
func (c *Config) Validate() error {
	if c.ReapplyDelay < 0 {
		return &RouteError{
			Code:    ErrorCodeInvalidConfig,
			Message: fmt.Sprintf("отрицательная задержка повтора: %v", c.ReapplyDelay),
		}
	}
	if c.ReapplyDelay == 0 {
		c.ReapplyDelay = DefaultReapplyDelay
	}

	if c.LegacyRetryDelays == nil {
		c.LegacyRetryDelays = DefaultLegacyRetryDelays()
	}
	for _, d := range c.LegacyRetryDelays {
		if d <= 0 {
			return &RouteError{
				Code:    ErrorCodeInvalidConfig,
				Message: fmt.Sprintf("некорректная задержка повтора: %v", d),
			}
		}
	}

	if c.SpeakerVolume == 0 {
		c.SpeakerVolume = DefaultSpeakerVolume
	}
	if c.EarpieceVolume == 0 {
		c.EarpieceVolume = DefaultEarpieceVolume
	}
	if c.SpeakerVolume < 0 || c.SpeakerVolume > 1 || c.EarpieceVolume < 0 || c.EarpieceVolume > 1 {
		return &RouteError{
			Code:    ErrorCodeInvalidConfig,
			Message: "громкость должна быть в диапазоне (0, 1]",
		}
	}

	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "audioroute"
	}

	if c.Logger == nil {
		l := logging.Component("audioroute")
		c.Logger = &l
	}

	return nil
}
