package main

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/arzzra/audio_routing/pkg/audioroute"
	"github.com/arzzra/audio_routing/pkg/bridge"
	"github.com/arzzra/audio_routing/pkg/callaudio"
	"github.com/arzzra/audio_routing/pkg/logging"
	"github.com/arzzra/audio_routing/pkg/simaudio"
)

// duration длительность в TOML записывается строкой ("200ms", "1s")
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

type controllerConfig struct {
	ReapplyDelay      duration   `toml:"reapply_delay"`
	DisableReapply    bool       `toml:"disable_reapply"`
	LegacyRetryDelays []duration `toml:"legacy_retry_delays"`
	VolumeShaping     bool       `toml:"volume_shaping"`
	SpeakerVolume     float64    `toml:"speaker_volume"`
	EarpieceVolume    float64    `toml:"earpiece_volume"`
	MetricsNamespace  string     `toml:"metrics_namespace"`
}

type bridgeConfig struct {
	Listen       string   `toml:"listen"`
	Path         string   `toml:"path"`
	PingInterval duration `toml:"ping_interval"`
	PongTimeout  duration `toml:"pong_timeout"`
}

type simulatorConfig struct {
	ExplicitRouting bool `toml:"explicit_routing"`
	DeviceCallbacks bool `toml:"device_callbacks"`
	MaxVoiceVolume  int  `toml:"max_voice_volume"`
	// DebugEndpoints открывает /sim/* на сервере моста
	DebugEndpoints bool `toml:"debug_endpoints"`

	Quirks struct {
		NoEarpiece            bool     `toml:"no_earpiece"`
		RejectExplicitRouting bool     `toml:"reject_explicit_routing"`
		LateOverride          duration `toml:"late_override"`
		DenyFocus             bool     `toml:"deny_focus"`
		FailSco               bool     `toml:"fail_sco"`
	} `toml:"quirks"`
}

type sipConfig struct {
	Enabled bool `toml:"enabled"`
	callaudio.ListenerConfig
}

type config struct {
	Log        logging.Config   `toml:"log"`
	Controller controllerConfig `toml:"controller"`
	Bridge     bridgeConfig     `toml:"bridge"`
	Simulator  simulatorConfig  `toml:"simulator"`
	SIP        sipConfig        `toml:"sip"`
}

func defaultConfig() *config {
	ctrl := audioroute.DefaultConfig()
	br := bridge.DefaultConfig()
	sim := simaudio.DefaultConfig()

	cfg := &config{
		Log: logging.DefaultConfig(),
		Controller: controllerConfig{
			ReapplyDelay:     duration(ctrl.ReapplyDelay),
			VolumeShaping:    ctrl.VolumeShaping,
			SpeakerVolume:    ctrl.SpeakerVolume,
			EarpieceVolume:   ctrl.EarpieceVolume,
			MetricsNamespace: "audiorouted",
		},
		Bridge: bridgeConfig{
			Listen:       br.Addr,
			Path:         br.Path,
			PingInterval: duration(br.PingInterval),
			PongTimeout:  duration(br.PongTimeout),
		},
		Simulator: simulatorConfig{
			ExplicitRouting: sim.Capabilities.ExplicitDeviceRouting,
			DeviceCallbacks: sim.Capabilities.DeviceCallbacks,
			MaxVoiceVolume:  sim.MaxVoiceVolume,
			DebugEndpoints:  true,
		},
		SIP: sipConfig{ListenerConfig: callaudio.DefaultListenerConfig()},
	}
	for _, d := range ctrl.LegacyRetryDelays {
		cfg.Controller.LegacyRetryDelays = append(cfg.Controller.LegacyRetryDelays, duration(d))
	}
	return cfg
}

// loadConfig читает TOML файл поверх значений по умолчанию.
// Пустой путь означает конфигурацию по умолчанию. Неизвестные ключи
// считаются ошибкой.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, cfg.validate()
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("неизвестные ключи конфигурации: %s", strings.Join(keys, ", "))
	}
	return cfg, cfg.validate()
}

func (c *config) validate() error {
	if _, _, err := net.SplitHostPort(c.Bridge.Listen); err != nil {
		return fmt.Errorf("некорректный адрес моста: %w", err)
	}
	if c.Simulator.MaxVoiceVolume <= 0 {
		return errors.New("max_voice_volume должен быть положительным")
	}
	if c.SIP.Enabled {
		if _, _, err := net.SplitHostPort(c.SIP.Addr); err != nil {
			return fmt.Errorf("некорректный адрес SIP: %w", err)
		}
	}
	// Проверка параметров контроллера без побочных эффектов на c
	_, err := c.controller(nil, nil)
	return err
}

func (c *config) controller(log *zerolog.Logger, reg prometheus.Registerer) (*audioroute.Config, error) {
	cc := audioroute.DefaultConfig()
	cc.ReapplyDelay = time.Duration(c.Controller.ReapplyDelay)
	cc.DisableReapply = c.Controller.DisableReapply
	cc.LegacyRetryDelays = make([]time.Duration, 0, len(c.Controller.LegacyRetryDelays))
	for _, d := range c.Controller.LegacyRetryDelays {
		cc.LegacyRetryDelays = append(cc.LegacyRetryDelays, time.Duration(d))
	}
	cc.VolumeShaping = c.Controller.VolumeShaping
	cc.SpeakerVolume = c.Controller.SpeakerVolume
	cc.EarpieceVolume = c.Controller.EarpieceVolume
	cc.MetricsNamespace = c.Controller.MetricsNamespace
	cc.Registerer = reg
	cc.Logger = log
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return cc, nil
}

func (c *config) bridgeServer(reg *prometheus.Registry) bridge.Config {
	bc := bridge.DefaultConfig()
	bc.Addr = c.Bridge.Listen
	bc.Path = c.Bridge.Path
	bc.PingInterval = time.Duration(c.Bridge.PingInterval)
	bc.PongTimeout = time.Duration(c.Bridge.PongTimeout)
	bc.MetricsNamespace = c.Controller.MetricsNamespace
	if reg != nil {
		bc.Registerer = reg
		bc.Gatherer = reg
	}
	return bc
}

func (c *config) simulator() simaudio.Config {
	sc := simaudio.DefaultConfig()
	sc.Capabilities = audioroute.Capabilities{
		ExplicitDeviceRouting: c.Simulator.ExplicitRouting,
		DeviceCallbacks:       c.Simulator.DeviceCallbacks,
	}
	sc.MaxVoiceVolume = c.Simulator.MaxVoiceVolume
	sc.Quirks = simaudio.Quirks{
		NoEarpiece:            c.Simulator.Quirks.NoEarpiece,
		RejectExplicitRouting: c.Simulator.Quirks.RejectExplicitRouting,
		LateOverride:          time.Duration(c.Simulator.Quirks.LateOverride),
		DenyFocus:             c.Simulator.Quirks.DenyFocus,
		FailSco:               c.Simulator.Quirks.FailSco,
	}
	return sc
}
