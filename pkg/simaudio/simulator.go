// Package simaudio содержит программную модель платформенного аудио сервиса.
//
// Модель реализует audioroute.AudioService и audioroute.VolumeController и
// воспроизводит особенности реальных устройств: отсутствие динамика у уха,
// OEM стеки, отклоняющие явный выбор устройства, асинхронное перетирание
// маршрута драйвером, отказ в фокусе и отключение Bluetooth гарнитур.
package simaudio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arzzra/audio_routing/pkg/audioroute"
	"github.com/arzzra/audio_routing/pkg/logging"
)

// Ошибки симулятора
var (
	ErrUnknownDevice     = errors.New("устройство не найдено")
	ErrUnknownFocus      = errors.New("неизвестный токен фокуса")
	ErrScoUnavailable    = errors.New("Bluetooth SCO недоступен")
	ErrServiceNotRunning = errors.New("аудио сервис остановлен")
)

// Quirks особенности конкретного устройства
type Quirks struct {
	// NoEarpiece устройство без динамика у уха (планшет)
	NoEarpiece bool

	// RejectExplicitRouting OEM стек отклоняет явный выбор устройства
	RejectExplicitRouting bool

	// LateOverride драйвер через заданное время возвращает прежний маршрут.
	// Срабатывает один раз после каждого входа в режим связи.
	LateOverride time.Duration

	// DenyFocus система отказывает в аудио фокусе
	DenyFocus bool

	// FailSco вызовы Bluetooth SCO завершаются ошибкой
	FailSco bool
}

// Config конфигурация симулятора
type Config struct {
	Capabilities audioroute.Capabilities
	Quirks       Quirks

	// MaxVoiceVolume максимальный уровень голосового потока
	MaxVoiceVolume int

	Logger *zerolog.Logger
}

// DefaultConfig современный телефон с явной маршрутизацией
func DefaultConfig() Config {
	return Config{
		Capabilities: audioroute.Capabilities{
			ExplicitDeviceRouting: true,
			DeviceCallbacks:       true,
		},
		MaxVoiceVolume: 15,
	}
}

// State снимок состояния сервиса
type State struct {
	Mode          audioroute.AudioMode
	SpeakerOn     bool
	ScoOn         bool
	CommDevice    *audioroute.OutputDevice
	ActiveRoute   audioroute.DeviceType
	Devices       []audioroute.OutputDevice
	FocusHolders  int
	VoiceVolume   int
	OverridesDone int
}

// Service программная модель аудио сервиса
type Service struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	devices    []audioroute.OutputDevice
	nextID     int
	mode       audioroute.AudioMode
	speakerOn  bool
	scoOn      bool
	commDevice *audioroute.OutputDevice
	volume     int

	focus map[string]audioroute.FocusAttributes

	listeners    map[int]audioroute.DeviceChangeListener
	nextListener int

	// overrideArmed перетирание маршрута ожидает первого применения
	overrideArmed bool
	overrideTimer *time.Timer
	overridesDone int

	closed bool
}

// New создает симулятор со встроенными устройствами
func New(cfg Config) *Service {
	if cfg.MaxVoiceVolume <= 0 {
		cfg.MaxVoiceVolume = 15
	}
	var l zerolog.Logger
	if cfg.Logger != nil {
		l = *cfg.Logger
	} else {
		l = logging.Component("simaudio")
	}

	s := &Service{
		cfg:       cfg,
		log:       l,
		focus:     make(map[string]audioroute.FocusAttributes),
		listeners: make(map[int]audioroute.DeviceChangeListener),
		volume:    cfg.MaxVoiceVolume / 2,
	}
	if !cfg.Quirks.NoEarpiece {
		s.addDeviceLocked(audioroute.DeviceEarpiece, "builtin-earpiece")
	}
	s.addDeviceLocked(audioroute.DeviceSpeaker, "builtin-speaker")
	return s
}

func (s *Service) addDeviceLocked(t audioroute.DeviceType, name string) audioroute.OutputDevice {
	s.nextID++
	d := audioroute.OutputDevice{ID: s.nextID, Type: t, Name: name}
	s.devices = append(s.devices, d)
	return d
}

// Capabilities реализует audioroute.AudioService
func (s *Service) Capabilities() audioroute.Capabilities {
	return s.cfg.Capabilities
}

// SetMode реализует audioroute.AudioService
func (s *Service) SetMode(mode audioroute.AudioMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceNotRunning
	}
	if s.mode != mode && mode == audioroute.ModeInCommunication && s.cfg.Quirks.LateOverride > 0 {
		s.overrideArmed = true
	}
	if mode == audioroute.ModeNormal {
		s.overrideArmed = false
		s.stopOverrideLocked()
	}
	s.mode = mode
	return nil
}

// SetSpeakerphoneOn реализует audioroute.AudioService
func (s *Service) SetSpeakerphoneOn(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceNotRunning
	}
	prevSpeaker, prevDevice := s.speakerOn, s.commDevice
	s.speakerOn = on
	s.armOverrideLocked(prevSpeaker, prevDevice)
	return nil
}

// OutputDevices реализует audioroute.AudioService
func (s *Service) OutputDevices() ([]audioroute.OutputDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceNotRunning
	}
	if !s.cfg.Capabilities.ExplicitDeviceRouting {
		return nil, nil
	}
	out := make([]audioroute.OutputDevice, len(s.devices))
	copy(out, s.devices)
	return out, nil
}

// SetCommunicationDevice реализует audioroute.AudioService
func (s *Service) SetCommunicationDevice(dev *audioroute.OutputDevice) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrServiceNotRunning
	}
	if !s.cfg.Capabilities.ExplicitDeviceRouting {
		return false, fmt.Errorf("явная маршрутизация не поддерживается")
	}
	if dev == nil {
		s.commDevice = nil
		return true, nil
	}
	if s.findLocked(dev.ID) == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownDevice, dev)
	}
	if s.cfg.Quirks.RejectExplicitRouting {
		s.log.Debug().Str("device", dev.String()).Msg("OEM стек отклонил явный выбор устройства")
		return false, nil
	}
	prevSpeaker, prevDevice := s.speakerOn, s.commDevice
	d := *dev
	s.commDevice = &d
	s.armOverrideLocked(prevSpeaker, prevDevice)
	return true, nil
}

// StopBluetoothSco реализует audioroute.AudioService
func (s *Service) StopBluetoothSco() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Quirks.FailSco {
		return ErrScoUnavailable
	}
	s.scoOn = false
	return nil
}

// SetBluetoothScoOn реализует audioroute.AudioService
func (s *Service) SetBluetoothScoOn(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Quirks.FailSco {
		return ErrScoUnavailable
	}
	if on && !s.hasTypeLocked(audioroute.DeviceBluetooth) {
		return ErrScoUnavailable
	}
	s.scoOn = on
	return nil
}

// RequestFocus реализует audioroute.AudioService
func (s *Service) RequestFocus(attrs audioroute.FocusAttributes) (audioroute.FocusHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Quirks.DenyFocus {
		return nil, audioroute.ErrFocusRequestDenied
	}
	id := uuid.NewString()
	s.focus[id] = attrs
	return id, nil
}

// ReleaseFocus реализует audioroute.AudioService
func (s *Service) ReleaseFocus(h audioroute.FocusHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := h.(string)
	if !ok {
		return ErrUnknownFocus
	}
	if _, exists := s.focus[id]; !exists {
		return ErrUnknownFocus
	}
	delete(s.focus, id)
	return nil
}

// RegisterDeviceChangeListener реализует audioroute.AudioService
func (s *Service) RegisterDeviceChangeListener(l audioroute.DeviceChangeListener) (func(), error) {
	if !s.cfg.Capabilities.DeviceCallbacks {
		return nil, fmt.Errorf("уведомления об устройствах не поддерживаются")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}, nil
}

// MaxVoiceCallVolume реализует audioroute.VolumeController
func (s *Service) MaxVoiceCallVolume() (int, error) {
	return s.cfg.MaxVoiceVolume, nil
}

// SetVoiceCallVolume реализует audioroute.VolumeController
func (s *Service) SetVoiceCallVolume(level int) error {
	if level < 0 || level > s.cfg.MaxVoiceVolume {
		return fmt.Errorf("громкость %d вне диапазона [0, %d]", level, s.cfg.MaxVoiceVolume)
	}
	s.mu.Lock()
	s.volume = level
	s.mu.Unlock()
	return nil
}

// ConnectBluetooth подключает Bluetooth гарнитуру. В режиме связи платформа
// сама переводит на нее маршрут.
func (s *Service) ConnectBluetooth(name string) audioroute.OutputDevice {
	s.mu.Lock()
	d := s.addDeviceLocked(audioroute.DeviceBluetooth, name)
	if s.mode == audioroute.ModeInCommunication && s.cfg.Capabilities.ExplicitDeviceRouting {
		dev := d
		s.commDevice = &dev
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.log.Info().Str("device", d.String()).Msg("Bluetooth подключен")
	for _, l := range listeners {
		l.OnOutputDevicesChanged([]audioroute.OutputDevice{d}, nil)
	}
	return d
}

// DisconnectBluetooth отключает все Bluetooth устройства.
// Маршрут остается на мертвом устройстве, пока его не сменят.
func (s *Service) DisconnectBluetooth() []audioroute.OutputDevice {
	s.mu.Lock()
	var removed, kept []audioroute.OutputDevice
	for _, d := range s.devices {
		if d.Type == audioroute.DeviceBluetooth {
			removed = append(removed, d)
		} else {
			kept = append(kept, d)
		}
	}
	s.devices = kept
	s.scoOn = false
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	s.log.Info().Int("devices", len(removed)).Msg("Bluetooth отключен")
	for _, l := range listeners {
		l.OnOutputDevicesChanged(nil, removed)
	}
	return removed
}

// Snapshot возвращает текущее состояние
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Mode:          s.mode,
		SpeakerOn:     s.speakerOn,
		ScoOn:         s.scoOn,
		ActiveRoute:   s.activeRouteLocked(),
		FocusHolders:  len(s.focus),
		VoiceVolume:   s.volume,
		OverridesDone: s.overridesDone,
	}
	if s.commDevice != nil {
		d := *s.commDevice
		st.CommDevice = &d
	}
	st.Devices = make([]audioroute.OutputDevice, len(s.devices))
	copy(st.Devices, s.devices)
	return st
}

// ActiveRoute физический маршрут звука
func (s *Service) ActiveRoute() audioroute.DeviceType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRouteLocked()
}

// Close останавливает сервис и отменяет асинхронные эффекты
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopOverrideLocked()
	s.listeners = make(map[int]audioroute.DeviceChangeListener)
	return nil
}

// activeRouteLocked явный выбор важнее переключателя; SCO ведет на гарнитуру
func (s *Service) activeRouteLocked() audioroute.DeviceType {
	if s.commDevice != nil {
		return s.commDevice.Type
	}
	if s.scoOn {
		return audioroute.DeviceBluetooth
	}
	if s.speakerOn || !s.hasTypeLocked(audioroute.DeviceEarpiece) {
		return audioroute.DeviceSpeaker
	}
	return audioroute.DeviceEarpiece
}

// armOverrideLocked планирует возврат прежнего маршрута драйвером
func (s *Service) armOverrideLocked(prevSpeaker bool, prevDevice *audioroute.OutputDevice) {
	if !s.overrideArmed || s.mode != audioroute.ModeInCommunication {
		return
	}
	s.overrideArmed = false
	s.stopOverrideLocked()
	s.overrideTimer = time.AfterFunc(s.cfg.Quirks.LateOverride, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.speakerOn = prevSpeaker
		s.commDevice = prevDevice
		s.overridesDone++
		s.log.Debug().Str("route", s.activeRouteLocked().String()).Msg("Драйвер перетер маршрут")
	})
}

func (s *Service) stopOverrideLocked() {
	if s.overrideTimer != nil {
		s.overrideTimer.Stop()
		s.overrideTimer = nil
	}
}

func (s *Service) findLocked(id int) *audioroute.OutputDevice {
	for i := range s.devices {
		if s.devices[i].ID == id {
			return &s.devices[i]
		}
	}
	return nil
}

func (s *Service) hasTypeLocked(t audioroute.DeviceType) bool {
	for _, d := range s.devices {
		if d.Type == t {
			return true
		}
	}
	return false
}

func (s *Service) listenersLocked() []audioroute.DeviceChangeListener {
	out := make([]audioroute.DeviceChangeListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}
