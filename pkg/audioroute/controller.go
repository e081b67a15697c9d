package audioroute

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Controller управляет маршрутом звука звонка поверх AudioService.
//
// Принимает команды хост-приложения (вход в режим связи, громкая связь,
// сброс) и переводит их в последовательность идемпотентных шагов,
// устойчивых к гонкам устройств и особенностям OEM прошивок.
//
// Все команды и уведомления об устройствах сериализуются мьютексом.
// Отложенные повторы выполняются в горутинах таймеров и берут тот же мьютекс.
type Controller struct {
	mu sync.Mutex

	svc  AudioService
	caps Capabilities
	cfg  *Config
	log  zerolog.Logger

	metrics *metricsCollector
	session *sessionMachine
	sched   *scheduler

	// lastRoute последний запрошенный маршрут; восстанавливается после
	// отключения Bluetooth устройства
	lastRoute   RouteIntent
	lastOutcome *RouteOutcome

	// Не более одного живого фокуса
	focus     FocusHandle
	focusHeld bool

	unregister func()
	closed     bool
}

// NewController создает контроллер для аудио сервиса.
//
// svc может быть nil: такой контроллер отвечает на каждую команду ошибкой
// ErrServiceUnavailable без побочных эффектов.
func NewController(svc AudioService, cfg *Config) (*Controller, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		svc:       svc,
		cfg:       cfg,
		log:       *cfg.Logger,
		metrics:   newMetricsCollector(cfg.Registerer, cfg.MetricsNamespace),
		sched:     newScheduler(),
		lastRoute: RouteEarpiece,
	}
	c.session = newSessionMachine(func(from, to SessionState) {
		c.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("Состояние сессии изменено")
		c.metrics.session(to)
	})

	if svc == nil {
		c.log.Warn().Msg("Аудио сервис недоступен, команды будут отклонены")
		return c, nil
	}

	c.caps = svc.Capabilities()
	c.log = c.log.With().
		Bool("explicit_routing", c.caps.ExplicitDeviceRouting).
		Logger()

	if c.caps.DeviceCallbacks {
		unregister, err := svc.RegisterDeviceChangeListener(c)
		if err != nil {
			c.log.Warn().Err(err).Msg("Не удалось подписаться на изменения устройств")
		} else {
			c.unregister = unregister
		}
	}

	return c, nil
}

// EnterCommunicationMode входит в режим связи с маршрутом по умолчанию (динамик у уха).
// Повторный вход допустим. Отказ в фокусе не фатален и отражается в FocusGranted.
func (c *Controller) EnterCommunicationMode() (res CommandResult, err error) {
	const op = "enterCommunicationMode"
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.metrics.command(op, err) }()

	if !c.availableLocked() {
		return CommandResult{}, serviceUnavailable(op)
	}

	res = CommandResult{Status: StatusOK}
	res.FocusGranted = c.acquireFocusLocked()

	c.step("set_mode", c.svc.SetMode(ModeInCommunication))
	c.disableScoLocked()
	c.session.Enter()

	c.lastRoute = RouteEarpiece
	out, rerr := c.reconcileLocked(RouteEarpiece)
	c.scheduleRouteTasksLocked(RouteEarpiece, false)

	res.SpeakerOn = out.Effective.SpeakerOn()
	res.Outcome = &out
	if rerr != nil {
		return res, rerr
	}
	return res, nil
}

// SetSpeakerphoneOn включает или выключает громкую связь.
//
// Вне сессии сервис все равно переводится в режим связи. После применения
// планируется одно отложенное повторное применение; оно отменяется, если до
// срабатывания придет новый маршрут. SpeakerOn в ответе отражает фактически
// примененный маршрут.
func (c *Controller) SetSpeakerphoneOn(on bool) (res CommandResult, err error) {
	const op = "setSpeakerphoneOn"
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.metrics.command(op, err) }()

	if !c.availableLocked() {
		return CommandResult{}, serviceUnavailable(op)
	}

	intent := IntentFromSpeaker(on)
	if !c.session.Active() {
		c.log.Debug().Str("route", intent.String()).Msg("Маршрут запрошен вне сессии")
	}

	c.lastRoute = intent
	out, rerr := c.reconcileLocked(intent)
	c.scheduleRouteTasksLocked(intent, true)

	res = CommandResult{
		Status:       StatusOK,
		SpeakerOn:    out.Effective.SpeakerOn(),
		FocusGranted: c.focusHeld,
		Outcome:      &out,
	}
	if rerr != nil {
		return res, rerr
	}
	return res, nil
}

// SetRoute применяет маршрут в терминах хост-приложения. Для bluetooth и
// headset громкая связь выключается, и платформа сама выбирает подключенное устройство.
func (c *Controller) SetRoute(target RouteTarget) (CommandResult, error) {
	switch target {
	case TargetSpeaker:
		return c.SetSpeakerphoneOn(true)
	case TargetEarpiece, TargetBluetooth, TargetHeadset:
		return c.SetSpeakerphoneOn(false)
	default:
		c.metrics.command("setRoute", ErrInvalidRoute)
		e := newRouteError(ErrorCodeInvalidRoute, "setRoute", "неизвестный маршрут", nil)
		e.Context = map[string]interface{}{"route": string(target)}
		return CommandResult{}, e
	}
}

// ResetAudio возвращает аудио в обычный режим и освобождает фокус.
// Каждый шаг выполняется независимо; сбой одного не мешает остальным.
func (c *Controller) ResetAudio() (res CommandResult, err error) {
	const op = "resetAudio"
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.metrics.command(op, err) }()

	if !c.availableLocked() {
		return CommandResult{}, serviceUnavailable(op)
	}

	c.sched.Cancel(routeTaskKey)

	if c.caps.ExplicitDeviceRouting {
		c.clearCommunicationDeviceLocked()
	}
	c.disableScoLocked()
	c.step("speaker_off", c.svc.SetSpeakerphoneOn(false))
	c.step("set_mode_normal", c.svc.SetMode(ModeNormal))
	c.releaseFocusLocked()

	c.session.Reset()
	c.lastRoute = RouteEarpiece
	c.lastOutcome = nil

	return CommandResult{Status: StatusOK}, nil
}

// OnOutputDevicesChanged реакция на изменение списка устройств.
//
// Если во время активной сессии пропало Bluetooth устройство, явный выбор
// снимается и маршрут согласуется заново по последнему запросу.
// Добавление устройств только логируется: платформа может сама уйти на Bluetooth.
func (c *Controller) OnOutputDevicesChanged(added, removed []OutputDevice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range added {
		c.metrics.deviceChanged("added", d.Type)
		c.log.Debug().Str("device", d.String()).Msg("Устройство подключено")
	}
	btRemoved := false
	for _, d := range removed {
		c.metrics.deviceChanged("removed", d.Type)
		if d.Type == DeviceBluetooth {
			btRemoved = true
		}
	}

	if !btRemoved || !c.availableLocked() || !c.session.Active() {
		return
	}

	c.log.Info().Str("route", c.lastRoute.String()).Msg("Bluetooth устройство отключено, восстанавливаем маршрут")
	if c.caps.ExplicitDeviceRouting {
		c.clearCommunicationDeviceLocked()
	}
	if _, err := c.reconcileLocked(c.lastRoute); err != nil {
		c.log.Error().Err(err).Msg("Маршрут после отключения Bluetooth не восстановлен")
	}
	// драйвер может перетереть маршрут и после отключения
	c.scheduleRouteTasksLocked(c.lastRoute, true)
}

// Close отменяет отложенные задачи и отписывается от уведомлений.
// После Close команды отклоняются с ErrServiceUnavailable.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.sched.Close()
	if c.unregister != nil {
		c.unregister()
		c.unregister = nil
	}
	return nil
}

// State текущее состояние сессии
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State()
}

// LastRequestedRoute последний запрошенный маршрут
func (c *Controller) LastRequestedRoute() RouteIntent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRoute
}

// LastOutcome результат последнего успешного согласования, nil после сброса
func (c *Controller) LastOutcome() *RouteOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastOutcome == nil {
		return nil
	}
	o := *c.lastOutcome
	return &o
}

// FocusHeld true если контроллер держит аудио фокус
func (c *Controller) FocusHeld() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focusHeld
}

// PendingRouteTasks количество ожидающих отложенных задач маршрута
func (c *Controller) PendingRouteTasks() int {
	return c.sched.Pending(routeTaskKey)
}

func (c *Controller) availableLocked() bool {
	return c.svc != nil && !c.closed
}

// acquireFocusLocked запрашивает фокус, если он еще не получен
func (c *Controller) acquireFocusLocked() bool {
	if c.focusHeld {
		return true
	}
	h, err := c.svc.RequestFocus(VoiceCommunicationFocus())
	if err != nil {
		if errors.Is(err, ErrFocusRequestDenied) {
			c.metrics.focusRefused()
			c.log.Warn().Err(&RouteError{Code: ErrorCodeFocusDenied, Op: "requestFocus", Message: "отказ в аудио фокусе", Wrapped: err}).
				Msg("Фокус не получен, продолжаем без него")
		} else {
			c.step("request_focus", err)
		}
		return false
	}
	c.focus = h
	c.focusHeld = true
	return true
}

func (c *Controller) releaseFocusLocked() {
	if !c.focusHeld {
		return
	}
	c.step("release_focus", c.svc.ReleaseFocus(c.focus))
	c.focus = nil
	c.focusHeld = false
}

func (c *Controller) clearCommunicationDeviceLocked() {
	_, err := c.svc.SetCommunicationDevice(nil)
	c.step("clear_communication_device", err)
}

// step логирует сбой best-effort шага; возвращает true при успехе
func (c *Controller) step(name string, err error) bool {
	if err == nil {
		return true
	}
	c.metrics.stepFailed(name)
	c.log.Warn().Err(platformCallFailed(name, err)).Msg("Шаг пропущен")
	return false
}
