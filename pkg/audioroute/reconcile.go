package audioroute

import (
	"math"
	"time"
)

// routeTaskKey ключ отложенных задач маршрута в планировщике
const routeTaskKey = "route"

// selectDevice выбирает устройство под желаемый маршрут.
//
// Если запрошен динамик у уха, а его нет (планшеты), выбирается громкая
// связь. Если подходящих устройств нет вовсе, возвращается nil и маршрут
// применяется без явного выбора.
func selectDevice(devices []OutputDevice, intent RouteIntent) (*OutputDevice, RouteIntent) {
	var earpiece, speaker *OutputDevice
	for i := range devices {
		switch devices[i].Type {
		case DeviceEarpiece:
			if earpiece == nil {
				earpiece = &devices[i]
			}
		case DeviceSpeaker:
			if speaker == nil {
				speaker = &devices[i]
			}
		}
	}

	switch intent {
	case RouteEarpiece:
		if earpiece != nil {
			return earpiece, RouteEarpiece
		}
		if speaker != nil {
			return speaker, RouteSpeaker
		}
	case RouteSpeaker:
		if speaker != nil {
			return speaker, RouteSpeaker
		}
	}
	return nil, intent
}

// reconcileLocked один проход согласования маршрута. Вызывается под c.mu.
//
// Идемпотентен: повторный вызов с тем же маршрутом лишь подтверждает его.
// Ошибка возвращается только если не сработал и запасной путь.
func (c *Controller) reconcileLocked(intent RouteIntent) (RouteOutcome, error) {
	out := RouteOutcome{Requested: intent, Effective: intent}

	c.step("set_mode", c.svc.SetMode(ModeInCommunication))
	c.disableScoLocked()

	if !c.caps.ExplicitDeviceRouting {
		out.Method = MethodLegacy
		if err := c.legacyToggleLocked(intent); err != nil {
			return out, err
		}
		c.finishRouteLocked(out)
		return out, nil
	}

	devices, err := c.svc.OutputDevices()
	if !c.step("output_devices", err) {
		devices = nil
	}

	target, effective := selectDevice(devices, intent)
	out.Effective = effective
	if effective != intent {
		c.log.Info().
			Str("requested", intent.String()).
			Str("effective", effective.String()).
			Msg("Динамик у уха отсутствует, используем громкую связь")
		c.metrics.fallback("no_earpiece")
	}

	if target == nil {
		c.log.Debug().Int("devices", len(devices)).Msg("Нет устройств для явного выбора, переключатель громкой связи")
		out.Method = MethodLegacy
		if err := c.legacyToggleLocked(effective); err != nil {
			return out, err
		}
		c.finishRouteLocked(out)
		return out, nil
	}

	ok, err := c.svc.SetCommunicationDevice(target)
	if err == nil && ok {
		dev := *target
		out.Method = MethodExplicit
		out.Device = &dev
		c.log.Debug().Str("device", target.String()).Msg("Устройство связи выбрано")
		c.finishRouteLocked(out)
		return out, nil
	}

	reason := "explicit_rejected"
	if err != nil {
		reason = "explicit_error"
	}
	c.log.Warn().
		Err(err).
		Str("device", target.String()).
		Str("reason", reason).
		Msg("Явный выбор устройства не применен, переключатель громкой связи")
	c.metrics.fallback(reason)

	out.Method = MethodLegacyFallback
	if lerr := c.legacyToggleLocked(effective); lerr != nil {
		lerr.Context = map[string]interface{}{
			"device":   target.String(),
			"explicit": err,
		}
		return out, lerr
	}
	c.finishRouteLocked(out)
	return out, nil
}

// legacyToggleLocked применяет маршрут булевым переключателем громкой связи
func (c *Controller) legacyToggleLocked(intent RouteIntent) *RouteError {
	if err := c.svc.SetSpeakerphoneOn(intent.SpeakerOn()); err != nil {
		c.metrics.stepFailed("speakerphone")
		rerr := newRouteError(ErrorCodeRouteApplyFailed, "speakerphone", "переключатель громкой связи не сработал", err)
		c.log.Error().Err(rerr).Str("route", intent.String()).Msg("Маршрут не применен")
		return rerr
	}
	return nil
}

func (c *Controller) finishRouteLocked(out RouteOutcome) {
	o := out
	c.lastOutcome = &o
	c.metrics.routeApplied(out)
	c.applyVolumeLocked(out.Effective)
}

// disableScoLocked выключает Bluetooth SCO; ошибки игнорируются,
// SCO может быть уже неактивен
func (c *Controller) disableScoLocked() {
	c.step("stop_bluetooth_sco", c.svc.StopBluetoothSco())
	c.step("bluetooth_sco_off", c.svc.SetBluetoothScoOn(false))
}

// applyVolumeLocked выставляет громкость голосового потока под маршрут
func (c *Controller) applyVolumeLocked(route RouteIntent) {
	if !c.cfg.VolumeShaping {
		return
	}
	vc, ok := c.svc.(VolumeController)
	if !ok {
		return
	}
	maxLevel, err := vc.MaxVoiceCallVolume()
	if !c.step("max_voice_volume", err) || maxLevel <= 0 {
		return
	}
	frac := c.cfg.EarpieceVolume
	if route == RouteSpeaker {
		frac = c.cfg.SpeakerVolume
	}
	c.step("voice_volume", vc.SetVoiceCallVolume(volumeLevel(maxLevel, frac)))
}

// volumeLevel доля от максимума, но не меньше 1
func volumeLevel(maxLevel int, frac float64) int {
	level := int(math.Floor(float64(maxLevel)*frac + 1e-9))
	if level < 1 {
		level = 1
	}
	if level > maxLevel {
		level = maxLevel
	}
	return level
}

// scheduleRouteTasksLocked заменяет отложенные задачи маршрута.
//
// Задачи прошлого маршрута отменяются всегда, даже если новых нет: иначе
// устаревшая задача после быстрого переключения вернет старый маршрут.
func (c *Controller) scheduleRouteTasksLocked(intent RouteIntent, reapply bool) {
	var delays []time.Duration
	if !c.caps.ExplicitDeviceRouting {
		delays = append(delays, c.cfg.LegacyRetryDelays...)
	}
	if reapply && !c.cfg.DisableReapply {
		delays = append(delays, c.cfg.ReapplyDelay)
	}

	c.sched.Replace(routeTaskKey, delays, func(gen uint64) {
		c.runDeferred(intent, gen)
	})
}

// runDeferred выполняется в горутине таймера
func (c *Controller) runDeferred(intent RouteIntent, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sched.IsCurrent(routeTaskKey, gen) || !c.availableLocked() {
		c.metrics.deferred("stale")
		return
	}

	out, err := c.reconcileLocked(intent)
	if err != nil {
		c.metrics.deferred("failed")
		return
	}
	c.metrics.deferred("applied")
	c.log.Debug().
		Str("route", out.Effective.String()).
		Str("method", string(out.Method)).
		Msg("Маршрут повторно применен")
}
