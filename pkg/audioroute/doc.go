// Package audioroute реализует контроллер маршрута звука для звонков.
//
// Контроллер переводит команды хост-приложения в последовательность
// идемпотентных шагов над платформенным AudioService:
//
//   - EnterCommunicationMode: фокус, режим связи, выключение Bluetooth SCO,
//     маршрут по умолчанию (динамик у уха)
//   - SetSpeakerphoneOn: согласование маршрута и отложенное повторное применение
//   - ResetAudio: возврат в обычный режим, освобождение фокуса
//   - OnOutputDevicesChanged: восстановление маршрута после отключения Bluetooth
//
// Согласование маршрута:
//
//  1. режим связи
//  2. выключение Bluetooth SCO (ошибки игнорируются)
//  3. перечисление устройств
//  4. выбор устройства; без динамика у уха используется громкая связь
//  5. явный выбор устройства, при отказе переключатель громкой связи
//  6. без явной маршрутизации сразу переключатель громкой связи
//
// Пример:
//
//	ctrl, err := audioroute.NewController(svc, audioroute.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer ctrl.Close()
//
//	if _, err := ctrl.EnterCommunicationMode(); err != nil {
//		return err
//	}
//	res, err := ctrl.SetSpeakerphoneOn(true)
//	log.Printf("громкая связь: %v", res.SpeakerOn)
//
// Ошибки отдельных шагов платформы логируются и не прерывают команду.
// Вызывающему возвращаются только ErrServiceUnavailable и
// ErrRouteApplyFailed (когда не сработал и запасной путь).
package audioroute
