package audioroute

import "errors"

// ErrFocusRequestDenied возвращается RequestFocus, когда система отказала в фокусе
var ErrFocusRequestDenied = errors.New("запрос аудио фокуса отклонен")

// Capabilities возможности платформенного аудио сервиса.
// Читаются один раз при создании контроллера.
type Capabilities struct {
	// ExplicitDeviceRouting сервис умеет направлять звук на конкретное устройство
	ExplicitDeviceRouting bool

	// DeviceCallbacks сервис сообщает об изменении списка устройств
	DeviceCallbacks bool
}

// DeviceChangeListener получает уведомления об изменении списка устройств.
// Вызывается в контексте уведомлений платформы и не должен блокироваться.
type DeviceChangeListener interface {
	OnOutputDevicesChanged(added, removed []OutputDevice)
}

// DeviceChangeFunc адаптер функции к DeviceChangeListener
type DeviceChangeFunc func(added, removed []OutputDevice)

func (f DeviceChangeFunc) OnOutputDevicesChanged(added, removed []OutputDevice) {
	f(added, removed)
}

// AudioService абстракция аудио подсистемы платформы.
//
// Каждый метод может завершиться ошибкой. Контроллер изолирует такие
// ошибки пошагово и продолжает работу.
type AudioService interface {
	Capabilities() Capabilities

	SetMode(mode AudioMode) error
	SetSpeakerphoneOn(on bool) error

	// OutputDevices перечисляет устройства, пригодные для коммуникационного маршрута
	OutputDevices() ([]OutputDevice, error)

	// SetCommunicationDevice направляет звук на устройство; nil снимает явный выбор.
	// false означает, что сервис отклонил выбор.
	SetCommunicationDevice(dev *OutputDevice) (bool, error)

	StopBluetoothSco() error
	SetBluetoothScoOn(on bool) error

	// RequestFocus возвращает ErrFocusRequestDenied при отказе
	RequestFocus(attrs FocusAttributes) (FocusHandle, error)
	ReleaseFocus(h FocusHandle) error

	// RegisterDeviceChangeListener возвращает функцию отписки
	RegisterDeviceChangeListener(l DeviceChangeListener) (func(), error)
}

// VolumeController необязательное расширение сервиса для громкости голосового потока
type VolumeController interface {
	MaxVoiceCallVolume() (int, error)
	SetVoiceCallVolume(level int) error
}
