package audioroute

import "fmt"

// RouteIntent желаемый выходной маршрут на время коммуникационной сессии
type RouteIntent int

const (
	RouteEarpiece RouteIntent = iota
	RouteSpeaker
)

// String возвращает строковое представление маршрута
func (r RouteIntent) String() string {
	switch r {
	case RouteEarpiece:
		return "earpiece"
	case RouteSpeaker:
		return "speaker"
	default:
		return fmt.Sprintf("RouteIntent(%d)", int(r))
	}
}

// SpeakerOn возвращает true для громкой связи
func (r RouteIntent) SpeakerOn() bool {
	return r == RouteSpeaker
}

// IntentFromSpeaker преобразует флаг громкой связи в маршрут
func IntentFromSpeaker(on bool) RouteIntent {
	if on {
		return RouteSpeaker
	}
	return RouteEarpiece
}

// RouteTarget маршрут в терминах хост-приложения
type RouteTarget string

const (
	TargetSpeaker   RouteTarget = "speaker"
	TargetEarpiece  RouteTarget = "earpiece"
	TargetBluetooth RouteTarget = "bluetooth"
	TargetHeadset   RouteTarget = "headset"
)

// SessionState состояние коммуникационной сессии
type SessionState string

const (
	SessionInactive SessionState = "inactive"
	SessionActive   SessionState = "active"
)

// AudioMode режим аудио сервиса
type AudioMode int

const (
	ModeNormal AudioMode = iota
	ModeInCommunication
)

func (m AudioMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeInCommunication:
		return "in_communication"
	default:
		return fmt.Sprintf("AudioMode(%d)", int(m))
	}
}

// DeviceType тип выходного устройства
type DeviceType int

const (
	DeviceOther DeviceType = iota
	DeviceEarpiece
	DeviceSpeaker
	DeviceBluetooth
)

func (t DeviceType) String() string {
	switch t {
	case DeviceEarpiece:
		return "earpiece"
	case DeviceSpeaker:
		return "speaker"
	case DeviceBluetooth:
		return "bluetooth"
	default:
		return "other"
	}
}

// OutputDevice описание выходного устройства, перечисляемого сервисом.
// Живет не дольше одной попытки согласования маршрута.
type OutputDevice struct {
	ID   int
	Type DeviceType
	Name string
}

func (d OutputDevice) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s#%d(%s)", d.Type, d.ID, d.Name)
	}
	return fmt.Sprintf("%s#%d", d.Type, d.ID)
}

// FocusHandle непрозрачный токен выданного аудио фокуса
type FocusHandle interface{}

// FocusUsage назначение аудио потока для запроса фокуса
type FocusUsage int

const (
	UsageVoiceCommunication FocusUsage = iota
	UsageMedia
)

// FocusGain тип запрашиваемого фокуса
type FocusGain int

const (
	GainTransientExclusive FocusGain = iota
	GainTransient
)

// FocusAttributes параметры запроса аудио фокуса
type FocusAttributes struct {
	Usage  FocusUsage
	Gain   FocusGain
	Speech bool
}

// VoiceCommunicationFocus атрибуты эксклюзивного фокуса для звонка
func VoiceCommunicationFocus() FocusAttributes {
	return FocusAttributes{
		Usage:  UsageVoiceCommunication,
		Gain:   GainTransientExclusive,
		Speech: true,
	}
}

// RouteMethod каким способом был применен маршрут
type RouteMethod string

const (
	MethodExplicit       RouteMethod = "explicit"
	MethodLegacy         RouteMethod = "legacy"
	MethodLegacyFallback RouteMethod = "legacy_fallback"
)

// RouteOutcome результат одного прохода согласования маршрута
type RouteOutcome struct {
	Requested RouteIntent
	Effective RouteIntent
	Method    RouteMethod
	// Device выбранное устройство, nil если явный выбор не выполнялся
	Device *OutputDevice
}

// CommandResult ответ на команду хост-приложения
type CommandResult struct {
	Status    string
	SpeakerOn bool
	// FocusGranted false если сервис отказал в фокусе (не фатально)
	FocusGranted bool
	Outcome      *RouteOutcome
}

// StatusOK статус успешной команды
const StatusOK = "ok"
