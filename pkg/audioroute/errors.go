package audioroute

import "fmt"

// RouteErrorCode типизированные коды ошибок контроллера маршрутизации
type RouteErrorCode int

const (
	// Аудио сервис отсутствует, операция прерывается
	ErrorCodeServiceUnavailable RouteErrorCode = iota + 2000
	// Отказ в аудио фокусе, не фатально
	ErrorCodeFocusDenied
	// Явный выбор устройства отклонен и запасной путь тоже не сработал
	ErrorCodeRouteApplyFailed
	// Ошибка отдельного best-effort шага
	ErrorCodePlatformCallFailed
	ErrorCodeInvalidConfig
	ErrorCodeInvalidRoute
)

// String возвращает строковое представление кода ошибки
func (code RouteErrorCode) String() string {
	switch code {
	case ErrorCodeServiceUnavailable:
		return "ServiceUnavailable"
	case ErrorCodeFocusDenied:
		return "FocusDenied"
	case ErrorCodeRouteApplyFailed:
		return "RouteApplyFailed"
	case ErrorCodePlatformCallFailed:
		return "PlatformCallFailed"
	case ErrorCodeInvalidConfig:
		return "InvalidConfig"
	case ErrorCodeInvalidRoute:
		return "InvalidRoute"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// RouteError ошибка контроллера маршрутизации.
// Содержит код, имя операции, контекст и обернутую ошибку платформы.
type RouteError struct {
	Code    RouteErrorCode
	Op      string
	Message string
	Context map[string]interface{}
	Wrapped error
}

// Error реализует интерфейс error
func (e *RouteError) Error() string {
	msg := e.Message
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	if e.Op != "" {
		return fmt.Sprintf("[маршрут:%s] %s: %s", e.Code, e.Op, msg)
	}
	return fmt.Sprintf("[маршрут:%s] %s", e.Code, msg)
}

// Unwrap поддерживает errors.Unwrap
func (e *RouteError) Unwrap() error {
	return e.Wrapped
}

// Is сравнивает ошибки по коду
func (e *RouteError) Is(target error) bool {
	if t, ok := target.(*RouteError); ok {
		return e.Code == t.Code
	}
	return false
}

// GetContext возвращает значение из контекста ошибки по ключу
func (e *RouteError) GetContext(key string) interface{} {
	if e.Context == nil {
		return nil
	}
	return e.Context[key]
}

// Эталонные ошибки для errors.Is
var (
	ErrServiceUnavailable = &RouteError{Code: ErrorCodeServiceUnavailable, Message: "аудио сервис недоступен"}
	ErrFocusDenied        = &RouteError{Code: ErrorCodeFocusDenied, Message: "отказ в аудио фокусе"}
	ErrRouteApplyFailed   = &RouteError{Code: ErrorCodeRouteApplyFailed, Message: "не удалось применить маршрут"}
	ErrPlatformCallFailed = &RouteError{Code: ErrorCodePlatformCallFailed, Message: "ошибка вызова платформы"}
	ErrInvalidConfig      = &RouteError{Code: ErrorCodeInvalidConfig, Message: "некорректная конфигурация"}
	ErrInvalidRoute       = &RouteError{Code: ErrorCodeInvalidRoute, Message: "неизвестный маршрут"}
)

func newRouteError(code RouteErrorCode, op, message string, wrapped error) *RouteError {
	return &RouteError{
		Code:    code,
		Op:      op,
		Message: message,
		Wrapped: wrapped,
	}
}

func serviceUnavailable(op string) *RouteError {
	return newRouteError(ErrorCodeServiceUnavailable, op, "аудио сервис недоступен", nil)
}

func platformCallFailed(step string, err error) *RouteError {
	e := newRouteError(ErrorCodePlatformCallFailed, step, "шаг не выполнен", err)
	e.Context = map[string]interface{}{"step": step}
	return e
}
