package bridge

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/arzzra/audio_routing/pkg/audioroute"
)

// Router команды контроллера маршрута, доступные через мост
type Router interface {
	EnterCommunicationMode() (audioroute.CommandResult, error)
	SetSpeakerphoneOn(on bool) (audioroute.CommandResult, error)
	ResetAudio() (audioroute.CommandResult, error)
	SetRoute(target audioroute.RouteTarget) (audioroute.CommandResult, error)
	State() audioroute.SessionState
}

// Dispatcher переводит запросы моста в вызовы Router.
// Паника внутри обработчика превращается в отклоненный вызов.
type Dispatcher struct {
	router  Router
	log     zerolog.Logger
	metrics *bridgeMetrics
}

// NewDispatcher создает диспетчер команд
func NewDispatcher(router Router, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{router: router, log: log, metrics: newBridgeMetrics(nil, "")}
}

// Dispatch выполняет одну команду. Никогда не паникует.
func (d *Dispatcher) Dispatch(req Request) (resp Response) {
	log := d.log.With().Str("request_id", req.ID).Str("method", req.Method).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("PANIC восстановлен в обработчике команды")
			resp = errorResponse(req.ID, fmt.Sprintf("внутренняя ошибка: %v", r))
		}
		d.metrics.request(req.Method, resp.Status)
	}()

	resp = d.handle(req)
	if resp.Status == StatusError {
		log.Warn().Str("error", resp.Error).Msg("команда отклонена")
	} else {
		log.Debug().Msg("команда выполнена")
	}
	return resp
}

func (d *Dispatcher) handle(req Request) Response {
	switch req.Method {
	case MethodEnterCommunicationMode:
		if _, err := d.router.EnterCommunicationMode(); err != nil {
			return errorResponse(req.ID, err.Error())
		}
		return okResponse(req.ID)

	case MethodSetSpeakerphoneOn:
		var p speakerParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errorResponse(req.ID, err.Error())
		}
		res, err := d.router.SetSpeakerphoneOn(p.On)
		if err != nil {
			return errorResponse(req.ID, err.Error())
		}
		return okWithSpeaker(req.ID, res.SpeakerOn)

	case MethodResetAudio:
		if _, err := d.router.ResetAudio(); err != nil {
			return errorResponse(req.ID, err.Error())
		}
		return okResponse(req.ID)

	case MethodSetRoute:
		var p routeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errorResponse(req.ID, err.Error())
		}
		res, err := d.router.SetRoute(audioroute.RouteTarget(p.Route))
		if err != nil {
			return errorResponse(req.ID, err.Error())
		}
		return okWithSpeaker(req.ID, res.SpeakerOn)

	default:
		return errorResponse(req.ID, fmt.Sprintf("неизвестный метод: %q", req.Method))
	}
}

// decodeParams отсутствующие параметры оставляют значения по умолчанию
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("некорректные параметры: %w", err)
	}
	return nil
}
