package bridge

import "encoding/json"

// Методы командного моста
const (
	MethodEnterCommunicationMode = "enterCommunicationMode"
	MethodSetSpeakerphoneOn      = "setSpeakerphoneOn"
	MethodResetAudio             = "resetAudio"
	MethodSetRoute               = "setRoute"
)

// Статусы ответа
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request команда хост-приложения
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response ответ на команду. SpeakerOn заполняется только для команд,
// меняющих маршрут.
type Response struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	SpeakerOn *bool  `json:"speakerOn,omitempty"`
	Error     string `json:"error,omitempty"`
}

type speakerParams struct {
	On bool `json:"on"`
}

type routeParams struct {
	Route string `json:"route"`
}

func okResponse(id string) Response {
	return Response{ID: id, Status: StatusOK}
}

func okWithSpeaker(id string, on bool) Response {
	return Response{ID: id, Status: StatusOK, SpeakerOn: &on}
}

func errorResponse(id string, msg string) Response {
	return Response{ID: id, Status: StatusError, Error: msg}
}
