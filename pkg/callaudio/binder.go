// Package callaudio связывает состояние голосовых звонков с маршрутом звука.
//
// Binder ведет автомат каждого звонка (idle -> ringing -> active -> ended) и
// переключает контроллер маршрута: первый ответивший голосовой звонок
// включает режим связи, завершение последнего сбрасывает аудио.
// Listener получает звонки по SIP (sipgo) и проверяет SDP offer (pion/sdp).
package callaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/arzzra/audio_routing/pkg/audioroute"
	"github.com/arzzra/audio_routing/pkg/logging"
)

// CallState состояние звонка
type CallState string

const (
	CallIdle    CallState = "idle"
	CallRinging CallState = "ringing"
	CallActive  CallState = "active"
	CallEnded   CallState = "ended"
)

const (
	callEventInvite = "invite"
	callEventAnswer = "answer"
	callEventHangup = "hangup"
)

var (
	// ErrCallExists звонок с таким Call-ID уже ведется
	ErrCallExists = errors.New("звонок уже существует")
	// ErrUnknownCall звонок не найден
	ErrUnknownCall = errors.New("звонок не найден")
)

// RouteController команды контроллера маршрута, нужные звонкам
type RouteController interface {
	EnterCommunicationMode() (audioroute.CommandResult, error)
	ResetAudio() (audioroute.CommandResult, error)
}

type call struct {
	id    string
	audio bool
	fsm   *fsm.FSM
}

func newCall(id string, audio bool, log zerolog.Logger) *call {
	c := &call{id: id, audio: audio}
	c.fsm = fsm.NewFSM(
		string(CallIdle),
		fsm.Events{
			{Name: callEventInvite, Src: []string{string(CallIdle)}, Dst: string(CallRinging)},
			{Name: callEventAnswer, Src: []string{string(CallRinging)}, Dst: string(CallActive)},
			{Name: callEventHangup, Src: []string{string(CallRinging), string(CallActive)}, Dst: string(CallEnded)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				log.Debug().
					Str("call_id", id).
					Str("from", e.Src).
					Str("to", e.Dst).
					Msg("состояние звонка изменено")
			},
		},
	)
	return c
}

func (c *call) state() CallState {
	return CallState(c.fsm.Current())
}

func (c *call) fire(event string) bool {
	if !c.fsm.Can(event) {
		return false
	}
	return c.fsm.Event(context.Background(), event) == nil
}

// Binder отслеживает звонки и управляет режимом связи
type Binder struct {
	mu sync.Mutex

	ctrl  RouteController
	log   zerolog.Logger
	calls map[string]*call

	// activeAudio число отвеченных голосовых звонков
	activeAudio int
}

// NewBinder создает Binder поверх контроллера маршрута
func NewBinder(ctrl RouteController, logger *zerolog.Logger) *Binder {
	log := logging.Component("callaudio")
	if logger != nil {
		log = *logger
	}
	return &Binder{
		ctrl:  ctrl,
		log:   log,
		calls: make(map[string]*call),
	}
}

// Offer регистрирует входящий звонок в состоянии ringing.
// audio=false для звонков без голосового потока: они не влияют на маршрут.
func (b *Binder) Offer(callID string, audio bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.calls[callID]; ok {
		return fmt.Errorf("%w: %s", ErrCallExists, callID)
	}
	c := newCall(callID, audio, b.log)
	c.fire(callEventInvite)
	b.calls[callID] = c
	return nil
}

// Answer переводит звонок в active. Повторный ответ игнорируется.
// Первый активный голосовой звонок включает режим связи.
func (b *Binder) Answer(callID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.calls[callID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	if !c.fire(callEventAnswer) || !c.audio {
		return nil
	}

	b.activeAudio++
	if b.activeAudio > 1 {
		return nil
	}
	if _, err := b.ctrl.EnterCommunicationMode(); err != nil {
		b.log.Error().Err(err).Str("call_id", callID).Msg("не удалось включить режим связи")
		return fmt.Errorf("режим связи для звонка %s: %w", callID, err)
	}
	b.log.Info().Str("call_id", callID).Msg("режим связи включен")
	return nil
}

// Hangup завершает звонок и удаляет его. Завершение последнего активного
// голосового звонка сбрасывает аудио.
func (b *Binder) Hangup(callID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.calls[callID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	wasActive := c.state() == CallActive
	c.fire(callEventHangup)
	delete(b.calls, callID)

	if !wasActive || !c.audio {
		return nil
	}
	b.activeAudio--
	if b.activeAudio > 0 {
		return nil
	}
	if _, err := b.ctrl.ResetAudio(); err != nil {
		b.log.Error().Err(err).Str("call_id", callID).Msg("не удалось сбросить аудио")
		return fmt.Errorf("сброс аудио для звонка %s: %w", callID, err)
	}
	b.log.Info().Str("call_id", callID).Msg("аудио сброшено после звонка")
	return nil
}

// State возвращает состояние звонка
func (b *Binder) State(callID string) (CallState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.calls[callID]
	if !ok {
		return "", false
	}
	return c.state(), true
}

// ActiveAudioCalls число отвеченных голосовых звонков
func (b *Binder) ActiveAudioCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeAudio
}

// HangupAll завершает все звонки (при остановке)
func (b *Binder) HangupAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.calls))
	for id := range b.calls {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		if err := b.Hangup(id); err != nil && !errors.Is(err, ErrUnknownCall) {
			b.log.Warn().Err(err).Str("call_id", id).Msg("ошибка завершения звонка")
		}
	}
}
