package audioroute

import (
	"context"

	"github.com/looplab/fsm"
)

// События автомата сессии.
// enter    – вход в коммуникационный режим;
// reset    – сброс аудио в обычный режим.
const (
	sessionEventEnter = "enter"
	sessionEventReset = "reset"
)

// sessionMachine оборачивает looplab/fsm для состояния коммуникационной сессии.
// Повторный вход и повторный сброс являются no-op.
type sessionMachine struct {
	fsm      *fsm.FSM
	onChange func(from, to SessionState)
}

func newSessionMachine(onChange func(from, to SessionState)) *sessionMachine {
	sm := &sessionMachine{onChange: onChange}
	sm.fsm = fsm.NewFSM(
		string(SessionInactive),
		fsm.Events{
			{Name: sessionEventEnter, Src: []string{string(SessionInactive)}, Dst: string(SessionActive)},
			{Name: sessionEventReset, Src: []string{string(SessionActive)}, Dst: string(SessionInactive)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if sm.onChange != nil {
					sm.onChange(SessionState(e.Src), SessionState(e.Dst))
				}
			},
		},
	)
	return sm
}

// State возвращает текущее состояние
func (sm *sessionMachine) State() SessionState {
	return SessionState(sm.fsm.Current())
}

// Active true если сессия активна
func (sm *sessionMachine) Active() bool {
	return sm.fsm.Is(string(SessionActive))
}

// Enter переводит сессию в ACTIVE; возвращает true если состояние изменилось
func (sm *sessionMachine) Enter() bool {
	return sm.fire(sessionEventEnter)
}

// Reset переводит сессию в INACTIVE; возвращает true если состояние изменилось
func (sm *sessionMachine) Reset() bool {
	return sm.fire(sessionEventReset)
}

func (sm *sessionMachine) fire(event string) bool {
	if !sm.fsm.Can(event) {
		return false
	}
	return sm.fsm.Event(context.Background(), event) == nil
}
