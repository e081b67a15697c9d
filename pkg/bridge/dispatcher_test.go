package bridge

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/audio_routing/pkg/audioroute"
)

// fakeRouter записывает вызовы и возвращает заданные результаты
type fakeRouter struct {
	mu sync.Mutex

	calls     []string
	speakerOn bool
	err       error
	panicWith interface{}
	state     audioroute.SessionState
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{state: audioroute.SessionInactive}
}

func (f *fakeRouter) record(call string) (audioroute.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return audioroute.CommandResult{}, f.err
	}
	return audioroute.CommandResult{Status: audioroute.StatusOK, SpeakerOn: f.speakerOn}, nil
}

func (f *fakeRouter) EnterCommunicationMode() (audioroute.CommandResult, error) {
	f.mu.Lock()
	f.state = audioroute.SessionActive
	f.mu.Unlock()
	return f.record("enter")
}

func (f *fakeRouter) SetSpeakerphoneOn(on bool) (audioroute.CommandResult, error) {
	f.mu.Lock()
	f.speakerOn = on
	f.mu.Unlock()
	if on {
		return f.record("speaker:true")
	}
	return f.record("speaker:false")
}

func (f *fakeRouter) ResetAudio() (audioroute.CommandResult, error) {
	return f.record("reset")
}

func (f *fakeRouter) SetRoute(target audioroute.RouteTarget) (audioroute.CommandResult, error) {
	return f.record("route:" + string(target))
}

func (f *fakeRouter) State() audioroute.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeRouter) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestDispatchEnterCommunicationMode(t *testing.T) {
	r := newFakeRouter()
	d := NewDispatcher(r, zerolog.Nop())

	resp := d.Dispatch(Request{ID: "1", Method: MethodEnterCommunicationMode})
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "1", resp.ID)
	assert.Nil(t, resp.SpeakerOn)
	assert.Equal(t, []string{"enter"}, r.callLog())
}

func TestDispatchSetSpeakerphoneOn(t *testing.T) {
	r := newFakeRouter()
	d := NewDispatcher(r, zerolog.Nop())

	resp := d.Dispatch(Request{ID: "a", Method: MethodSetSpeakerphoneOn, Params: json.RawMessage(`{"on":true}`)})
	require.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.SpeakerOn)
	assert.True(t, *resp.SpeakerOn)

	// Без параметров on=false
	resp = d.Dispatch(Request{ID: "b", Method: MethodSetSpeakerphoneOn})
	require.NotNil(t, resp.SpeakerOn)
	assert.False(t, *resp.SpeakerOn)

	resp = d.Dispatch(Request{ID: "c", Method: MethodSetSpeakerphoneOn, Params: json.RawMessage(`null`)})
	assert.Equal(t, StatusOK, resp.Status)

	assert.Equal(t, []string{"speaker:true", "speaker:false", "speaker:false"}, r.callLog())
}

func TestDispatchInvalidParams(t *testing.T) {
	r := newFakeRouter()
	d := NewDispatcher(r, zerolog.Nop())

	resp := d.Dispatch(Request{ID: "x", Method: MethodSetSpeakerphoneOn, Params: json.RawMessage(`{"on":"yes"}`)})
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "некорректные параметры")
	assert.Empty(t, r.callLog(), "некорректный запрос не доходит до контроллера")
}

func TestDispatchSetRoute(t *testing.T) {
	r := newFakeRouter()
	r.speakerOn = true
	d := NewDispatcher(r, zerolog.Nop())

	resp := d.Dispatch(Request{ID: "r", Method: MethodSetRoute, Params: json.RawMessage(`{"route":"speaker"}`)})
	require.Equal(t, StatusOK, resp.Status)
	assert.True(t, *resp.SpeakerOn)
	assert.Equal(t, []string{"route:speaker"}, r.callLog())
}

func TestDispatchResetAudio(t *testing.T) {
	r := newFakeRouter()
	d := NewDispatcher(r, zerolog.Nop())

	resp := d.Dispatch(Request{ID: "z", Method: MethodResetAudio})
	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
}

func TestDispatchUnknownMethod(t *testing.T) {
	r := newFakeRouter()
	d := NewDispatcher(r, zerolog.Nop())

	resp := d.Dispatch(Request{ID: "u", Method: "requestAudioFocus"})
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "requestAudioFocus")
	assert.Empty(t, r.callLog())
}

func TestDispatchControllerError(t *testing.T) {
	r := newFakeRouter()
	r.err = audioroute.ErrServiceUnavailable
	d := NewDispatcher(r, zerolog.Nop())

	resp := d.Dispatch(Request{ID: "e", Method: MethodEnterCommunicationMode})
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, audioroute.ErrServiceUnavailable.Error(), resp.Error)
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := newFakeRouter()
	r.panicWith = "сбой платформы"
	d := NewDispatcher(r, zerolog.Nop())

	var resp Response
	require.NotPanics(t, func() {
		resp = d.Dispatch(Request{ID: "p", Method: MethodResetAudio})
	})
	assert.Equal(t, "p", resp.ID)
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "сбой платформы")
}

func TestDispatchWithRealController(t *testing.T) {
	nop := zerolog.Nop()
	cfg := audioroute.DefaultConfig()
	cfg.Logger = &nop
	ctrl, err := audioroute.NewController(nil, cfg)
	require.NoError(t, err)
	defer ctrl.Close()

	d := NewDispatcher(ctrl, nop)
	resp := d.Dispatch(Request{ID: "1", Method: MethodSetSpeakerphoneOn, Params: json.RawMessage(`{"on":true}`)})
	assert.Equal(t, StatusError, resp.Status)
	assert.NotEmpty(t, resp.Error)

	resp = d.Dispatch(Request{ID: "2", Method: MethodSetRoute, Params: json.RawMessage(`{"route":"car"}`)})
	assert.Equal(t, StatusError, resp.Status)
}
