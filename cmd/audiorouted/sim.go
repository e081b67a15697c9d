package main

import (
	"encoding/json"
	"net/http"

	"github.com/arzzra/audio_routing/pkg/audioroute"
	"github.com/arzzra/audio_routing/pkg/simaudio"
)

type deviceView struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type simStateView struct {
	Mode          string       `json:"mode"`
	SpeakerOn     bool         `json:"speakerOn"`
	ScoOn         bool         `json:"scoOn"`
	ActiveRoute   string       `json:"activeRoute"`
	CommDevice    *deviceView  `json:"commDevice,omitempty"`
	Devices       []deviceView `json:"devices"`
	FocusHolders  int          `json:"focusHolders"`
	VoiceVolume   int          `json:"voiceVolume"`
	OverridesDone int          `json:"overridesDone"`
	Session       string       `json:"session"`
}

func viewDevice(d audioroute.OutputDevice) deviceView {
	return deviceView{ID: d.ID, Type: d.Type.String(), Name: d.Name}
}

// simHandlers отладочные эндпоинты симулятора: состояние и Bluetooth
type simHandlers struct {
	sim  *simaudio.Service
	ctrl *audioroute.Controller
}

// handlerRegistry реализуют *bridge.Server и *http.ServeMux
type handlerRegistry interface {
	Handle(pattern string, handler http.Handler)
}

func (h *simHandlers) register(mux handlerRegistry) {
	mux.Handle("/sim/state", http.HandlerFunc(h.state))
	mux.Handle("/sim/bluetooth/connect", http.HandlerFunc(h.connect))
	mux.Handle("/sim/bluetooth/disconnect", http.HandlerFunc(h.disconnect))
}

func (h *simHandlers) state(w http.ResponseWriter, _ *http.Request) {
	st := h.sim.Snapshot()
	v := simStateView{
		Mode:          st.Mode.String(),
		SpeakerOn:     st.SpeakerOn,
		ScoOn:         st.ScoOn,
		ActiveRoute:   st.ActiveRoute.String(),
		Devices:       make([]deviceView, 0, len(st.Devices)),
		FocusHolders:  st.FocusHolders,
		VoiceVolume:   st.VoiceVolume,
		OverridesDone: st.OverridesDone,
		Session:       string(h.ctrl.State()),
	}
	if st.CommDevice != nil {
		d := viewDevice(*st.CommDevice)
		v.CommDevice = &d
	}
	for _, d := range st.Devices {
		v.Devices = append(v.Devices, viewDevice(d))
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *simHandlers) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "bt-headset"
	}
	d := h.sim.ConnectBluetooth(name)
	writeJSON(w, http.StatusOK, viewDevice(d))
}

func (h *simHandlers) disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	removed := h.sim.DisconnectBluetooth()
	out := make([]deviceView, 0, len(removed))
	for _, d := range removed {
		out = append(out, viewDevice(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
