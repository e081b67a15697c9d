package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/audio_routing/pkg/audioroute"
	"github.com/arzzra/audio_routing/pkg/simaudio"
)

func newSimServer(t *testing.T) (*simaudio.Service, *audioroute.Controller, *httptest.Server) {
	t.Helper()
	nop := zerolog.Nop()

	simCfg := simaudio.DefaultConfig()
	simCfg.Logger = &nop
	sim := simaudio.New(simCfg)
	t.Cleanup(func() { _ = sim.Close() })

	ctrlCfg := audioroute.DefaultConfig()
	ctrlCfg.Logger = &nop
	ctrlCfg.DisableReapply = true
	ctrl, err := audioroute.NewController(sim, ctrlCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	mux := http.NewServeMux()
	(&simHandlers{sim: sim, ctrl: ctrl}).register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return sim, ctrl, ts
}

func getState(t *testing.T, ts *httptest.Server) simStateView {
	t.Helper()
	res, err := http.Get(ts.URL + "/sim/state")
	require.NoError(t, err)
	defer res.Body.Close()
	var v simStateView
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func TestSimStateEndpoint(t *testing.T) {
	_, ctrl, ts := newSimServer(t)

	v := getState(t, ts)
	assert.Equal(t, "normal", v.Mode)
	assert.Equal(t, "inactive", v.Session)
	assert.Len(t, v.Devices, 2)

	_, err := ctrl.EnterCommunicationMode()
	require.NoError(t, err)

	v = getState(t, ts)
	assert.Equal(t, "in_communication", v.Mode)
	assert.Equal(t, "active", v.Session)
	assert.Equal(t, 1, v.FocusHolders)
}

func TestSimBluetoothEndpoints(t *testing.T) {
	sim, ctrl, ts := newSimServer(t)
	_, err := ctrl.EnterCommunicationMode()
	require.NoError(t, err)

	res, err := http.Get(ts.URL + "/sim/bluetooth/connect")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)

	res, err = http.Post(ts.URL+"/sim/bluetooth/connect?name=car", "", nil)
	require.NoError(t, err)
	var dev deviceView
	require.NoError(t, json.NewDecoder(res.Body).Decode(&dev))
	res.Body.Close()
	assert.Equal(t, "car", dev.Name)
	assert.Equal(t, audioroute.DeviceBluetooth, sim.ActiveRoute())

	res, err = http.Post(ts.URL+"/sim/bluetooth/disconnect", "", nil)
	require.NoError(t, err)
	var removed []deviceView
	require.NoError(t, json.NewDecoder(res.Body).Decode(&removed))
	res.Body.Close()
	assert.Len(t, removed, 1)

	assert.Equal(t, audioroute.DeviceEarpiece, sim.ActiveRoute(), "контроллер вернул маршрут после отключения")
}
