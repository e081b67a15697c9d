package audioroute

import (
	"errors"
	"sync"
)

var errPlatform = errors.New("platform failure")

// fakeService аудио сервис для тестов: хранит состояние и журнал вызовов,
// позволяет внедрять сбои отдельных методов
type fakeService struct {
	mu sync.Mutex

	caps      Capabilities
	capsReads int
	devices   []OutputDevice

	mode        AudioMode
	speakerOn   bool
	scoOn       bool
	commDevice  *OutputDevice
	focusHeld   int
	nextHandle  int
	volume      int
	maxVolume   int
	listener    DeviceChangeListener
	unsubscribe int

	// Внедрение сбоев
	denyFocus      bool
	rejectExplicit bool
	failExplicit   bool
	failSpeaker    bool
	failSco        bool
	failDevices    bool
	failMode       bool
	failRegister   bool

	calls []string
}

func newFakeService() *fakeService {
	return &fakeService{
		caps: Capabilities{ExplicitDeviceRouting: true, DeviceCallbacks: true},
		devices: []OutputDevice{
			{ID: 1, Type: DeviceEarpiece, Name: "builtin-earpiece"},
			{ID: 2, Type: DeviceSpeaker, Name: "builtin-speaker"},
		},
		maxVolume: 10,
	}
}

func (f *fakeService) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeService) Capabilities() Capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capsReads++
	return f.caps
}

func (f *fakeService) SetMode(mode AudioMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetMode:" + mode.String())
	if f.failMode {
		return errPlatform
	}
	f.mode = mode
	return nil
}

func (f *fakeService) SetSpeakerphoneOn(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.record("SetSpeakerphoneOn:true")
	} else {
		f.record("SetSpeakerphoneOn:false")
	}
	if f.failSpeaker {
		return errPlatform
	}
	f.speakerOn = on
	return nil
}

func (f *fakeService) OutputDevices() ([]OutputDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("OutputDevices")
	if f.failDevices {
		return nil, errPlatform
	}
	out := make([]OutputDevice, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *fakeService) SetCommunicationDevice(dev *OutputDevice) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dev == nil {
		f.record("SetCommunicationDevice:nil")
		f.commDevice = nil
		return true, nil
	}
	f.record("SetCommunicationDevice:" + dev.Type.String())
	if f.failExplicit {
		return false, errPlatform
	}
	if f.rejectExplicit {
		return false, nil
	}
	d := *dev
	f.commDevice = &d
	return true, nil
}

func (f *fakeService) StopBluetoothSco() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopBluetoothSco")
	if f.failSco {
		return errPlatform
	}
	f.scoOn = false
	return nil
}

func (f *fakeService) SetBluetoothScoOn(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetBluetoothScoOn")
	if f.failSco {
		return errPlatform
	}
	f.scoOn = on
	return nil
}

func (f *fakeService) RequestFocus(attrs FocusAttributes) (FocusHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RequestFocus")
	if f.denyFocus {
		return nil, ErrFocusRequestDenied
	}
	f.nextHandle++
	f.focusHeld++
	return f.nextHandle, nil
}

func (f *fakeService) ReleaseFocus(h FocusHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ReleaseFocus")
	f.focusHeld--
	return nil
}

func (f *fakeService) RegisterDeviceChangeListener(l DeviceChangeListener) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRegister {
		return nil, errPlatform
	}
	f.listener = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listener = nil
		f.unsubscribe++
	}, nil
}

func (f *fakeService) MaxVoiceCallVolume() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxVolume, nil
}

func (f *fakeService) SetVoiceCallVolume(level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = level
	return nil
}

// effectiveRoute физический маршрут с учетом явного выбора и переключателя
func (f *fakeService) effectiveRoute() DeviceType {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commDevice != nil {
		return f.commDevice.Type
	}
	if f.speakerOn {
		return DeviceSpeaker
	}
	return DeviceEarpiece
}

// removeDevices имитирует отключение устройств и уведомляет подписчика
func (f *fakeService) removeDevices(t DeviceType) {
	f.mu.Lock()
	var removed, kept []OutputDevice
	for _, d := range f.devices {
		if d.Type == t {
			removed = append(removed, d)
		} else {
			kept = append(kept, d)
		}
	}
	f.devices = kept
	if f.commDevice != nil && f.commDevice.Type == t {
		// Платформа переводит маршрут на устройство по умолчанию
		f.commDevice = &OutputDevice{ID: 2, Type: DeviceSpeaker}
	}
	l := f.listener
	f.mu.Unlock()

	if l != nil {
		l.OnOutputDevicesChanged(nil, removed)
	}
}

func (f *fakeService) set(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeService) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeService) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeService) count(call string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == call {
			n++
		}
	}
	return n
}
