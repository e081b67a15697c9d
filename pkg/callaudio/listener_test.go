package callaudio

import (
	"errors"
	"sync"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx записывает ответы серверной транзакции
type fakeTx struct {
	mu        sync.Mutex
	responses []*sip.Response
	err       error
}

func (f *fakeTx) Respond(res *sip.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, res)
	return f.err
}

func (f *fakeTx) codes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.responses))
	for _, r := range f.responses {
		out = append(out, int(r.StatusCode))
	}
	return out
}

func (f *fakeTx) last() *sip.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses[len(f.responses)-1]
}

func newTestListener(t *testing.T, ctrl RouteController, autoAnswer bool) *Listener {
	t.Helper()
	nop := zerolog.Nop()
	cfg := DefaultListenerConfig()
	cfg.AutoAnswer = autoAnswer
	cfg.Logger = &nop
	require.NoError(t, cfg.Validate())

	return &Listener{
		cfg:     cfg,
		binder:  NewBinder(ctrl, &nop),
		log:     nop,
		pending: make(map[string]*pendingInvite),
	}
}

func newSIPRequest(method sip.RequestMethod, callID string, body []byte) *sip.Request {
	req := sip.NewRequest(method, sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1", Port: 5060})
	req.AppendHeader(&sip.FromHeader{
		DisplayName: "Alice",
		Address:     sip.Uri{Scheme: "sip", Host: "alice.com", User: "alice"},
		Params:      sip.NewParams().Add("tag", "12345"),
	})
	req.AppendHeader(&sip.ToHeader{
		Address: sip.Uri{Scheme: "sip", Host: "127.0.0.1", User: "bob"},
		Params:  sip.NewParams(),
	})
	if callID != "" {
		h := sip.CallIDHeader(callID)
		req.AppendHeader(&h)
	}
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: method})
	if body != nil {
		req.SetBody(body)
	}
	return req
}

func TestListenerConfigValidate(t *testing.T) {
	cfg := DefaultListenerConfig()
	require.NoError(t, cfg.Validate())
	assert.NotNil(t, cfg.Logger)

	cfg = DefaultListenerConfig()
	cfg.Network = "sctp"
	assert.Error(t, cfg.Validate())

	cfg = DefaultListenerConfig()
	cfg.MediaPort = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultListenerConfig()
	cfg.Addr = ""
	assert.Error(t, cfg.Validate())
}

func TestListenerAutoAnswerFlow(t *testing.T) {
	ctrl := &fakeController{}
	l := newTestListener(t, ctrl, true)

	inviteTx := &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "call-1", []byte(audioOffer)), inviteTx)
	assert.Equal(t, []int{180, 200}, inviteTx.codes())

	ok := inviteTx.last()
	assert.Contains(t, string(ok.Body()), "m=audio 40000")
	ct := ok.GetHeader("Content-Type")
	require.NotNil(t, ct)
	assert.Equal(t, "application/sdp", ct.Value())

	enters, _ := ctrl.counts()
	assert.Zero(t, enters, "режим связи включается по ACK")

	l.handleAck(newSIPRequest(sip.ACK, "call-1", nil))
	enters, _ = ctrl.counts()
	assert.Equal(t, 1, enters)

	byeTx := &fakeTx{}
	l.handleBye(newSIPRequest(sip.BYE, "call-1", nil), byeTx)
	assert.Equal(t, []int{200}, byeTx.codes())
	_, resets := ctrl.counts()
	assert.Equal(t, 1, resets)
}

func TestListenerRejectsBadInvites(t *testing.T) {
	l := newTestListener(t, &fakeController{}, true)

	tx := &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "", []byte(audioOffer)), tx)
	assert.Equal(t, []int{400}, tx.codes(), "без Call-ID")

	tx = &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "c2", []byte("garbage")), tx)
	assert.Equal(t, []int{400}, tx.codes())

	tx = &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "c3", []byte(videoOnlyOffer)), tx)
	assert.Equal(t, []int{statusNotAcceptableHere}, tx.codes())
	assert.Equal(t, "Not Acceptable Here", tx.last().Reason)

	_, ok := l.binder.State("c3")
	assert.False(t, ok)
}

func TestListenerDuplicateInvite(t *testing.T) {
	l := newTestListener(t, &fakeController{}, false)

	l.handleInvite(newSIPRequest(sip.INVITE, "dup", []byte(audioOffer)), &fakeTx{})
	tx := &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "dup", []byte(audioOffer)), tx)
	assert.Equal(t, []int{486}, tx.codes())
}

func TestListenerManualAnswer(t *testing.T) {
	ctrl := &fakeController{}
	l := newTestListener(t, ctrl, false)

	tx := &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "m1", nil), tx)
	assert.Equal(t, []int{180}, tx.codes())
	assert.Equal(t, 1, l.PendingCalls())

	require.NoError(t, l.Answer("m1"))
	assert.Equal(t, []int{180, 200}, tx.codes())
	assert.Zero(t, l.PendingCalls())

	assert.True(t, errors.Is(l.Answer("m1"), ErrUnknownCall))
}

func TestListenerReject(t *testing.T) {
	l := newTestListener(t, &fakeController{}, false)

	tx := &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "r1", []byte(audioOffer)), tx)
	require.NoError(t, l.Reject("r1"))
	assert.Equal(t, []int{180, 486}, tx.codes())

	_, ok := l.binder.State("r1")
	assert.False(t, ok)
}

func TestListenerCancel(t *testing.T) {
	ctrl := &fakeController{}
	l := newTestListener(t, ctrl, false)

	inviteTx := &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "x1", []byte(audioOffer)), inviteTx)

	cancelTx := &fakeTx{}
	l.handleCancel(newSIPRequest(sip.CANCEL, "x1", nil), cancelTx)
	assert.Equal(t, []int{200}, cancelTx.codes())
	assert.Equal(t, []int{180, 487}, inviteTx.codes())

	enters, resets := ctrl.counts()
	assert.Zero(t, enters)
	assert.Zero(t, resets)

	cancelTx = &fakeTx{}
	l.handleCancel(newSIPRequest(sip.CANCEL, "x1", nil), cancelTx)
	assert.Equal(t, []int{481}, cancelTx.codes())
}

func TestListenerByeUnknownCall(t *testing.T) {
	l := newTestListener(t, &fakeController{}, true)
	tx := &fakeTx{}
	l.handleBye(newSIPRequest(sip.BYE, "ghost", nil), tx)
	assert.Equal(t, []int{481}, tx.codes())
}

func TestListenerAnswerSendFailure(t *testing.T) {
	l := newTestListener(t, &fakeController{}, false)

	tx := &fakeTx{}
	l.handleInvite(newSIPRequest(sip.INVITE, "f1", []byte(audioOffer)), tx)
	tx.mu.Lock()
	tx.err = errors.New("transport closed")
	tx.mu.Unlock()

	assert.Error(t, l.Answer("f1"))
	_, ok := l.binder.State("f1")
	assert.False(t, ok, "звонок снят после ошибки отправки")
}
