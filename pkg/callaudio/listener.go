package callaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog"

	"github.com/arzzra/audio_routing/pkg/logging"
)

const statusNotAcceptableHere = 488

// ListenerConfig конфигурация SIP слушателя
type ListenerConfig struct {
	// Network udp, tcp или ws
	Network string `toml:"network"`
	Addr    string `toml:"addr"`

	// Hostname имя User Agent
	Hostname string `toml:"hostname"`

	// AutoAnswer отвечать на INVITE сразу; иначе звонок ждет Answer
	AutoAnswer bool `toml:"auto_answer"`

	// MediaHost и MediaPort объявляются в SDP answer
	MediaHost string `toml:"media_host"`
	MediaPort int    `toml:"media_port"`

	Logger *zerolog.Logger `toml:"-"`
}

// DefaultListenerConfig возвращает конфигурацию по умолчанию
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Network:    "udp",
		Addr:       "127.0.0.1:5060",
		Hostname:   "audiorouted",
		AutoAnswer: true,
		MediaHost:  "127.0.0.1",
		MediaPort:  40000,
	}
}

// Validate проверяет конфигурацию и заполняет значения по умолчанию
func (c *ListenerConfig) Validate() error {
	switch c.Network {
	case "":
		c.Network = "udp"
	case "udp", "tcp", "ws":
	default:
		return fmt.Errorf("неподдерживаемый транспорт SIP: %q", c.Network)
	}
	if c.Addr == "" {
		return errors.New("адрес SIP слушателя не задан")
	}
	if c.Hostname == "" {
		c.Hostname = "audiorouted"
	}
	if c.MediaHost == "" {
		c.MediaHost = "127.0.0.1"
	}
	if c.MediaPort <= 0 || c.MediaPort > 65535 {
		return fmt.Errorf("некорректный медиа порт: %d", c.MediaPort)
	}
	if c.Logger == nil {
		l := logging.Component("sip")
		c.Logger = &l
	}
	return nil
}

// responder отвечает в серверной транзакции; sip.ServerTransaction его реализует
type responder interface {
	Respond(res *sip.Response) error
}

type pendingInvite struct {
	req   *sip.Request
	tx    responder
	offer *sdp.SessionDescription
}

// Listener принимает звонки по SIP и передает их состояние в Binder
type Listener struct {
	cfg    ListenerConfig
	binder *Binder
	log    zerolog.Logger

	ua  *sipgo.UserAgent
	srv *sipgo.Server

	mu      sync.Mutex
	pending map[string]*pendingInvite
}

// NewListener создает SIP слушатель
func NewListener(binder *Binder, cfg ListenerConfig) (*Listener, error) {
	if binder == nil {
		return nil, errors.New("binder не может быть nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Listener{
		cfg:     cfg,
		binder:  binder,
		log:     *cfg.Logger,
		pending: make(map[string]*pendingInvite),
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgentHostname(cfg.Hostname))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания User Agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		_ = ua.Close()
		return nil, fmt.Errorf("ошибка создания сервера: %w", err)
	}
	l.ua = ua
	l.srv = srv

	srv.OnInvite(func(req *sip.Request, tx sip.ServerTransaction) { l.handleInvite(req, tx) })
	srv.OnAck(func(req *sip.Request, tx sip.ServerTransaction) { l.handleAck(req) })
	srv.OnBye(func(req *sip.Request, tx sip.ServerTransaction) { l.handleBye(req, tx) })
	srv.OnCancel(func(req *sip.Request, tx sip.ServerTransaction) { l.handleCancel(req, tx) })

	return l, nil
}

// ListenAndServe принимает SIP запросы до отмены контекста
func (l *Listener) ListenAndServe(ctx context.Context) error {
	l.log.Info().
		Str("network", l.cfg.Network).
		Str("address", l.cfg.Addr).
		Bool("auto_answer", l.cfg.AutoAnswer).
		Msg("запуск SIP сервера")
	err := l.srv.ListenAndServe(ctx, l.cfg.Network, l.cfg.Addr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close закрывает User Agent и завершает все звонки
func (l *Listener) Close() error {
	l.binder.HangupAll()
	if l.ua != nil {
		return l.ua.Close()
	}
	return nil
}

// Answer отвечает 200 OK на ожидающий INVITE (режим без AutoAnswer)
func (l *Listener) Answer(callID string) error {
	l.mu.Lock()
	p, ok := l.pending[callID]
	delete(l.pending, callID)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: нет ожидающего INVITE %s", ErrUnknownCall, callID)
	}
	return l.accept(callID, p)
}

// Reject отклоняет ожидающий INVITE с 486 Busy Here
func (l *Listener) Reject(callID string) error {
	l.mu.Lock()
	p, ok := l.pending[callID]
	delete(l.pending, callID)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: нет ожидающего INVITE %s", ErrUnknownCall, callID)
	}
	_ = l.binder.Hangup(callID)
	return p.tx.Respond(sip.NewResponseFromRequest(p.req, sip.StatusBusyHere, "Busy Here", nil))
}

func (l *Listener) handleInvite(req *sip.Request, tx responder) {
	callID := callIDOf(req)
	log := l.log.With().Str("call_id", callID).Logger()

	if callID == "" {
		l.respond(log, req, tx, sip.StatusBadRequest, "Missing Call-ID")
		return
	}

	offer, err := parseOffer(req.Body())
	if err != nil {
		log.Warn().Err(err).Msg("некорректный SDP offer")
		l.respond(log, req, tx, sip.StatusBadRequest, "Bad SDP")
		return
	}
	if !hasAudio(offer) {
		log.Info().Msg("звонок без аудио отклонен")
		l.respond(log, req, tx, statusNotAcceptableHere, "Not Acceptable Here")
		return
	}

	if err := l.binder.Offer(callID, true); err != nil {
		log.Warn().Err(err).Msg("повторный INVITE отклонен")
		l.respond(log, req, tx, sip.StatusBusyHere, "Busy Here")
		return
	}

	l.respond(log, req, tx, sip.StatusRinging, "Ringing")

	p := &pendingInvite{req: req, tx: tx, offer: offer}
	if l.cfg.AutoAnswer {
		if err := l.accept(callID, p); err != nil {
			log.Error().Err(err).Msg("не удалось ответить на звонок")
		}
		return
	}

	l.mu.Lock()
	l.pending[callID] = p
	l.mu.Unlock()
	log.Info().Msg("звонок ожидает ответа")
}

// accept отправляет 200 OK с SDP answer; режим связи включается по ACK
func (l *Listener) accept(callID string, p *pendingInvite) error {
	body, err := buildAnswer(p.offer, l.cfg.MediaHost, l.cfg.MediaPort)
	if err != nil {
		_ = l.binder.Hangup(callID)
		_ = p.tx.Respond(sip.NewResponseFromRequest(p.req, statusNotAcceptableHere, "Not Acceptable Here", nil))
		return err
	}

	res := sip.NewResponseFromRequest(p.req, sip.StatusOK, "OK", body)
	res.AppendHeader(sip.NewHeader("Contact", fmt.Sprintf("<sip:%s@%s>", l.cfg.Hostname, l.cfg.Addr)))
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := p.tx.Respond(res); err != nil {
		_ = l.binder.Hangup(callID)
		return fmt.Errorf("ошибка отправки 200 OK: %w", err)
	}
	return nil
}

func (l *Listener) handleAck(req *sip.Request) {
	callID := callIDOf(req)
	if err := l.binder.Answer(callID); err != nil {
		l.log.Debug().Err(err).Str("call_id", callID).Msg("ACK не обработан")
	}
}

func (l *Listener) handleBye(req *sip.Request, tx responder) {
	callID := callIDOf(req)
	log := l.log.With().Str("call_id", callID).Logger()

	err := l.binder.Hangup(callID)
	if errors.Is(err, ErrUnknownCall) {
		l.respond(log, req, tx, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("звонок завершен с ошибкой сброса аудио")
	}
	l.respond(log, req, tx, sip.StatusOK, "OK")
}

func (l *Listener) handleCancel(req *sip.Request, tx responder) {
	callID := callIDOf(req)
	log := l.log.With().Str("call_id", callID).Logger()

	l.mu.Lock()
	p, ok := l.pending[callID]
	delete(l.pending, callID)
	l.mu.Unlock()

	if err := l.binder.Hangup(callID); errors.Is(err, ErrUnknownCall) {
		l.respond(log, req, tx, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist")
		return
	}
	l.respond(log, req, tx, sip.StatusOK, "OK")
	if ok {
		l.respond(log, p.req, p.tx, sip.StatusRequestTerminated, "Request Terminated")
	}
}

func (l *Listener) respond(log zerolog.Logger, req *sip.Request, tx responder, code sip.StatusCode, reason string) {
	if err := tx.Respond(sip.NewResponseFromRequest(req, code, reason, nil)); err != nil {
		log.Warn().Err(err).Int("status", int(code)).Msg("ошибка отправки ответа")
	}
}

func callIDOf(req *sip.Request) string {
	if h := req.CallID(); h != nil {
		return h.Value()
	}
	if h := req.GetHeader("Call-ID"); h != nil {
		return h.Value()
	}
	return ""
}

// PendingCalls число звонков, ожидающих ответа
func (l *Listener) PendingCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
