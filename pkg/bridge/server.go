// Package bridge открывает команды контроллера маршрута хост-приложению:
// JSON поверх WebSocket, плюс /metrics и /healthz.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/audio_routing/pkg/logging"
)

// Config конфигурация сервера моста
type Config struct {
	// Addr адрес HTTP сервера
	Addr string

	// Path путь WebSocket обработчика команд
	Path string

	// PingInterval период ping кадров, PongTimeout ожидание ответа на них
	PingInterval time.Duration
	PongTimeout  time.Duration

	// WriteTimeout дедлайн записи одного ответа
	WriteTimeout time.Duration

	// Registerer для метрик моста; Gatherer для /metrics.
	// Если Gatherer nil, используется Registerer (когда он реализует
	// prometheus.Gatherer) или prometheus.DefaultGatherer.
	Registerer       prometheus.Registerer
	Gatherer         prometheus.Gatherer
	MetricsNamespace string

	Logger *zerolog.Logger
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8765",
		Path:         "/bridge",
		PingInterval: 30 * time.Second,
		PongTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

func (c *Config) validate() error {
	if c.Path == "" {
		c.Path = "/bridge"
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("путь моста должен начинаться с '/': %q", c.Path)
	}
	if c.PingInterval < 0 || c.PongTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("таймауты моста не могут быть отрицательными")
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Gatherer == nil {
		if g, ok := c.Registerer.(prometheus.Gatherer); ok {
			c.Gatherer = g
		} else {
			c.Gatherer = prometheus.DefaultGatherer
		}
	}
	if c.Logger == nil {
		l := logging.Component("bridge")
		c.Logger = &l
	}
	return nil
}

// Server HTTP сервер моста
type Server struct {
	cfg        Config
	router     Router
	dispatcher *Dispatcher
	metrics    *bridgeMetrics
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewServer создает сервер моста поверх Router
func NewServer(router Router, cfg Config) (*Server, error) {
	if router == nil {
		return nil, errors.New("router не может быть nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		router:  router,
		metrics: newBridgeMetrics(cfg.Registerer, cfg.MetricsNamespace),
		mux:     http.NewServeMux(),
		log:     *cfg.Logger,
	}
	s.dispatcher = &Dispatcher{router: router, log: s.log, metrics: s.metrics}
	s.upgrader = websocket.Upgrader{CheckOrigin: checkSameOrigin}

	s.mux.HandleFunc(cfg.Path, s.handleWebsocket)
	s.mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s, nil
}

// Handle регистрирует дополнительный обработчик (например, отладочные
// эндпоинты симулятора)
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Handler возвращает корневой HTTP обработчик
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Dispatcher возвращает диспетчер команд сервера
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// ListenAndServe слушает cfg.Addr до отмены контекста
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("не удалось открыть %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve обслуживает запросы на l до отмены контекста
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Handler:           s.mux,
		BaseContext:       func(net.Listener) context.Context { return gctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		s.log.Info().Str("addr", l.Addr().String()).Str("path", s.cfg.Path).Msg("мост команд запущен")
		err := httpServer.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  StatusOK,
		"session": string(s.router.State()),
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		var herr websocket.HandshakeError
		if !errors.As(err, &herr) {
			s.log.Error().Err(err).Msg("неожиданная ошибка websocket")
		}
		return
	}

	log := s.log.With().
		Str("conn_id", uuid.NewString()).
		Str("remote", r.RemoteAddr).
		Logger()

	s.metrics.connOpened()
	defer s.metrics.connClosed()

	log.Debug().Msg("клиент моста подключен")
	err = s.serveConn(r.Context(), conn, log)
	if isExpectedCloseErr(err) {
		log.Debug().Err(err).Msg("клиент моста отключен")
	} else {
		log.Warn().Err(err).Msg("соединение моста завершено с ошибкой")
	}
}

// serveConn читает команды по одной и отвечает в том же порядке.
// Ping кадры идут через WriteControl, который допускает конкурентный вызов.
func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn, log zerolog.Logger) error {
	defer conn.Close()

	readWindow := s.cfg.PingInterval + s.cfg.PongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.PongTimeout))
				if err != nil {
					log.Trace().Err(err).Msg("ping не отправлен")
					return
				}
			}
		}
	}()

	for {
		var req Request
		err := conn.ReadJSON(&req)
		var resp Response
		switch {
		case err == nil:
			resp = s.dispatcher.Dispatch(req)
		case isDecodeErr(err):
			resp = errorResponse("", fmt.Sprintf("некорректный запрос: %v", err))
			s.metrics.request("", StatusError)
		default:
			return err
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			return err
		}
	}
}

func isDecodeErr(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func isExpectedCloseErr(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// checkSameOrigin пропускает запросы без Origin, локальные ресурсы
// (file://, null) и запросы с совпадающим хостом
func checkSameOrigin(r *http.Request) bool {
	origin := r.Header["Origin"]
	if len(origin) == 0 {
		return true
	}

	originURL, err := url.Parse(origin[0])
	if err != nil {
		return false
	}
	if originURL.Scheme == "file" || originURL.Path == "null" || origin[0] == "null" {
		return true
	}

	originHost := originURL.Host
	requestHost := r.Host
	if host, _, err := net.SplitHostPort(originHost); err == nil {
		originHost = host
	}
	if host, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = host
	}
	return strings.EqualFold(originHost, requestHost)
}
