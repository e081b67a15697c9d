// Команда audiorouted запускает контроллер маршрута звука поверх
// программной модели устройства и открывает его через командный мост
// (WebSocket) и, опционально, SIP слушатель.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/audio_routing/pkg/audioroute"
	"github.com/arzzra/audio_routing/pkg/bridge"
	"github.com/arzzra/audio_routing/pkg/callaudio"
	"github.com/arzzra/audio_routing/pkg/logging"
	"github.com/arzzra/audio_routing/pkg/simaudio"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "Путь к TOML конфигурации")
		logLevel  = flag.String("log-level", "", "Уровень логирования (перекрывает конфигурацию)")
		enableSIP = flag.Bool("sip", false, "Включить SIP слушатель")
	)
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadConfig: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *enableSIP {
		cfg.SIP.Enabled = true
	}

	logging.Init(cfg.Log)
	log := logging.Component("audiorouted")

	ctx, cancel := shutdownListener(log)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("аварийная остановка")
		os.Exit(1)
	}
	log.Info().Msg("остановлен")
}

func run(ctx context.Context, cfg *config, log zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sim := simaudio.New(cfg.simulator())
	defer sim.Close()

	ctrlLog := logging.Component("audioroute")
	ctrlCfg, err := cfg.controller(&ctrlLog, reg)
	if err != nil {
		return fmt.Errorf("конфигурация контроллера: %w", err)
	}
	ctrl, err := audioroute.NewController(sim, ctrlCfg)
	if err != nil {
		return fmt.Errorf("создание контроллера: %w", err)
	}
	defer ctrl.Close()

	srv, err := bridge.NewServer(ctrl, cfg.bridgeServer(reg))
	if err != nil {
		return fmt.Errorf("создание моста: %w", err)
	}
	if cfg.Simulator.DebugEndpoints {
		(&simHandlers{sim: sim, ctrl: ctrl}).register(srv)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if cfg.SIP.Enabled {
		binder := callaudio.NewBinder(ctrl, nil)
		listener, err := callaudio.NewListener(binder, cfg.SIP.ListenerConfig)
		if err != nil {
			return fmt.Errorf("создание SIP слушателя: %w", err)
		}
		defer listener.Close()

		g.Go(func() error {
			return listener.ListenAndServe(gctx)
		})
	}

	log.Info().
		Str("bridge", cfg.Bridge.Listen).
		Bool("sip", cfg.SIP.Enabled).
		Bool("explicit_routing", cfg.Simulator.ExplicitRouting).
		Msg("audiorouted запущен")

	return g.Wait()
}
