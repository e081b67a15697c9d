package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
)

// interruptSignals сигналы остановки; на unix дополняются в init
var interruptSignals = []os.Signal{os.Interrupt}

// shutdownListener возвращает контекст, который отменяется по сигналу остановки.
// Повторные сигналы только логируются.
func shutdownListener(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		select {
		case sig := <-interruptChannel:
			log.Info().Str("signal", sig.String()).Msg("получен сигнал, остановка")
			cancel()
		case <-ctx.Done():
		}

		for {
			sig := <-interruptChannel
			log.Info().Str("signal", sig.String()).Msg("получен сигнал, остановка уже идет")
		}
	}()
	return ctx, cancel
}
