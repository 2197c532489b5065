package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/lectio/lectio/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// main sets up logging from DEBUG_LECTIO, cancels the command context on
// interrupt and runs the CLI.
func main() {
	configureLogLevelFromEnv()

	ctx, stop := setupInterruptContext(context.Background())
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}

// configureLogLevelFromEnv enables debug logging when DEBUG_LECTIO is set
// to anything other than "", "0" or "false". Otherwise logging stays off
// until the config says otherwise.
func configureLogLevelFromEnv() {
	switch os.Getenv("DEBUG_LECTIO") {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// setupInterruptContext returns a context cancelled on the first interrupt.
// Commands wind down on cancellation; a second interrupt exits immediately.
func setupInterruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stopChan := make(chan os.Signal, 2)
	signal.Notify(stopChan, os.Interrupt)
	go handleInterrupt(stopChan, cancel, func(msg string) { log.Warn().Msg(msg) }, os.Exit)
	return ctx, func() {
		signal.Stop(stopChan)
		close(stopChan)
		cancel()
	}
}

func handleInterrupt(stopChan <-chan os.Signal, cancel context.CancelFunc, warn func(string), exit func(int)) {
	if _, ok := <-stopChan; !ok {
		return
	}
	warn("Interrupt signal received. Stopping...")
	cancel()
	if _, ok := <-stopChan; !ok {
		return
	}
	warn("Second interrupt received. Exiting...")
	exit(130)
}
