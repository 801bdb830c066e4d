package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"remindbot/internal/app"
	"remindbot/internal/runtime/lifecycle"
)

func main() {
	var opts app.Options
	pflag.StringVarP(&opts.ConfigPath, "config", "c", "./config.yaml", "path to config (yaml or json); a missing file means defaults")
	pflag.StringVar(&opts.TokenEnv, "token-env", "BOT_TOKEN", "environment variable holding the bot token")
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(opts app.Options) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, opts)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), lifecycle.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	reason := lifecycle.StopUnknown
	select {
	case sig := <-sigCh:
		reason = lifecycle.ReasonFromSignal(sig)
	case <-a.Done():
		reason = lifecycle.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)
	if reason == lifecycle.StopFatalError {
		return errors.Join(a.Err(), stopErr)
	}
	return stopErr
}
