// Command lobbyd runs the lobby server. It is configured through LOBBYD_* environment
// variables and an optional dotenv file named by LOBBYD_ENV_FILE (default ".env").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linchenxuan/lobbyd"
	"github.com/linchenxuan/lobbyd/config"
	"github.com/linchenxuan/lobbyd/log"
	"golang.org/x/sync/errgroup"
)

const defaultEnvFile = ".env"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lobbyd:", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := os.Getenv(config.EnvFileVar)
	if envFile == "" {
		envFile = defaultEnvFile
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	app, err := lobbyd.New(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	if err := app.Start(stdinPrompt(os.Stdin, os.Stdout)); err != nil {
		app.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.Watch(ctx, envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("config hot reload disabled")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("signal received")
		return nil
	})
	err = g.Wait()

	app.Stop()
	return err
}
