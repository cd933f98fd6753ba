package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"

	"ampfilter/internal/config"
	"ampfilter/internal/engine"
	"ampfilter/internal/logger"
	"ampfilter/internal/rule"
)

func main() {
	fs := flag.NewFlagSet("ampfilter", flag.ExitOnError)

	cfg := config.Default()
	cfg.RegisterFlags(fs)

	var configFile string
	fs.StringVar(&configFile, "config", "", "config file path")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("AMPFILTER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		os.Exit(2)
	}

	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(cfg, rule.NewStore())

	// run engine in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Run(ctx)
	}()

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Info().Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("engine exited")
			os.Exit(1)
		}
	}

	log.Info().Msg("exited")
}
