package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/le0/internal/bot"
	"github.com/danmuck/le0/internal/config"
	"github.com/danmuck/le0/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "le0.toml", "bot config path")
	initCfg := flag.Bool("init", false, "write a config template to -config and exit")
	force := flag.Bool("force", false, "overwrite an existing config with -init")
	validate := flag.Bool("validate", false, "validate -config and exit")
	flag.Parse()

	if err := run(*path, *initCfg, *force, *validate); err != nil {
		fmt.Fprintf(os.Stderr, "le0: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, initCfg, force, validate bool) error {
	if initCfg {
		if err := config.WriteTemplate(path, force); err != nil {
			return err
		}
		fmt.Printf("wrote config template to %s\n", path)
		return nil
	}

	cfg, err := config.LoadBotConfig(path)
	if err != nil {
		return err
	}
	if validate {
		fmt.Printf("validated config at %s\n", path)
		return nil
	}

	logging.ConfigureRuntime()
	b, err := bot.New(config.Bot(cfg))
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sigCtx.Done():
		case <-ctx.Done():
			return
		}
		stop()
		log.Info().Msg("le0 signal received, quitting")
		if err := b.Quit(bot.DefaultQuitReason); err != nil {
			cancel()
		}
	}()

	log.Info().Str("server", cfg.Address()).Str("nick", cfg.Nick).Bool("tls", cfg.TLS).Msg("le0 starting")
	return b.Run(ctx)
}
