package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/jacksonlee411/lease-signflow/cmd"
	"github.com/jacksonlee411/lease-signflow/internal/server"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

func main() {
	app := cli.App{
		Name:   "signflow-server",
		Usage:  "HTTP API for rental contract signing workflows",
		Flags:  cmd.CommonFlags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logger.Error(context.Background(), "server exited", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := cmd.LoadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	h, err := app.Handler()
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx, &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
}
