package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jacksonlee411/lease-signflow/cmd"
	"github.com/jacksonlee411/lease-signflow/internal/config"
	"github.com/jacksonlee411/lease-signflow/internal/expiry"
	"github.com/jacksonlee411/lease-signflow/internal/notify"
	"github.com/jacksonlee411/lease-signflow/internal/notifyrelay"
	"github.com/jacksonlee411/lease-signflow/internal/server"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

var onceFlag = &cli.BoolFlag{
	Name:  "once",
	Usage: "run a single pass and exit",
}

func main() {
	app := cli.App{
		Name:  "signing-worker",
		Usage: "background jobs for contract signing workflows",
		Flags: cmd.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:   "relay",
				Usage:  "deliver outbox events to the notification dispatcher and archive",
				Flags:  []cli.Flag{onceFlag},
				Action: relay,
			},
			{
				Name:   "expire",
				Usage:  "reject workflows whose signature window has expired",
				Flags:  []cli.Flag{onceFlag},
				Action: expire,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Error(context.Background(), "signing-worker exited", "error", err)
		os.Exit(1)
	}
}

func openApp(c *cli.Context) (context.Context, context.CancelFunc, *server.App, error) {
	cfg, err := cmd.LoadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Database.Memory {
		return nil, nil, nil, errors.New("signing-worker needs a database")
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return ctx, stop, app, nil
}

func relay(c *cli.Context) error {
	ctx, stop, app, err := openApp(c)
	if err != nil {
		return err
	}
	defer stop()
	defer app.Close()

	cfg := app.Config.Notify
	if cfg.Mode != "outbox" {
		return errors.New("relay requires notify.mode outbox")
	}

	bus := notify.NewBus()
	app.Subscribe(bus)
	r := notifyrelay.NewRelay(notifyrelay.NewPGOutbox(app.Pool, cfg.MaxAttempts), bus.Deliver, cfg.RelayInterval, cfg.RelayBatch)

	if c.Bool(onceFlag.Name) {
		res, err := r.RunOnce(ctx)
		logger.Info(ctx, "outbox relay", "dispatched", res.Dispatched, "failed", res.Failed)
		return err
	}
	logger.Info(ctx, "outbox relay started", "interval", cfg.RelayInterval.String())
	r.Run(ctx)
	return nil
}

func expire(c *cli.Context) error {
	ctx, stop, app, err := openApp(c)
	if err != nil {
		return err
	}
	defer stop()
	defer app.Close()

	job, err := newExpiryJob(ctx, app.Config.Expiry, app)
	if err != nil {
		return err
	}
	runOnce := func() error {
		rep, err := job.RunOnce(ctx)
		logger.Info(ctx, "expiry pass", "checked", rep.Checked, "rejected", rep.Rejected, "skipped", rep.Skipped, "failed", rep.Failed)
		return err
	}

	if c.Bool(onceFlag.Name) {
		return runOnce()
	}

	interval := app.Config.Expiry.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	if err := runOnce(); err != nil {
		logger.Error(ctx, "expiry pass failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := runOnce(); err != nil {
				logger.Error(ctx, "expiry pass failed", "error", err)
			}
		}
	}
}

func newExpiryJob(ctx context.Context, cfg config.ExpiryConfig, app *server.App) (*expiry.Job, error) {
	policy, err := expiry.LoadPolicy(ctx, cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	return expiry.NewJob(app.Service, policy, cfg.Batch, cfg.MaxWait), nil
}
