package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/jacksonlee411/lease-signflow/cmd"
	"github.com/jacksonlee411/lease-signflow/internal/config"
	"github.com/jacksonlee411/lease-signflow/internal/server"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/modules/signing/infrastructure/locking"
	"github.com/jacksonlee411/lease-signflow/modules/signing/infrastructure/persistence"
	"github.com/jacksonlee411/lease-signflow/modules/signing/services"
	"github.com/jacksonlee411/lease-signflow/pkg/authz"
)

func main() {
	app := cli.App{
		Name:  "dbtool",
		Usage: "database and credential helpers for lease-signflow",
		Flags: cmd.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "create or update the signing schema",
				Action: migrate,
			},
			{
				Name:  "seed-party",
				Usage: "register the default signer of a contract role",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "contract", Required: true},
					&cli.StringFlag{Name: "role", Required: true, Usage: "tenant, owner or admin"},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "contact"},
				},
				Action: seedParty,
			},
			{
				Name:  "token",
				Usage: "mint a bearer token for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Required: true},
					&cli.StringFlag{Name: "role", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
				Action: token,
			},
			{
				Name:   "smoke",
				Usage:  "run one contract through the full signing chain against the database",
				Action: smoke,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func connect(ctx context.Context, c *cli.Context) (*pgxpool.Pool, config.Config, error) {
	cfg, err := cmd.LoadConfig(c)
	if err != nil {
		return nil, config.Config{}, err
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		return nil, config.Config{}, err
	}
	return pool, cfg, nil
}

func migrate(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	pool, _, err := connect(ctx, c)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, persistence.SchemaSQL); err != nil {
		if msg, ok := pgErrorMessage(err); ok {
			return fmt.Errorf("migrate: %s", msg)
		}
		return err
	}
	fmt.Println("[migrate] OK")
	return nil
}

func seedParty(c *cli.Context) error {
	role, ok := types.ParseRole(c.String("role"))
	if !ok {
		return fmt.Errorf("invalid role: %s", c.String("role"))
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	pool, _, err := connect(ctx, c)
	if err != nil {
		return err
	}
	defer pool.Close()

	dir := persistence.NewDirectoryPGStore(pool)
	signer := types.Signer{Name: strings.TrimSpace(c.String("name")), Contact: strings.TrimSpace(c.String("contact"))}
	if err := dir.UpsertParty(ctx, strings.TrimSpace(c.String("contract")), role, signer); err != nil {
		return err
	}
	fmt.Printf("[seed-party] %s %s OK\n", c.String("contract"), role)
	return nil
}

func token(c *cli.Context) error {
	cfg, err := cmd.LoadConfig(c)
	if err != nil {
		return err
	}
	tok, err := server.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, c.Duration("ttl"), authz.Principal{
		Subject: c.String("subject"),
		Role:    c.String("role"),
		Name:    c.String("name"),
	}, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

// smoke drives a throwaway contract from draft to active through the PG
// stores, checks the stored ledger and outbox, then removes its rows.
func smoke(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	pool, _, err := connect(ctx, c)
	if err != nil {
		return err
	}
	defer pool.Close()

	contractID := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	defer func() {
		if err := cleanupSmoke(context.Background(), pool, contractID); err != nil {
			fmt.Fprintf(os.Stderr, "[smoke] cleanup %s: %v\n", contractID, err)
		}
	}()

	dir := persistence.NewDirectoryPGStore(pool)
	for role, name := range map[types.Role]string{
		types.RoleTenant: "Smoke Tenant",
		types.RoleOwner:  "Smoke Owner",
		types.RoleAdmin:  "Smoke Admin",
	} {
		if err := dir.UpsertParty(ctx, contractID, role, types.Signer{Name: name}); err != nil {
			return err
		}
	}

	svc := services.NewWorkflowService(persistence.NewWorkflowPGStore(pool), dir, nopPublisher{}, locking.NewKeyedMutex())
	if _, err := svc.RequestSignatures(ctx, contractID, "dbtool"); err != nil {
		return err
	}
	for _, role := range []types.Role{types.RoleTenant, types.RoleOwner, types.RoleAdmin} {
		if _, err := svc.Sign(ctx, contractID, services.SignRequest{Role: role, ActingAs: role}); err != nil {
			return fmt.Errorf("sign %s: %w", role, err)
		}
	}
	if _, err := svc.Sign(ctx, contractID, services.SignRequest{Role: types.RoleAdmin, ActingAs: types.RoleAdmin}); !errors.Is(err, types.ErrWorkflowTerminal) && !errors.Is(err, types.ErrAlreadySigned) {
		return fmt.Errorf("expected second admin sign to fail, got %v", err)
	}

	snap, err := svc.GetState(ctx, contractID)
	if err != nil {
		return err
	}
	if snap.State != types.StateActive || len(snap.Signatures) != 3 {
		return fmt.Errorf("unexpected final state %s with %d signatures", snap.State, len(snap.Signatures))
	}

	var events int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM signing.outbox WHERE contract_id = $1`, contractID).Scan(&events); err != nil {
		return err
	}
	if events == 0 {
		return errors.New("expected outbox events")
	}
	fmt.Printf("[smoke] OK contract=%s events=%d\n", contractID, events)
	return nil
}

func cleanupSmoke(ctx context.Context, pool *pgxpool.Pool, contractID string) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM signing.outbox WHERE contract_id = $1`,
			`DELETE FROM signing.signatures WHERE contract_id = $1`,
			`DELETE FROM signing.workflows WHERE contract_id = $1`,
			`DELETE FROM signing.contract_parties WHERE contract_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, contractID); err != nil {
				return err
			}
		}
		return nil
	})
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...types.Event) {}

func pgErrorMessage(err error) (string, bool) {
	pgErr, ok := errors.AsType[*pgconn.PgError](err)
	if !ok {
		return "", false
	}
	return pgErr.Message, true
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
