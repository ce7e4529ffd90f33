package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/f2re/sale-photosession-bot/internal/api"
	"github.com/f2re/sale-photosession-bot/internal/gateway/yookassa"
	"github.com/f2re/sale-photosession-bot/internal/generator"
	"github.com/f2re/sale-photosession-bot/internal/infra/logging"
	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	pgpackages "github.com/f2re/sale-photosession-bot/internal/repos/packages/postgres"
	"github.com/f2re/sale-photosession-bot/internal/services/accounts"
	"github.com/f2re/sale-photosession-bot/internal/services/checkout"
	"github.com/f2re/sale-photosession-bot/internal/services/credits"
	"github.com/f2re/sale-photosession-bot/internal/services/generation"
	ordersvc "github.com/f2re/sale-photosession-bot/internal/services/orders"
	"github.com/f2re/sale-photosession-bot/internal/services/poller"
	"github.com/f2re/sale-photosession-bot/internal/services/reconcile"
	"github.com/f2re/sale-photosession-bot/internal/services/referral"
	"github.com/f2re/sale-photosession-bot/internal/userlock"
	"github.com/f2re/sale-photosession-bot/pkg/envconf"
	"github.com/f2re/sale-photosession-bot/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	shutdownqueue.AddCloser("log file", logging.Setup(cfg.Log))

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.AddCloser("postgres", db)

	gw := yookassa.New(cfg.Gateway)

	// --- Services ---
	guard := credits.New(db)
	cascade := referral.New(db, guard, cfg.Referral)
	engine := reconcile.New(db, guard, cascade)
	orderSrv := ordersvc.New(db, guard)

	polls := poller.New(cfg.Poller, gw, engine, poller.LogNotifier{})
	shutdownqueue.Add("payment pollers", polls.Shutdown)

	services := api.Services{
		Accounts:    accounts.New(db, cascade, cfg.FreeCredits),
		Balances:    guard,
		Referrals:   cascade,
		Generations: generation.New(userlock.New(), guard, generator.New(cfg.Generator)),
		Checkout:    checkout.New(pgpackages.New(db), orderSrv, gw, polls, engine),
		Polls:       polls,
		Reconciler:  engine,
		Webhooks:    gw,
		Orders:      orderSrv,
	}

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.NewRouter(services, cfg.Admin.JWTSecret))

	shutdownqueue.Add("http server", func(c context.Context) error {
		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port)

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
