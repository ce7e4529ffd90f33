// Package generation runs credit-consuming work: one credit is reserved
// before the external generator is called and handed back if it fails.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/f2re/sale-photosession-bot/internal/generator"
	"github.com/f2re/sale-photosession-bot/internal/metrics"
	"github.com/f2re/sale-photosession-bot/internal/userlock"
)

var (
	// ErrBusy means another generation for the same user is still running.
	ErrBusy                = errors.New("generation already in progress")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

type Reserver interface {
	Reserve(ctx context.Context, userID uint64) (bool, error)
	Rollback(ctx context.Context, userID uint64) error
}

type Service struct {
	locks   *userlock.Registry
	credits Reserver
	gen     generator.Generator
}

func New(locks *userlock.Registry, credits Reserver, gen generator.Generator) *Service {
	return &Service{
		locks:   locks,
		credits: credits,
		gen:     gen,
	}
}

// Generate spends one credit on req. The credit is returned when the
// generator fails; the original error is still reported to the caller.
func (s *Service) Generate(ctx context.Context, userID uint64, req generator.Request) (generator.Result, error) {
	release, ok := s.locks.TryAcquire(userID)
	if !ok {
		return generator.Result{}, ErrBusy
	}
	defer release()

	log := slog.With("user_id", userID)

	reserved, err := s.credits.Reserve(ctx, userID)
	if err != nil {
		return generator.Result{}, fmt.Errorf("reserve credit: %w", err)
	}

	if !reserved {
		metrics.ReservationsTotal.WithLabelValues("insufficient").Inc()
		return generator.Result{}, ErrInsufficientCredits
	}

	metrics.ReservationsTotal.WithLabelValues("reserved").Inc()

	req.UserID = userID

	res, err := s.gen.Generate(ctx, req)
	if err != nil {
		rbErr := s.credits.Rollback(context.WithoutCancel(ctx), userID)
		if rbErr != nil {
			// The user lost a credit; this needs a manual grant.
			log.Error("credit rollback failed", "error", rbErr, "cause", err)
			return generator.Result{}, errors.Join(fmt.Errorf("generate: %w", err), fmt.Errorf("rollback credit: %w", rbErr))
		}

		metrics.ReservationsTotal.WithLabelValues("rolled_back").Inc()
		log.Warn("generation failed, credit returned", "error", err)

		return generator.Result{}, fmt.Errorf("generate: %w", err)
	}

	log.Info("generation finished", "images", len(res.Images), "failed_variants", res.Failed)

	return res, nil
}
