// Package poller runs one bounded background status check per payment intent.
//
// A task sleeps through the configured schedule (60s, 30s, 60s, then every
// 30s by default), asks the gateway for the payment state and hands a
// success to the reconciliation engine. It stops on success, on cancellation
// or when the wall-clock budget is spent. Tasks are not persisted; a restart
// drops them and the webhook or a manual check has to finish the job.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/f2re/sale-photosession-bot/internal/config"
	"github.com/f2re/sale-photosession-bot/internal/gateway"
	"github.com/f2re/sale-photosession-bot/internal/metrics"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	"github.com/f2re/sale-photosession-bot/internal/services/reconcile"
)

var ErrClosed = errors.New("poll scheduler closed")

type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeTimeout is the "still unknown" result after the budget ran out.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeAborted covers shutdown and crashed tasks.
	OutcomeAborted Outcome = "aborted"
)

type Result struct {
	InvoiceID   string
	UserID      uint64
	Outcome     Outcome
	Checks      int
	OrderID     int64
	SupportHint string
	StartedAt   time.Time
	FinishedAt  time.Time
}

type Reconciler interface {
	Reconcile(ctx context.Context, invoiceID string, source reconcile.Source) (*orders.Order, error)
}

// Notifier is told about every finished task.
type Notifier interface {
	PollFinished(ctx context.Context, res Result)
}

type LogNotifier struct{}

func (LogNotifier) PollFinished(_ context.Context, res Result) {
	log := slog.With(
		"invoice_id", res.InvoiceID,
		"user_id", res.UserID,
		"outcome", string(res.Outcome),
		"checks", res.Checks,
	)

	if res.Outcome == OutcomeTimeout {
		log.Warn("payment poll timed out", "support_hint", res.SupportHint)
		return
	}

	log.Info("payment poll finished")
}

// Finished results are kept this long for status queries.
const resultRetention = time.Hour

type Scheduler struct {
	cfg      config.PollerConfig
	gw       gateway.Gateway
	rec      Reconciler
	notifier Notifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	results map[string]Result
}

func New(cfg config.PollerConfig, gw gateway.Gateway, rec Reconciler, notifier Notifier) *Scheduler {
	if notifier == nil {
		notifier = LogNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:      cfg,
		gw:       gw,
		rec:      rec,
		notifier: notifier,
		now:      time.Now,
		sleep:    sleepCtx,
		baseCtx:  ctx,
		cancel:   cancel,
		results:  make(map[string]Result),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start launches a background task for invoiceID. It returns false when a
// task for the invoice is already running or the scheduler is shut down.
func (s *Scheduler) Start(invoiceID string, userID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.pruneLocked()

	if prev, ok := s.results[invoiceID]; ok && prev.Outcome == OutcomeRunning {
		return false
	}

	s.results[invoiceID] = Result{
		InvoiceID: invoiceID,
		UserID:    userID,
		Outcome:   OutcomeRunning,
		StartedAt: s.now(),
	}

	s.wg.Add(1)
	metrics.PollTasksActive.Inc()

	go s.runTask(invoiceID, userID)

	return true
}

func (s *Scheduler) runTask(invoiceID string, userID uint64) {
	res := Result{InvoiceID: invoiceID, UserID: userID, Outcome: OutcomeAborted}

	defer func() {
		p := recover()
		if p != nil {
			slog.Error("payment poll task panicked", "invoice_id", invoiceID, "panic", fmt.Sprint(p))
		}

		s.finish(res)
		metrics.PollTasksActive.Dec()
		s.wg.Done()
	}()

	res = s.Run(s.baseCtx, invoiceID, userID)
}

func (s *Scheduler) finish(res Result) {
	if res.FinishedAt.IsZero() {
		res.FinishedAt = s.now()
	}

	s.mu.Lock()
	if prev, ok := s.results[res.InvoiceID]; ok && res.StartedAt.IsZero() {
		res.StartedAt = prev.StartedAt
	}
	s.results[res.InvoiceID] = res
	s.mu.Unlock()

	metrics.PollOutcomesTotal.WithLabelValues(string(res.Outcome)).Inc()

	s.notifier.PollFinished(context.WithoutCancel(s.baseCtx), res)
}

// Run executes the check schedule for invoiceID synchronously.
func (s *Scheduler) Run(ctx context.Context, invoiceID string, userID uint64) Result {
	log := slog.With("invoice_id", invoiceID, "user_id", userID)

	res := Result{
		InvoiceID: invoiceID,
		UserID:    userID,
		StartedAt: s.now(),
	}

	for i := 0; ; i++ {
		d := s.delay(i)

		// The next check must land within the budget.
		if s.now().Sub(res.StartedAt)+d > s.cfg.Budget {
			res.Outcome = OutcomeTimeout
			res.SupportHint = SupportHint(invoiceID)
			break
		}

		err := s.sleep(ctx, d)
		if err != nil {
			res.Outcome = OutcomeAborted
			break
		}

		res.Checks++

		outcome, orderID, done := s.check(ctx, log, invoiceID)
		if done {
			res.Outcome = outcome
			res.OrderID = orderID
			break
		}
	}

	res.FinishedAt = s.now()

	return res
}

func (s *Scheduler) delay(i int) time.Duration {
	if i < len(s.cfg.InitialDelays) {
		return s.cfg.InitialDelays[i]
	}

	return s.cfg.Interval
}

func (s *Scheduler) check(ctx context.Context, log *slog.Logger, invoiceID string) (Outcome, int64, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	st, err := s.gw.GetStatus(cctx, invoiceID)
	if err != nil {
		log.Warn("payment status check failed", "error", err)
		return "", 0, false
	}

	switch {
	case st.Succeeded():
		o, err := s.rec.Reconcile(ctx, invoiceID, reconcile.SourcePoll)
		if err != nil {
			// The order is still pending; the next tick retries.
			log.Error("reconcile from poll failed", "error", err)
			return "", 0, false
		}

		var orderID int64
		if o != nil {
			orderID = o.ID
		}

		return OutcomeSucceeded, orderID, true

	case st.Canceled():
		log.Info("payment cancelled at gateway")
		return OutcomeCancelled, 0, true

	default:
		log.Debug("payment still pending", "status", string(st.Status))
		return "", 0, false
	}
}

// SupportHint is shown to users whose payment could not be confirmed in time.
func SupportHint(invoiceID string) string {
	return fmt.Sprintf("Payment %s is not confirmed yet. If you were charged, contact support and quote this payment id.", invoiceID)
}

// Result returns the latest known state of the task for invoiceID.
func (s *Scheduler) Result(invoiceID string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.results[invoiceID]

	return res, ok
}

func (s *Scheduler) pruneLocked() {
	cutoff := s.now().Add(-resultRetention)

	for id, res := range s.results {
		if res.Outcome != OutcomeRunning && res.FinishedAt.Before(cutoff) {
			delete(s.results, id)
		}
	}
}

// Shutdown stops accepting tasks, cancels running ones and waits for them.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for poll tasks: %w", ErrClosed, ctx.Err())
	}
}
