/*
scheduler.go - Background overdue scanner

PURPOSE:
  Schedules are derived on read, so an installment that slips past its due
  date is only noticed when someone looks at the account. The scanner
  looks at every account on a timer so the overdue feed fires even for
  accounts nobody opens.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each pass lists all accounts and derives each schedule at Clock()
  - Derivation reports Pending -> Overdue transitions to the Service's
    notifier; the notifier's deduper keeps one notification per transition
  - A failing account is logged and skipped, the pass continues

CONFIGURATION:
  - Interval: How often to scan (scheduler.interval, default 1 hour)
  - Enabled:  Whether the scanner runs (scheduler.enabled, default true)

USAGE:
  scanner := NewOverdueScanner(registry, service, logger)
  scanner.Start()
  // ... later
  scanner.Stop()

SEE ALSO:
  - notify/notifier.go: Delivery and de-duplication
  - installment/service.go: GetSchedule
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/solarpay/financing-engine/installment"
	"go.uber.org/zap"
)

// scanTimeout bounds a single pass.
const scanTimeout = 5 * time.Minute

// ScanResult summarizes one pass.
type ScanResult struct {
	Accounts int
	Overdue  int
	Failed   int
}

// OverdueScanner periodically derives every account's schedule.
type OverdueScanner struct {
	Registry *installment.Registry
	Service  *installment.Service
	Interval time.Duration
	Enabled  bool
	Clock    func() time.Time
	Logger   *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueScanner creates an enabled scanner with a one hour interval.
func NewOverdueScanner(registry *installment.Registry, service *installment.Service, logger *zap.Logger) *OverdueScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueScanner{
		Registry: registry,
		Service:  service,
		Interval: time.Hour,
		Enabled:  true,
		Clock:    time.Now,
		Logger:   logger,
	}
}

// Start begins the scanner. Calling Start on a running scanner is a no-op.
func (s *OverdueScanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("overdue scanner disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("overdue scanner started", zap.Duration("interval", s.Interval))
}

// Stop stops the scanner and waits for a pass in progress.
func (s *OverdueScanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("overdue scanner stopped")
}

func (s *OverdueScanner) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.scanOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.scanOnce(ctx)
		case <-stop:
			return
		}
	}
}

func (s *OverdueScanner) scanOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, scanTimeout)
	defer cancel()

	res, err := s.RunNow(ctx)
	if err != nil {
		s.Logger.Error("overdue scan failed", zap.Error(err))
	}
	if res.Overdue > 0 || res.Failed > 0 {
		s.Logger.Info("overdue scan completed",
			zap.Int("accounts", res.Accounts),
			zap.Int("overdue", res.Overdue),
			zap.Int("failed", res.Failed))
	}
}

// RunNow performs one pass synchronously. It returns an error only when the
// account list cannot be read.
func (s *OverdueScanner) RunNow(ctx context.Context) (ScanResult, error) {
	now := s.Clock()

	accounts, err := s.Registry.List(ctx, "")
	if err != nil {
		return ScanResult{}, err
	}

	var res ScanResult
	for _, acct := range accounts {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Accounts++

		schedule, err := s.Service.GetSchedule(ctx, acct.ID, now)
		if err != nil {
			res.Failed++
			s.Logger.Warn("overdue scan skipped account",
				zap.String("account_id", string(acct.ID)),
				zap.Error(err))
			continue
		}
		for _, inst := range schedule {
			if inst.Status == installment.StatusOverdue {
				res.Overdue++
			}
		}
	}
	return res, nil
}
