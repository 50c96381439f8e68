package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

type Refresher interface {
	RefreshAll(ctx context.Context) (*Report, error)
}

type IndexSyncer interface {
	SyncIndices(ctx context.Context) (*SyncReport, error)
}

// Scheduler runs the refresh cycle and the index sync on cron schedules.
// A run still in progress when its next slot fires is skipped.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	syncer    IndexSyncer

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(refresher Refresher, syncer IndexSyncer) *Scheduler {
	logger := slogCronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		refresher: refresher,
		syncer:    syncer,
		ctx:       context.Background(),
	}
}

// Register adds both jobs. An empty spec leaves that job unscheduled.
func (s *Scheduler) Register(refreshSpec, syncSpec string) error {
	if refreshSpec != "" {
		if _, err := s.cron.AddFunc(refreshSpec, s.RunRefresh); err != nil {
			return fmt.Errorf("register refresh job: %w", err)
		}
	}
	if syncSpec != "" {
		if _, err := s.cron.AddFunc(syncSpec, s.RunSync); err != nil {
			return fmt.Errorf("register index sync job: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	slog.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop cancels running jobs at their next checkpoint and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) RunRefresh() {
	ctx := s.runContext()
	report, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Error refreshing series", "error", err)
		return
	}
	slog.InfoContext(ctx, "Series refreshed successfully", "instruments", len(report.Outcomes))
}

func (s *Scheduler) RunSync() {
	ctx := s.runContext()
	report, err := s.syncer.SyncIndices(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Error syncing indices", "error", err)
		return
	}
	slog.InfoContext(ctx, "Indices synced successfully", "indices", report.Indices)
}

type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
