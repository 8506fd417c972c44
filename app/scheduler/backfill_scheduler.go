// Package scheduler runs background jobs for the commission engine
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	businessflow "github.com/amirphl/commission-engine/business_flow"
	"gopkg.in/natefinch/lumberjack.v2"
)

// IncidentRetrier is the part of IncidentFlow the scheduler needs
type IncidentRetrier interface {
	RetryOpen(ctx context.Context, limit int) (*businessflow.RetrySummary, error)
}

// BackfillScheduler periodically retries open distribution incidents
type BackfillScheduler struct {
	retrier   IncidentRetrier
	logger    *log.Logger
	interval  time.Duration
	batchSize int

	logSink io.Closer
	running sync.Mutex
}

// NewBackfillScheduler creates a scheduler. An empty logPath logs to stdout only.
func NewBackfillScheduler(retrier IncidentRetrier, interval time.Duration, batchSize int, logPath string) *BackfillScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	s := &BackfillScheduler{
		retrier:   retrier,
		interval:  interval,
		batchSize: batchSize,
	}
	s.initSchedulerLogger(logPath)
	return s
}

// initSchedulerLogger writes to stdout and a rotating file
func (s *BackfillScheduler) initSchedulerLogger(logPath string) {
	var out io.Writer = os.Stdout
	if logPath != "" {
		sink := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		s.logSink = sink
		out = io.MultiWriter(os.Stdout, sink)
	}
	// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
	s.logger = log.New(out, "backfill ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *BackfillScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	s.logger.Printf("scheduler: started (interval=%s batch=%d)", s.interval, s.batchSize)

	return func() {
		cancel()
		<-done
		if s.logSink != nil {
			_ = s.logSink.Close()
		}
	}
}

// RunOnce performs a single retry pass. Overlapping passes are skipped.
func (s *BackfillScheduler) RunOnce(ctx context.Context) *businessflow.RetrySummary {
	if !s.running.TryLock() {
		s.logger.Printf("scheduler: previous pass still running, skipping")
		return nil
	}
	defer s.running.Unlock()

	summary, err := s.retrier.RetryOpen(ctx, s.batchSize)
	if err != nil {
		s.logger.Printf("scheduler: retry open incidents failed: %v", err)
		return nil
	}
	if summary.Attempted > 0 {
		s.logger.Printf("scheduler: attempted=%d resolved=%d failed=%d abandoned=%d",
			summary.Attempted, summary.Resolved, summary.Failed, summary.Abandoned)
	}
	return summary
}
