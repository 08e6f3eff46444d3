package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dealmungchi/pricewatcher/internal/orchestrator"
	"github.com/dealmungchi/pricewatcher/logger"
	"github.com/dealmungchi/pricewatcher/services/publisher"
)

// LinkLister lists the links to crawl
type LinkLister interface {
	ListLinkIDs(ctx context.Context) ([]int64, error)
}

// Crawler crawls one link
type Crawler interface {
	Crawl(ctx context.Context, linkID int64) orchestrator.Result
}

// Summary counts the outcome of one run
type Summary struct {
	Links    int
	Notified int
	Degraded int
	Elapsed  time.Duration
}

// Worker crawls every link on a cron schedule with bounded concurrency
type Worker struct {
	ctx         context.Context
	lister      LinkLister
	crawler     Crawler
	publishers  []publisher.Publisher
	concurrency int
	schedule    string
	cron        *cron.Cron
	logger      *logger.Logger
	startOnce   sync.Once
}

// NewWorker creates a new worker. Streams of publishers are trimmed after
// every run.
func NewWorker(
	ctx context.Context,
	lister LinkLister,
	crawler Crawler,
	publishers []publisher.Publisher,
	schedule string,
	concurrency int,
) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	log := logger.ForWorker()
	cl := cronLogger{log: log}
	return &Worker{
		ctx:         ctx,
		lister:      lister,
		crawler:     crawler,
		publishers:  publishers,
		concurrency: concurrency,
		schedule:    schedule,
		cron:        cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:      log,
	}
}

// Start schedules the runs and triggers one immediately
func (w *Worker) Start() error {
	id, err := w.cron.AddFunc(w.schedule, func() {
		if _, err := w.RunOnce(w.ctx); err != nil {
			w.logger.Error().Err(err).Msg("Crawl run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", w.schedule, err)
	}

	w.startOnce.Do(func() {
		// the wrapped job honours the skip-if-running chain
		go w.cron.Entry(id).WrappedJob.Run()
		w.cron.Start()
	})

	w.logger.Info().Str("schedule", w.schedule).Int("concurrency", w.concurrency).Msg("Worker started")
	return nil
}

// Stop stops scheduling and returns a context done when running jobs finish
func (w *Worker) Stop() context.Context {
	return w.cron.Stop()
}

// RunOnce crawls every link once and trims the streams
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	ids, err := w.lister.ListLinkIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("list links: %w", err)
	}
	summary.Links = len(ids)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			result := w.crawler.Crawl(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if result.Decision.Notify {
				summary.Notified++
			}
			if len(result.Failures) > 0 {
				summary.Degraded++
			}
			return nil
		})
	}
	_ = g.Wait()

	// Trim all streams after crawling
	for _, pub := range w.publishers {
		if err := pub.TrimStreams(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Stream trimming failed")
		}
	}

	summary.Elapsed = time.Since(start)
	w.logger.Info().
		Int("links", summary.Links).
		Int("notified", summary.Notified).
		Int("degraded", summary.Degraded).
		Dur("elapsed", summary.Elapsed).
		Msg("Crawl run finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// cronLogger adapts the worker logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
