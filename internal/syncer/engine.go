package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bschlintz/panopto-index-connector/internal/config"
	"github.com/bschlintz/panopto-index-connector/internal/metrics"
	"github.com/bschlintz/panopto-index-connector/internal/panopto"
	"github.com/bschlintz/panopto-index-connector/internal/state"
	"github.com/bschlintz/panopto-index-connector/internal/target"
)

// PanoptoAPI is the subset of the Panopto client the engine depends on.
type PanoptoAPI interface {
	Updates(ctx context.Context, from time.Time, nextToken string) (*panopto.UpdatesResponse, error)
	Content(ctx context.Context, videoID string) (*panopto.VideoContent, error)
}

// Engine drives the incremental sync loop between Panopto and a target
// index. Each cycle drains the update feed from the last checkpoint,
// pushes or deletes documents through the target handler, and advances
// the checkpoint only after the cycle completes.
type Engine struct {
	api       PanoptoAPI
	handler   target.Handler
	store     state.Store
	logger    *slog.Logger
	collector *metrics.SyncCollector
	polling   config.PollingConfig
	retry     RetryPolicy

	mu      sync.Mutex
	running bool
}

// NewEngine creates a sync engine. The collector may be nil.
func NewEngine(
	api PanoptoAPI,
	handler target.Handler,
	store state.Store,
	logger *slog.Logger,
	collector *metrics.SyncCollector,
	polling config.PollingConfig,
) *Engine {
	return &Engine{
		api:       api,
		handler:   handler,
		store:     store,
		logger:    logger,
		collector: collector,
		polling:   polling,
		retry:     DefaultRetryPolicy(),
	}
}

// Run executes sync cycles until the context is cancelled. After a
// successful cycle it sleeps for the polling frequency; after a failed
// cycle it sleeps for the retry minimum so a broken endpoint is not
// hammered.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("sync engine already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Info("starting sync loop",
		"target", e.handler.Name(),
		"frequency", e.polling.Frequency,
		"retry_minimum", e.polling.RetryMinimum,
	)

	for {
		wait := e.polling.Frequency
		if err := e.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				e.logger.Info("sync loop shutting down")
				return ctx.Err()
			}
			e.logger.Error("sync cycle failed", "error", err)
			wait = e.polling.RetryMinimum
		}

		select {
		case <-ctx.Done():
			e.logger.Info("sync loop shutting down")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RunOnce executes a single sync cycle.
func (e *Engine) RunOnce(ctx context.Context) error {
	start := time.Now()
	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)

	err := e.cycle(ctx, start, logger)
	e.collector.ObserveCycle(time.Since(start), err)
	if err != nil {
		return err
	}

	logger.Info("sync cycle completed", "duration", time.Since(start))
	return nil
}

func (e *Engine) cycle(ctx context.Context, start time.Time, logger *slog.Logger) error {
	checkpoint, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	logger.Info("sync cycle starting", "from", checkpoint)

	// Checkpoint to persist if the cycle aborts partway: advanced past
	// every update already handled so they are not reprocessed.
	newCheckpoint := checkpoint

	var (
		nextToken string
		synced    int
		cycleErr  error
	)

pages:
	for page := 0; page < e.polling.PageLimit; page++ {
		var resp *panopto.UpdatesResponse
		err := Retry(ctx, e.retry, func() error {
			var err error
			resp, err = e.api.Updates(ctx, checkpoint, nextToken)
			e.collector.IncAPIRequest("updates", err)
			if err != nil {
				return classifyAPIError(err)
			}
			return nil
		})
		if err != nil {
			cycleErr = fmt.Errorf("fetch updates: %w", err)
			break
		}

		for _, update := range resp.Updates {
			if err := e.syncVideo(ctx, update, logger); err != nil {
				cycleErr = err
				break pages
			}
			synced++

			if t, err := update.ParsedUpdateTime(); err == nil && t.After(newCheckpoint) {
				newCheckpoint = t
			} else if err != nil {
				logger.Warn("unparseable update time",
					"video_id", update.VideoID,
					"update_time", update.UpdateTime,
				)
			}

			if e.polling.ItemThrottle > 0 {
				select {
				case <-ctx.Done():
					cycleErr = ctx.Err()
					break pages
				case <-time.After(e.polling.ItemThrottle):
				}
			}
		}

		if resp.NextToken == nil || *resp.NextToken == "" {
			// Feed fully drained: anything updated before the cycle
			// started has been seen.
			newCheckpoint = start
			break
		}
		nextToken = *resp.NextToken
	}

	if newCheckpoint.After(checkpoint) {
		if err := e.store.Save(ctx, newCheckpoint); err != nil {
			logger.Error("save checkpoint failed", "checkpoint", newCheckpoint, "error", err)
			if cycleErr == nil {
				cycleErr = fmt.Errorf("save checkpoint: %w", err)
			}
		}
	}

	if cycleErr != nil {
		return cycleErr
	}

	logger.Info("update feed drained", "synced", synced, "checkpoint", newCheckpoint)
	return nil
}

func (e *Engine) syncVideo(ctx context.Context, update panopto.Update, logger *slog.Logger) error {
	var content *panopto.VideoContent
	err := Retry(ctx, e.retry, func() error {
		var err error
		content, err = e.api.Content(ctx, update.VideoID)
		e.collector.IncAPIRequest("content", err)
		if err != nil {
			return classifyAPIError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("fetch content for %s: %w", update.VideoID, err)
	}

	if content.Deleted {
		err := Retry(ctx, e.retry, func() error {
			err := e.handler.Delete(ctx, content.ID)
			if err != nil {
				return classifyAPIError(err)
			}
			return nil
		})
		e.collector.IncDocument("delete", err)
		if err != nil {
			return fmt.Errorf("delete %s: %w", content.ID, err)
		}

		logger.Info("deleted document", "video_id", content.ID)
		return nil
	}

	doc, err := e.handler.Convert(content)
	if err != nil {
		e.collector.IncDocument("push", err)
		return fmt.Errorf("convert %s: %w", update.VideoID, err)
	}

	err = Retry(ctx, e.retry, func() error {
		err := e.handler.Push(ctx, doc)
		if err != nil {
			return classifyAPIError(err)
		}
		return nil
	})
	e.collector.IncDocument("push", err)
	if err != nil {
		return fmt.Errorf("push %s: %w", doc.ID, err)
	}

	logger.Info("pushed document", "video_id", doc.ID)
	return nil
}

// classifyAPIError decides whether an error is worth retrying. Server
// faults, throttling responses, and network errors are transient; other
// client errors are permanent.
func classifyAPIError(err error) error {
	var apiErr *panopto.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return NewRetryableError(err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewRetryableError(err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NewRetryableError(err)
	}

	return err
}
