package worker

import (
	"context"
	"errors"

	"catalog-sync-service/internal/broker"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/service"
	"catalog-sync-service/internal/util"

	"go.uber.org/zap"
)

// SyncWorker consumes queued sync requests and runs them through the sync
// runner. Admin tooling uses this path for full-catalog syncs that would
// outlive an HTTP request.
type SyncWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	runner       *service.SyncRunner
	logger       *zap.Logger
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(consumer *broker.Consumer, runner *service.SyncRunner) *SyncWorker {
	w := &SyncWorker{
		consumer: consumer,
		runner:   runner,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnSyncRequested(w.handleSyncRequested)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *SyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SyncWorker) Stop() error {
	w.logger.Info("Stopping sync worker")
	return w.consumer.Close()
}

func (w *SyncWorker) handleSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error {
	w.logger.Info("Processing queued sync request",
		zap.Int64("config_id", event.SyncConfigID),
		zap.String("event_id", event.EventID))

	params := service.SyncRunParams{
		PerPage:      event.PerPage,
		StartPage:    event.StartPage,
		SyncAllPages: event.SyncAllPages,
	}

	result, err := w.runner.Run(ctx, event.SyncConfigID, params)
	if err != nil {
		// a run already in flight or a broken config is not retryable from
		// here; commit the message and let the audit trail tell the story
		if errors.Is(err, service.ErrSyncInProgress) ||
			errors.Is(err, service.ErrConfigNotFound) ||
			errors.Is(err, service.ErrConfigInactive) ||
			errors.Is(err, service.ErrConfigIncomplete) {
			w.logger.Warn("Queued sync request rejected",
				zap.Int64("config_id", event.SyncConfigID), zap.Error(err))
			return nil
		}
		return err
	}

	w.logger.Info("Queued sync request finished",
		zap.Int64("config_id", event.SyncConfigID),
		zap.String("status", result.Status),
		zap.Int("processed", result.ProcessedCount))
	return nil
}
