package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
	"whoop-sync/internal/metrics"
	"whoop-sync/internal/oauth"
	"whoop-sync/internal/reconcile"
	"whoop-sync/internal/whoop"
)

// syncPageSize is how many records of each kind a sync_all job pulls.
// WHOOP serves at most 25 per page.
const syncPageSize = 25

// Worker processes sync jobs from the queue
type Worker struct {
	db           *database.DB
	whoopClient  *whoop.Client
	oauthManager *oauth.Manager
	reconciler   *reconcile.Reconciler
	config       *config.Config
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewWorker creates a new sync job worker
func NewWorker(db *database.DB, whoopClient *whoop.Client, oauthManager *oauth.Manager, reconciler *reconcile.Reconciler, cfg *config.Config) *Worker {
	return &Worker{
		db:           db,
		whoopClient:  whoopClient,
		oauthManager: oauthManager,
		reconciler:   reconciler,
		config:       cfg,
		logger:       slog.Default(),
		pollInterval: 500 * time.Millisecond,
	}
}

// Start begins processing sync jobs from the queue
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync job worker")
	metrics.WorkerActive.Set(1)
	defer metrics.WorkerActive.Set(0)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping worker")
			return ctx.Err()
		default:
			job, err := w.db.ClaimSyncJob()
			if err != nil {
				w.logger.Error("Failed to claim sync job", "error", err)
				time.Sleep(w.pollInterval)
				continue
			}

			if job != nil {
				w.processSyncJob(ctx, job)
				continue
			}

			// Nothing to process
			time.Sleep(w.pollInterval)
		}
	}
}

// processSyncJob handles a single sync job
func (w *Worker) processSyncJob(ctx context.Context, job *database.SyncJob) {
	start := time.Now()
	w.logger.Info("Processing sync job",
		"id", job.ID,
		"athlete_id", job.AthleteID,
		"job_type", job.JobType,
		"trace_id", job.TraceID,
		"retry_count", job.RetryCount)

	var err error
	switch job.JobType {
	case oauth.JobTypeSyncAll:
		err = w.syncAll(ctx, job.AthleteID)
	default:
		w.logger.Warn("Unknown sync job type", "id", job.ID, "job_type", job.JobType)
		// Unknown types are not retryable - complete them
		if err := w.db.DeleteSyncJob(job.ID); err != nil {
			w.logger.Error("Failed to delete unknown sync job", "id", job.ID, "error", err)
		}
		duration := time.Since(start).Seconds()
		metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultSuccess).Observe(duration)
		metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultDropped).Inc()
		return
	}

	if err != nil {
		w.logger.Error("Failed to process sync job", "id", job.ID, "error", err)
		duration := time.Since(start).Seconds()
		metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultFailure).Observe(duration)
		metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultRetry).Inc()
		metrics.QueueRetryTotal.WithLabelValues(metrics.QueueTypeSyncJob, strconv.Itoa(job.RetryCount+1)).Inc()
		w.releaseSyncJob(job.ID, job.RetryCount, err.Error())
		return
	}

	// Success - delete sync job from queue
	if err := w.db.DeleteSyncJob(job.ID); err != nil {
		w.logger.Error("Failed to delete completed sync job", "id", job.ID, "error", err)
	} else {
		duration := time.Since(start).Seconds()
		metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultSuccess).Observe(duration)
		metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultSuccess).Inc()
		metrics.SyncJobsCompletedTotal.WithLabelValues(job.JobType).Inc()
		w.logger.Info("Sync job processed successfully", "id", job.ID)
	}
}

// syncAll pulls the athlete's recent records of every kind and reconciles
// them into the local store
func (w *Worker) syncAll(ctx context.Context, athleteID int64) error {
	athlete, err := w.db.GetAthlete(athleteID)
	if err != nil {
		return fmt.Errorf("failed to look up athlete: %w", err)
	}
	if athlete == nil {
		w.logger.Warn("Sync job for unknown athlete, skipping", "athlete_id", athleteID)
		return nil // Don't retry jobs for deleted athletes
	}

	token, err := w.oauthManager.GetValidToken(ctx, athlete)
	if err != nil {
		var refreshErr *whoop.RefreshError
		if errors.Is(err, oauth.ErrNotConnected) || errors.As(err, &refreshErr) {
			w.logger.Warn("Athlete has no usable credential, skipping sync",
				"athlete_id", athleteID, "error", err)
			return nil // Don't retry athletes that need to reauthorize
		}
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	kinds := []struct {
		name      string
		list      func(context.Context, string, int) ([]json.RawMessage, error)
		reconcile func(*database.Athlete, json.RawMessage) error
	}{
		{"cycles", w.whoopClient.ListCycles, func(a *database.Athlete, raw json.RawMessage) error {
			_, err := w.reconciler.ReconcileCycle(a, raw)
			return err
		}},
		{"sleeps", w.whoopClient.ListSleeps, func(a *database.Athlete, raw json.RawMessage) error {
			_, err := w.reconciler.ReconcileSleep(a, raw)
			return err
		}},
		{"recoveries", w.whoopClient.ListRecoveries, func(a *database.Athlete, raw json.RawMessage) error {
			_, err := w.reconciler.ReconcileRecovery(a, raw)
			return err
		}},
		{"workouts", w.whoopClient.ListWorkouts, func(a *database.Athlete, raw json.RawMessage) error {
			_, err := w.reconciler.ReconcileWorkout(a, raw)
			return err
		}},
	}

	for _, kind := range kinds {
		records, err := kind.list(ctx, token, syncPageSize)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", kind.name, err)
		}

		synced := 0
		for _, raw := range records {
			if err := kind.reconcile(athlete, raw); err != nil {
				var recErr *reconcile.ReconcileError
				if errors.As(err, &recErr) {
					w.logger.Warn("Skipping malformed record during sync",
						"athlete_id", athleteID, "kind", recErr.Kind, "field", recErr.Field)
					metrics.RecordsReconciledTotal.WithLabelValues(string(recErr.Kind), metrics.OutcomeSkipped).Inc()
					continue
				}
				return fmt.Errorf("failed to reconcile %s record: %w", kind.name, err)
			}
			synced++
		}

		w.logger.Info("Synced records",
			"athlete_id", athleteID, "kind", kind.name,
			"fetched", len(records), "synced", synced)

		// Small delay between kinds to be respectful of rate limits
		time.Sleep(100 * time.Millisecond)
	}

	return nil
}

// releaseSyncJob releases a sync job back to the queue with exponential backoff
func (w *Worker) releaseSyncJob(jobID int64, currentRetryCount int, errorMsg string) {
	shouldRetry, err := w.db.ReleaseSyncJob(jobID, currentRetryCount, errorMsg)
	if err != nil {
		w.logger.Error("Failed to release sync job", "id", jobID, "error", err)
		return
	}

	if !shouldRetry {
		w.logger.Warn("Sync job exceeded max retries, dropped",
			"id", jobID,
			"retry_count", currentRetryCount)
	} else {
		w.logger.Info("Sync job released for retry",
			"id", jobID,
			"retry_count", currentRetryCount+1)
	}
}
