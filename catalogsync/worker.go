package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/catalogsync_backend/config"
	"github.com/mmdatafocus/catalogsync_backend/metrics"
	"github.com/mmdatafocus/catalogsync_backend/models"
	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/mmdatafocus/catalogsync_backend/unitycatalog"
	"github.com/mmdatafocus/catalogsync_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrInvalidPayload = errors.New("invalid sync payload")
	ErrNotConnected   = errors.New("unity catalog is not connected")
	ErrRunInProgress  = errors.New("another sync run holds the connection lock")
)

const (
	statusCacheTTL     = 24 * time.Hour
	maxErrorMessageLen = 2000
)

// RunOptions control one reconciliation. Nil catalogs are built from the
// connection's endpoint and token; an empty Policy falls back to the connection's.
type RunOptions struct {
	DryRun   bool
	Policy   string
	Settings SyncSettings
	Schemas  reconcile.ExternalCatalog
	Volumes  reconcile.ExternalCatalog
	Logger   *logrus.Logger
}

// Reconcile runs the schemas of conn's catalog, and their volumes, against the
// local repository.
func Reconcile(ctx context.Context, db *gorm.DB, conn *models.CatalogConnection, opts RunOptions) (*reconcile.Report, error) {
	policyName := opts.Policy
	if policyName == "" {
		policyName = conn.Policy
	}
	policy, err := reconcile.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}

	if opts.Schemas == nil {
		client, err := unitycatalog.NewClient(conn.ServerEndpoint, conn.AuthToken,
			unitycatalog.WithRateLimit(config.UnityCatalogRatePerSecond()),
			unitycatalog.WithPageSize(opts.Settings.PageSize),
		)
		if err != nil {
			return nil, err
		}
		opts.Schemas = unitycatalog.NewSchemaCatalog(client)
		opts.Volumes = unitycatalog.NewVolumeCatalog(client)
	}

	catalogGUID, err := EnsureCatalogEntity(ctx, db, conn)
	if err != nil {
		return nil, fmt.Errorf("catalog entity: %w", err)
	}

	pageSize := opts.Settings.PageSize
	if pageSize <= 0 {
		pageSize = config.SyncPageSize()
	}
	settings := opts.Settings
	settings.PageSize = pageSize

	target := BuildTarget(TargetSpec{
		Endpoint:    conn.ServerEndpoint,
		CatalogName: conn.CatalogName,
		CatalogGUID: catalogGUID,
		Settings:    settings,
		Schemas:     opts.Schemas,
		Volumes:     opts.Volumes,
	})
	driver := reconcile.Driver{
		Local:    NewStore(db, conn.ID),
		Policy:   policy,
		Logger:   opts.Logger,
		Observer: metrics.Recorder{},
		DryRun:   opts.DryRun,
	}
	return driver.Run(ctx, target)
}

// EnsureCatalogEntity returns the local entity anchoring conn's catalog, creating
// it on first use. The anchor is bookkeeping and is created on dry runs too.
func EnsureCatalogEntity(ctx context.Context, db *gorm.DB, conn *models.CatalogConnection) (string, error) {
	if conn.CatalogGUID != "" {
		entity, err := models.GetCatalogEntity(ctx, db, conn.CatalogGUID)
		if err == nil {
			return entity.GUID, nil
		}
		if !errors.Is(err, models.ErrEntityNotFound) {
			return "", err
		}
	}

	qualifiedName := reconcile.QualifiedName(CatalogQualifiedNamePrefix, conn.ServerEndpoint, conn.CatalogName)
	entity, err := models.FindCatalogEntityByQualifiedName(ctx, db, models.EntityTypeCatalog, qualifiedName)
	if err != nil {
		return "", err
	}
	if entity == nil {
		entity, err = models.CreateCatalogEntity(ctx, db, &models.NewCatalogEntity{
			TypeName:           models.EntityTypeCatalog,
			QualifiedName:      qualifiedName,
			Name:               conn.CatalogName,
			FullName:           conn.CatalogName,
			ImplementationType: "Unity Catalog Catalog",
		})
		if err != nil {
			return "", err
		}
	}

	if conn.ID != 0 && conn.CatalogGUID != entity.GUID {
		if err := db.WithContext(ctx).Model(&models.CatalogConnection{}).
			Where("id = ?", conn.ID).
			Update("catalog_guid", entity.GUID).Error; err != nil {
			return "", err
		}
	}
	conn.CatalogGUID = entity.GUID
	return entity.GUID, nil
}

// ProcessSyncRun executes a queued run. Runs that already finished are skipped so
// a redelivered message does nothing.
func ProcessSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 || payload.ConnectionId == 0 {
		return ErrInvalidPayload
	}
	if config.GetDB() == nil {
		return errors.New("db is nil")
	}

	ctx = utils.SetConnectionIdInContext(ctx, payload.ConnectionId)
	ctx = utils.SetRunIdInContext(ctx, payload.RunId)
	db := config.GetDB().WithContext(ctx)
	logger := config.GetLogger()

	var run models.SyncRun
	if err := db.Where("id = ? AND connection_id = ?", payload.RunId, payload.ConnectionId).Take(&run).Error; err != nil {
		return err
	}
	if isTerminalStatus(run.Status) {
		return nil
	}

	var conn models.CatalogConnection
	if err := db.Where("id = ?", run.ConnectionId).Take(&conn).Error; err != nil {
		return err
	}
	if conn.Status != models.IntegrationStatusConnected {
		_ = failRun(ctx, db, &run, "not_connected", ErrNotConnected, false)
		return ErrNotConnected
	}

	locked := false
	err := WithConnectionLock(ctx, conn.ID, func(ctx context.Context) error {
		locked = true
		now := time.Now()
		startedAt := run.StartedAt
		if startedAt == nil {
			startedAt = &now
		}
		if err := db.Model(&run).Updates(map[string]interface{}{
			"status":     models.SyncRunStatusRunning,
			"started_at": startedAt,
		}).Error; err != nil {
			return err
		}
		run.StartedAt = startedAt

		report, runErr := Reconcile(ctx, db, &conn, RunOptions{
			DryRun:   run.DryRun,
			Policy:   run.Policy,
			Settings: DecodeSettings(run.SettingsJSON),
			Logger:   logger,
		})
		if runErr != nil {
			config.LogError(logger, "CatalogSync", "ProcessSyncRun", "reconcile", payload, runErr)
		}
		return finishRun(ctx, db, &run, &conn, report, runErr)
	})
	if !locked && errors.Is(err, ErrRunInProgress) {
		_ = failRun(ctx, db, &run, "run_in_progress", ErrRunInProgress, true)
	}
	return err
}

// WithConnectionLock runs fn while holding the connection's Redis lock, so one
// connection never has two reconcilers. Without Redis fn runs unlocked. When
// the lock is held elsewhere fn is not called and ErrRunInProgress is returned.
func WithConnectionLock(ctx context.Context, connectionId uint, fn func(context.Context) error) error {
	locker := config.GetRedisLock()
	if locker == nil {
		return fn(ctx)
	}
	lock, err := locker.Obtain(ctx, ConnectionLockKey(connectionId), config.SyncLockTTL(), nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.GetLogger().WithFields(lockHolder(ctx, connectionId)).Warn("connection lock held by another run")
		return ErrRunInProgress
	}
	if err != nil {
		return fmt.Errorf("obtain connection lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(config.GetLogger(), "CatalogSync", "WithConnectionLock", "release lock", lockHolder(ctx, connectionId), err)
		}
	}()
	return fn(ctx)
}

func finishRun(ctx context.Context, db *gorm.DB, run *models.SyncRun, conn *models.CatalogConnection, report *reconcile.Report, runErr error) error {
	logger := config.GetLogger()
	finishedAt := time.Now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}

	status := runStatus(report, runErr)
	items := runItemsFromReport(run.ID, run.ConnectionId, report)
	syncErrors := syncErrorsFromRun(run.ID, run.ConnectionId, runErr)
	counts := countsFromReport(report)
	statsJSON, _ := json.Marshal(counts)

	updates := map[string]interface{}{
		"status":      status,
		"finished_at": finishedAt,
		"duration_ms": durationMs,
		"stats_json":  statsJSON,
		"error_count": len(syncErrors),
	}
	if report != nil {
		updates["action_count"] = report.Changes()
		updates["mismatch_count"] = report.Mismatches
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if len(items) > 0 {
			if err := tx.CreateInBatches(items, 100).Error; err != nil {
				return err
			}
		}
		if len(syncErrors) > 0 {
			if err := tx.CreateInBatches(syncErrors, 100).Error; err != nil {
				return err
			}
		}
		return tx.Model(run).Updates(updates).Error
	})
	if err != nil {
		return err
	}

	connUpdates := map[string]interface{}{
		"last_sync_at": finishedAt,
	}
	if status == models.SyncRunStatusSuccess && !run.DryRun {
		connUpdates["last_success_sync_at"] = finishedAt
	}
	if err := db.Model(&models.CatalogConnection{}).Where("id = ?", conn.ID).Updates(connUpdates).Error; err != nil {
		return err
	}

	summary := RunSummary{
		RunId:      run.ID,
		Status:     status,
		DryRun:     run.DryRun,
		FinishedAt: formatTime(&finishedAt),
		Counts:     counts,
		ErrorCount: len(syncErrors),
	}
	if report != nil {
		summary.MismatchCount = report.Mismatches
	}
	if err := config.SetRedisObject(StatusCacheKey(conn.ID), summary, statusCacheTTL); err != nil {
		config.LogError(logger, "CatalogSync", "finishRun", "cache status", conn.ID, err)
	}

	if report != nil {
		if object, err := archiveReport(ctx, conn.ID, run.ID, report); err != nil {
			config.LogError(logger, "CatalogSync", "finishRun", "archive report", object, err)
		} else if object != "" {
			if err := db.Model(run).Update("report_object", object).Error; err != nil {
				return err
			}
		}
	}

	metrics.RecordSyncRun(status)
	logger.WithFields(logrus.Fields{
		"run_id":        run.ID,
		"connection_id": conn.ID,
		"status":        status,
		"errors":        len(syncErrors),
		"duration_ms":   durationMs,
	}).Info("catalog sync run finished")
	return nil
}

// failRun finishes a run that never reached the reconciliation.
func failRun(ctx context.Context, db *gorm.DB, run *models.SyncRun, code string, cause error, retryable bool) error {
	now := time.Now()
	return db.Transaction(func(tx *gorm.DB) error {
		syncErr := models.SyncError{
			SyncRunId:    run.ID,
			ConnectionId: run.ConnectionId,
			ErrorCode:    code,
			Message:      cause.Error(),
			Retryable:    retryable,
		}
		if err := tx.Create(&syncErr).Error; err != nil {
			return err
		}
		return tx.Model(run).Updates(map[string]interface{}{
			"status":      models.SyncRunStatusFailed,
			"finished_at": now,
			"error_count": 1,
		}).Error
	})
}

func archiveReport(ctx context.Context, connectionId uint, runId uint, report *reconcile.Report) (string, error) {
	bucket := config.SyncReportBucket()
	if bucket == "" {
		return "", nil
	}
	object := ReportObjectName(connectionId, runId)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return object, err
	}
	if err := utils.SaveJSONToGCS(ctx, bucket, object, data); err != nil {
		return object, err
	}
	return object, nil
}

// runStatus is success without errors, partial when some resources were still
// reconciled and failed otherwise.
func runStatus(report *reconcile.Report, runErr error) string {
	if runErr == nil && report != nil {
		return models.SyncRunStatusSuccess
	}
	if report != nil && len(report.Items) > report.Failures {
		return models.SyncRunStatusPartial
	}
	return models.SyncRunStatusFailed
}

func isTerminalStatus(status string) bool {
	return status == models.SyncRunStatusSuccess ||
		status == models.SyncRunStatusFailed ||
		status == models.SyncRunStatusPartial
}

func countsFromReport(report *reconcile.Report) map[string]int {
	counts := map[string]int{}
	if report == nil {
		return counts
	}
	for action, n := range report.Counts {
		counts[string(action)] = n
	}
	return counts
}

func runItemsFromReport(runId uint, connectionId uint, report *reconcile.Report) []models.SyncRunItem {
	if report == nil {
		return nil
	}
	items := make([]models.SyncRunItem, 0, len(report.Items))
	for _, item := range report.Items {
		items = append(items, models.SyncRunItem{
			SyncRunId:     runId,
			ConnectionId:  connectionId,
			Kind:          item.Kind,
			FullName:      item.FullName,
			QualifiedName: item.QualifiedName,
			EntityGUID:    item.GUID,
			Action:        string(item.Action),
			Reason:        item.Reason,
			Mismatch:      item.Mismatch,
			Error:         truncate(item.Error, maxErrorMessageLen),
		})
	}
	return items
}

// syncErrorsFromRun turns each joined target failure into one row.
func syncErrorsFromRun(runId uint, connectionId uint, runErr error) []models.SyncError {
	if runErr == nil {
		return nil
	}
	errs := []error{runErr}
	if joined, ok := runErr.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	out := make([]models.SyncError, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		rec := models.SyncError{
			SyncRunId:    runId,
			ConnectionId: connectionId,
			ErrorCode:    errorCode(err),
			Message:      truncate(err.Error(), maxErrorMessageLen),
			Retryable:    isRetryable(err),
		}
		var actionErr *reconcile.ActionError
		if errors.As(err, &actionErr) {
			rec.Kind = actionErr.Kind
			rec.FullName = actionErr.FullName
			rec.Action = string(actionErr.Action)
		}
		out = append(out, rec)
	}
	return out
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, reconcile.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, reconcile.ErrParentNotResolved):
		return "parent_not_resolved"
	case errors.Is(err, reconcile.ErrDuplicateEntity):
		return "duplicate_entity"
	case errors.Is(err, reconcile.ErrResourceNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "sync_failed"
	}
}

func isRetryable(err error) bool {
	return !errors.Is(err, reconcile.ErrInvalidParameter) && !errors.Is(err, reconcile.ErrDuplicateEntity)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// lockHolder describes who held a connection lock for log entries.
func lockHolder(ctx context.Context, connectionId uint) logrus.Fields {
	fields := logrus.Fields{"connection_id": connectionId}
	if runId, ok := utils.GetRunIdFromContext(ctx); ok {
		fields["run_id"] = runId
	}
	return fields
}
