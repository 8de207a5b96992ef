// Package storage persists deferred-call jobs with GORM.
//
// GormStorage implements core.Storage on SQLite and PostgreSQL. On
// PostgreSQL, Dequeue claims rows with FOR UPDATE SKIP LOCKED so many
// workers can share one table. The admin queries (GetQueueStats,
// SearchJobs, RetryJob, PurgeJobs) back the deferredctl commands.
//
//	store, err := storage.Open("sqlite", "file:jobs.db", slog.Default())
//	if err != nil {
//		return err
//	}
//	if err := store.Migrate(ctx); err != nil {
//		return err
//	}
package storage
