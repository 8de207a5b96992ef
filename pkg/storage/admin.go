package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

// QueueStats holds per-status job counts for one queue.
type QueueStats struct {
	Name      string
	Pending   int64
	Running   int64
	Completed int64
	Failed    int64
}

// JobFilter narrows SearchJobs. Zero fields match everything.
type JobFilter struct {
	Status core.JobStatus
	Queue  string
	Type   string
	Search string // substring of the job ID or its payload
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// GetQueueStats returns per-queue job counts grouped by status, sorted by
// queue name.
func (s *GormStorage) GetQueueStats(ctx context.Context) ([]QueueStats, error) {
	type row struct {
		Queue  string
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("queue, status, count(*) as count").
		Group("queue, status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byQueue := make(map[string]*QueueStats)
	for _, r := range rows {
		qs, ok := byQueue[r.Queue]
		if !ok {
			qs = &QueueStats{Name: r.Queue}
			byQueue[r.Queue] = qs
		}
		switch core.JobStatus(r.Status) {
		case core.StatusPending, core.StatusRetrying:
			qs.Pending += r.Count
		case core.StatusRunning:
			qs.Running += r.Count
		case core.StatusCompleted:
			qs.Completed += r.Count
		case core.StatusFailed:
			qs.Failed += r.Count
		}
	}

	result := make([]QueueStats, 0, len(byQueue))
	for _, qs := range byQueue {
		result = append(result, *qs)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// SearchJobs returns one page of jobs matching the filter, newest first,
// together with the total number of matches.
func (s *GormStorage) SearchJobs(ctx context.Context, filter JobFilter) ([]*core.Job, int64, error) {
	q := s.db.WithContext(ctx).Model(&core.Job{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Queue != "" {
		q = q.Where("queue = ?", filter.Queue)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Search != "" {
		search := "%" + filter.Search + "%"
		q = q.Where("id LIKE ? OR CAST(args AS TEXT) LIKE ?", search, search)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var jobs []*core.Job
	err := q.Order("created_at DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// RetryJob puts a failed job back to pending with a fresh attempt count.
func (s *GormStorage) RetryJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("deferred: job %s not found", jobID)
	}
	if err != nil {
		return nil, err
	}

	if job.Status != core.StatusFailed {
		return nil, fmt.Errorf("deferred: cannot retry job with status %q", job.Status)
	}

	err = s.db.WithContext(ctx).Model(&job).Updates(map[string]any{
		"status":       core.StatusPending,
		"attempt":      0,
		"last_error":   "",
		"run_at":       nil,
		"locked_by":    "",
		"locked_until": nil,
		"started_at":   nil,
		"completed_at": nil,
	}).Error
	if err != nil {
		return nil, err
	}

	return s.GetJob(ctx, jobID)
}

// PurgeJobs deletes every job with the given status, optionally limited to
// one queue.
func (s *GormStorage) PurgeJobs(ctx context.Context, queue string, status core.JobStatus) (int64, error) {
	q := s.db.WithContext(ctx).Where("status = ?", status)
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	result := q.Delete(&core.Job{})
	return result.RowsAffected, result.Error
}
