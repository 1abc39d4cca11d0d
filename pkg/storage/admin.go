package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/MapColonies/jobnik/pkg/core"
)

// ListJobs returns jobs matching the filter with pagination and total count.
func (s *GormStorage) ListJobs(ctx context.Context, filter core.JobFilter) ([]*core.Job, int64, error) {
	q := s.db.WithContext(ctx).Model(&core.Job{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}
	if filter.Name != "" {
		q = q.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
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
		return nil, 0, translateError(err)
	}

	return jobs, total, nil
}

// DeleteJob permanently removes a job together with its stages and tasks.
func (s *GormStorage) DeleteJob(ctx context.Context, jobID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", jobID).Delete(&core.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("job_id = ?", jobID).Delete(&core.Stage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", jobID).Delete(&core.Job{}).Error
	})
	return translateError(err)
}

// PurgeJobs deletes jobs in the given statuses last updated before olderThan,
// cascading to their stages and tasks. Returns the number of jobs removed.
func (s *GormStorage) PurgeJobs(ctx context.Context, statuses []core.JobStatus, olderThan time.Time) (int64, error) {
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := func() *gorm.DB {
			return tx.Model(&core.Job{}).
				Select("id").
				Where("status IN ? AND updated_at < ?", statuses, olderThan)
		}
		if err := tx.Where("job_id IN (?)", expired()).Delete(&core.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("job_id IN (?)", expired()).Delete(&core.Stage{}).Error; err != nil {
			return err
		}
		result := tx.Where("status IN ? AND updated_at < ?", statuses, olderThan).Delete(&core.Job{})
		purged = result.RowsAffected
		return result.Error
	})
	return purged, translateError(err)
}
