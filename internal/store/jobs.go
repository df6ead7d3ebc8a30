package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gamehoard/internal/logging"
)

// ErrJobNotFound is returned by job lookups when no row matches.
var ErrJobNotFound = errors.New("job not found")

// CreateJob persists a new pending job row.
func (s *LibraryStore) CreateJob(id, jobType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("INSERT INTO jobs (id, type, status) VALUES (?, ?, ?)", id, jobType, JobPending)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", id, err)
	}
	logging.JobsDebug("Created job %s type=%s", id, jobType)
	return nil
}

// MarkJobRunning flips a job to running.
func (s *LibraryStore) MarkJobRunning(id string) error {
	return s.updateJob(id, "status = ?, updated_at = CURRENT_TIMESTAMP", JobRunning)
}

// UpdateJobProgress updates the progress counters and message.
func (s *LibraryStore) UpdateJobProgress(id string, progress, total int64, message string) error {
	return s.updateJob(id,
		"progress = ?, total = ?, message = ?, updated_at = CURRENT_TIMESTAMP",
		progress, total, message)
}

// CompleteJob marks a job completed with its result summary.
func (s *LibraryStore) CompleteJob(id, result string) error {
	return s.updateJob(id,
		"status = ?, result = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP",
		JobCompleted, result)
}

// FailJob marks a job failed with its error text.
func (s *LibraryStore) FailJob(id, errText string) error {
	return s.updateJob(id,
		"status = ?, error = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP",
		JobFailed, errText)
}

// MarkJobCancelled records a cancellation request. The job body notices
// on its next progress checkpoint.
func (s *LibraryStore) MarkJobCancelled(id string) error {
	return s.updateJob(id, "cancelled = 1, updated_at = CURRENT_TIMESTAMP")
}

// ResetJobPending rewinds an orphaned running job to pending so the
// engine can resume it after a restart.
func (s *LibraryStore) ResetJobPending(id string) error {
	return s.updateJob(id,
		"status = ?, message = ?, updated_at = CURRENT_TIMESTAMP",
		JobPending, "Resuming after restart (cache will skip completed items)...")
}

func (s *LibraryStore) updateJob(id, set string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args = append(args, id)
	res, err := s.db.Exec("UPDATE jobs SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob fetches one job by id.
func (s *LibraryStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, type, status, progress, total, message, result, error, cancelled,
			created_at, updated_at, completed_at
		FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return j, err
}

// ActiveJobs returns pending and running jobs, oldest first.
func (s *LibraryStore) ActiveJobs() ([]*Job, error) {
	return s.listJobs("status IN (?, ?) ORDER BY created_at", JobPending, JobRunning)
}

// RunningJobOfType returns the active job of one type, or nil. Used to
// enforce one-job-per-type.
func (s *LibraryStore) RunningJobOfType(jobType string) (*Job, error) {
	jobs, err := s.listJobs("type = ? AND status IN (?, ?) ORDER BY created_at LIMIT 1",
		jobType, JobPending, JobRunning)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

// RecentJobs returns the newest jobs of any status.
func (s *LibraryStore) RecentJobs(limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listJobs("1=1 ORDER BY created_at DESC LIMIT ?", limit)
}

// OrphanedRunningJobs returns jobs left in running state by a previous
// process. Called once at startup before the engine accepts new work.
func (s *LibraryStore) OrphanedRunningJobs() ([]*Job, error) {
	return s.listJobs("status = ? ORDER BY created_at", JobRunning)
}

func (s *LibraryStore) listJobs(where string, args ...interface{}) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, type, status, progress, total, message, result, error, cancelled,
			created_at, updated_at, completed_at
		FROM jobs WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var message, result, errText sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&j.ID, &j.Type, &j.Status, &j.Progress, &j.Total, &message, &result,
		&errText, &j.Cancelled, &j.CreatedAt, &j.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	j.Message = message.String
	j.Result = result.String
	j.Error = errText.String
	j.CompletedAt = nullTime(completedAt)
	return &j, nil
}

// SweepOldJobs deletes terminal jobs older than the cutoff. Returns the
// number of rows removed.
func (s *LibraryStore) SweepOldJobs(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM jobs WHERE status IN (?, ?) AND completed_at < ?`,
		JobCompleted, JobFailed, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Jobs("Swept %d old job rows", n)
	}
	return n, nil
}
