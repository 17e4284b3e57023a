package sqlite

import (
	"database/sql"
	"encoding/json"

	"github.com/elteam/everyload/internal/domain"
)

// SnapshotRepo persists the full job snapshot. Save replaces the previous
// snapshot in a single transaction, which gives the write-through store the
// atomicity it relies on.
type SnapshotRepo struct {
	db *sql.DB
}

// NewSnapshotRepo creates a snapshot repository on the shared handle.
func NewSnapshotRepo(d *DB) *SnapshotRepo {
	return &SnapshotRepo{db: d.db}
}

// Save writes the given jobs as the new snapshot, in display order.
func (r *SnapshotRepo) Save(jobs []domain.Job) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM jobs`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO jobs
		(id, url, title, status, info, files, local_uri, triggered, generation, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, job := range jobs {
		files, err := json.Marshal(job.Files)
		if err != nil {
			return err
		}
		triggered := 0
		if job.Triggered {
			triggered = 1
		}
		if _, err := stmt.Exec(
			job.ID, job.URL, job.Title, string(job.Status), job.Info,
			string(files), job.LocalURI, triggered, job.Generation, i, job.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load reads the last snapshot in display order.
func (r *SnapshotRepo) Load() ([]domain.Job, error) {
	rows, err := r.db.Query(`SELECT id, url, title, status, info, files, local_uri, triggered, generation, created_at
		FROM jobs ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var (
			job       domain.Job
			status    string
			files     string
			triggered int
		)
		if err := rows.Scan(&job.ID, &job.URL, &job.Title, &status, &job.Info,
			&files, &job.LocalURI, &triggered, &job.Generation, &job.CreatedAt); err != nil {
			return nil, err
		}
		job.Status = domain.Status(status)
		job.Triggered = triggered != 0
		if files != "" && files != "[]" {
			if err := json.Unmarshal([]byte(files), &job.Files); err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
