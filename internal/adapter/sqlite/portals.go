package sqlite

import (
	"database/sql"
	"encoding/json"

	"github.com/elteam/everyload/internal/portals"
)

// PortalRepo persists the portal catalog.
type PortalRepo struct {
	db *sql.DB
}

// NewPortalRepo creates a portal repository on the shared handle.
func NewPortalRepo(d *DB) *PortalRepo {
	return &PortalRepo{db: d.db}
}

// SaveAll replaces the stored catalog in a single transaction.
func (r *PortalRepo) SaveAll(list []portals.Portal) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM portals`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO portals (id, name, domains, example, added_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range list {
		domains, err := json.Marshal(p.Domains)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(p.ID, p.Name, string(domains), p.Example, p.AddedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadAll reads the stored catalog.
func (r *PortalRepo) LoadAll() ([]portals.Portal, error) {
	rows, err := r.db.Query(`SELECT id, name, domains, example, added_at FROM portals ORDER BY added_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []portals.Portal
	for rows.Next() {
		var (
			p       portals.Portal
			domains string
		)
		if err := rows.Scan(&p.ID, &p.Name, &domains, &p.Example, &p.AddedAt); err != nil {
			return nil, err
		}
		if domains != "" {
			if err := json.Unmarshal([]byte(domains), &p.Domains); err != nil {
				return nil, err
			}
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
