package catalog

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"stratval/domain/core"
	"stratval/domain/strategy"
	"stratval/domain/validation"
	"stratval/internal/errors"
)

// Index is an optional queryable mirror of the workspace. The file
// tree stays the source of truth; the index only serves the status
// command and the status server.
type Index struct {
	db *sqlx.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS strategy_index (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    determination TEXT NOT NULL DEFAULT 'PENDING',
    reason        TEXT NOT NULL DEFAULT '',
    updated_at    TIMESTAMP NOT NULL
)`

// IndexRow is one strategy's entry in the index.
type IndexRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Status        string    `db:"status"`
	Determination string    `db:"determination"`
	Reason        string    `db:"reason"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// OpenIndex connects to the index database. driver is "sqlite" or
// "postgres".
func OpenIndex(driver, dsn string) (*Index, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog index")
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize catalog index schema")
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

// Upsert records the current status and determination of a strategy.
func (i *Index) Upsert(ctx context.Context, cand *strategy.Candidate, outcome validation.Determination, reason string) error {
	row := IndexRow{
		ID:            string(cand.ID),
		Name:          cand.Name,
		Status:        string(cand.Status),
		Determination: string(outcome),
		Reason:        reason,
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := i.db.NamedExecContext(ctx, `
		INSERT INTO strategy_index (id, name, status, determination, reason, updated_at)
		VALUES (:id, :name, :status, :determination, :reason, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			determination = excluded.determination,
			reason = excluded.reason,
			updated_at = excluded.updated_at`, row)
	return errors.Wrap(err, "failed to upsert index row")
}

// Get fetches one strategy's index row.
func (i *Index) Get(ctx context.Context, id core.StrategyID) (*IndexRow, error) {
	var row IndexRow
	err := i.db.GetContext(ctx, &row,
		i.db.Rebind(`SELECT * FROM strategy_index WHERE id = ?`), string(id))
	if err != nil {
		return nil, core.NewNotFoundError("index row", string(id))
	}
	return &row, nil
}

// All returns the whole index ordered by last update.
func (i *Index) All(ctx context.Context) ([]IndexRow, error) {
	var rows []IndexRow
	err := i.db.SelectContext(ctx, &rows,
		`SELECT * FROM strategy_index ORDER BY updated_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query index")
	}
	return rows, nil
}

// CountByStatus returns a status histogram for the status summary.
func (i *Index) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := i.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) AS n FROM strategy_index GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count index")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan index count")
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
