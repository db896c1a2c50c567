package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Property names for the id counters.
const (
	PropNextCatalogID = "NEXT_CATALOG_ID"
	PropNextCaseID    = "NEXT_TESTCASE_ID"
	PropNextPlanID    = "NEXT_PLAN_ID"
)

// Property returns the value stored under name in the testconfig table.
// The second return is false when the property is not set.
func (d *DB) Property(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := d.conn.QueryRowContext(ctx,
		"SELECT value FROM testconfig WHERE propname = ?", name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading property %s: %w", name, err)
	}
	return value, true, nil
}

// SetProperty stores value under name in the testconfig table.
func (d *DB) SetProperty(ctx context.Context, name, value string) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO testconfig (propname, value) VALUES (?, ?)
		 ON CONFLICT (propname) DO UPDATE SET value = excluded.value`,
		name, value,
	)
	if err != nil {
		return fmt.Errorf("setting property %s: %w", name, err)
	}
	return nil
}

// NextID returns the current counter value stored under name and advances
// the counter by one. Missing counters start at zero. Runs on the given
// transaction so concurrent callers cannot hand out the same id.
func NextID(tx *sql.Tx, name string) (int, error) {
	var value string
	err := tx.QueryRow(
		"SELECT value FROM testconfig WHERE propname = ?", name,
	).Scan(&value)

	current := 0
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First allocation for this counter
	case err != nil:
		return 0, fmt.Errorf("reading counter %s: %w", name, err)
	default:
		current, err = strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("counter %s holds %q: %w", name, value, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO testconfig (propname, value) VALUES (?, ?)
		 ON CONFLICT (propname) DO UPDATE SET value = excluded.value`,
		name, strconv.Itoa(current+1),
	)
	if err != nil {
		return 0, fmt.Errorf("advancing counter %s: %w", name, err)
	}
	return current, nil
}
