package entity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ChangeRecord is one row of an object's change history.
type ChangeRecord struct {
	Time     time.Time
	Author   string
	Field    string
	OldValue string
	NewValue string
}

// ChangeHistory returns the recorded field changes for the entity,
// newest first. Realms without change tracking report no history.
func (g *Engine) ChangeHistory(ctx context.Context, e *Entity) ([]ChangeRecord, error) {
	return g.changeHistoryOn(ctx, g.db.Conn(), e)
}

// ChangeHistoryTx is ChangeHistory within an existing transaction.
func (g *Engine) ChangeHistoryTx(ctx context.Context, txn *Txn, e *Entity) ([]ChangeRecord, error) {
	return g.changeHistoryOn(ctx, txn.Tx, e)
}

func (g *Engine) changeHistoryOn(ctx context.Context, q querier, e *Entity) ([]ChangeRecord, error) {
	realm := e.realm
	if !realm.HasChange {
		return nil, nil
	}
	where, args := keyWhere(e)

	query := fmt.Sprintf(
		"SELECT time, author, field, oldvalue, newvalue FROM %s WHERE %s ORDER BY time DESC, field",
		realm.ChangeTable(), where)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s history: %w", realm.Name, err)
	}
	defer rows.Close()

	var records []ChangeRecord
	for rows.Next() {
		var when int64
		var author, field, oldValue, newValue sql.NullString
		if err := rows.Scan(&when, &author, &field, &oldValue, &newValue); err != nil {
			return nil, fmt.Errorf("reading %s history: %w", realm.Name, err)
		}
		records = append(records, ChangeRecord{
			Time:     time.UnixMicro(when).UTC(),
			Author:   author.String,
			Field:    field.String,
			OldValue: oldValue.String,
			NewValue: newValue.String,
		})
	}
	return records, rows.Err()
}
