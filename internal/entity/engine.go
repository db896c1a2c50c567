package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"testledger/internal/log"
	"testledger/internal/pubsub"
	"testledger/internal/schema"
	"testledger/internal/storage"
)

// Engine persists entities of every declared realm. One engine is shared
// by all realms; hooks registered per realm run inside the operation's
// transaction.
type Engine struct {
	db       *storage.DB
	registry *schema.Registry
	broker   *pubsub.Broker[Notification]

	mu    sync.RWMutex
	hooks map[string]Hooks
}

// NewEngine builds an engine over the given database and schema registry.
func NewEngine(db *storage.DB, registry *schema.Registry) *Engine {
	return &Engine{
		db:       db,
		registry: registry,
		broker:   pubsub.NewBroker[Notification](),
		hooks:    make(map[string]Hooks),
	}
}

// Registry returns the schema registry the engine was built with.
func (g *Engine) Registry() *schema.Registry { return g.registry }

// Broker returns the notification broker. Subscribers receive an event
// for every committed insert, save and delete.
func (g *Engine) Broker() *pubsub.Broker[Notification] { return g.broker }

// Close shuts down the notification broker.
func (g *Engine) Close() { g.broker.Close() }

// RegisterHooks attaches lifecycle hooks to a realm, replacing any
// previous registration.
func (g *Engine) RegisterHooks(realm string, h Hooks) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks[realm] = h
}

func (g *Engine) hooksFor(realm string) Hooks {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if h, ok := g.hooks[realm]; ok {
		return h
	}
	return BaseHooks{}
}

// NewEntity builds a fresh entity of the named realm.
func (g *Engine) NewEntity(realmName string, keys map[string]schema.Value) (*Entity, error) {
	realm, err := g.registry.Lookup(realmName)
	if err != nil {
		return nil, err
	}
	return New(realm, keys)
}

// RunInTx runs fn inside one transaction. Notifications queued on the
// Txn are published only after the commit succeeds.
func (g *Engine) RunInTx(ctx context.Context, fn func(txn *Txn) error) error {
	var txn *Txn
	err := g.db.WithTx(ctx, func(tx *sql.Tx) error {
		txn = newTxn(tx, time.Now().UTC())
		return fn(txn)
	})
	if err != nil {
		return err
	}
	txn.publish(g.broker)
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Load reads the entity's stored state. Returns false without error when
// no row exists for the entity's key.
func (g *Engine) Load(ctx context.Context, e *Entity) (bool, error) {
	return g.loadOn(ctx, g.db.Conn(), e)
}

// LoadTx reads the entity's stored state within an existing transaction.
func (g *Engine) LoadTx(ctx context.Context, txn *Txn, e *Entity) (bool, error) {
	return g.loadOn(ctx, txn.Tx, e)
}

func (g *Engine) loadOn(ctx context.Context, q querier, e *Entity) (bool, error) {
	realm := e.realm

	cols := realm.NonKeyStandard()
	names := make([]string, len(cols))
	for i, f := range cols {
		names[i] = f.Name
	}

	where, args := keyWhere(e)
	dest := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	if len(cols) > 0 {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
			strings.Join(names, ", "), realm.Table, where)
		err := q.QueryRowContext(ctx, query, args...).Scan(ptrs...)
		if errors.Is(err, sql.ErrNoRows) {
			e.exists = false
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("loading %s: %w", realm.Name, err)
		}
	} else {
		var one int
		query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s", realm.Table, where)
		err := q.QueryRowContext(ctx, query, args...).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			e.exists = false
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("loading %s: %w", realm.Name, err)
		}
	}

	for i, f := range cols {
		v, err := schema.ScanValue(f.Kind, dest[i])
		if err != nil {
			return false, fmt.Errorf("loading %s field %s: %w", realm.Name, f.Name, err)
		}
		e.values[f.Name] = v
	}

	// Custom fields: absent rows stay null
	for _, f := range realm.Custom {
		e.values[f.Name] = schema.Null(schema.KindText)
	}
	if len(realm.Custom) > 0 {
		query := fmt.Sprintf("SELECT name, value FROM %s WHERE %s", realm.CustomTable(), where)
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return false, fmt.Errorf("loading %s custom fields: %w", realm.Name, err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			var value sql.NullString
			if err := rows.Scan(&name, &value); err != nil {
				return false, fmt.Errorf("loading %s custom fields: %w", realm.Name, err)
			}
			if _, declared := realm.Field(name); !declared {
				// Row from a field that was removed from configuration
				continue
			}
			v, err := schema.ScanValue(schema.KindText, value)
			if err != nil {
				return false, err
			}
			e.values[name] = v
		}
		if err := rows.Err(); err != nil {
			return false, fmt.Errorf("loading %s custom fields: %w", realm.Name, err)
		}
	}

	e.exists = true
	e.clearPending()
	return true, nil
}

// Insert stores a fresh entity and publishes a created notification.
func (g *Engine) Insert(ctx context.Context, e *Entity) error {
	return g.RunInTx(ctx, func(txn *Txn) error {
		return g.InsertTx(ctx, txn, e)
	})
}

// InsertTx stores a fresh entity within an existing transaction.
func (g *Engine) InsertTx(ctx context.Context, txn *Txn, e *Entity) error {
	realm := e.realm
	if e.exists {
		return &InvalidOperationError{Op: "insert " + realm.Name, Reason: "object already exists"}
	}

	where, args := keyWhere(e)
	var one int
	err := txn.Tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s", realm.Table, where), args...,
	).Scan(&one)
	if err == nil {
		return &AlreadyExistsError{Realm: realm.Name, Keys: e.Keys()}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking %s existence: %w", realm.Name, err)
	}

	if err := g.hooksFor(realm.Name).PreInsert(ctx, txn, e); err != nil {
		return err
	}

	// Unset time fields are stamped with the transaction time.
	for _, f := range realm.Standard {
		if f.Kind == schema.KindTime && !e.values[f.Name].Valid() {
			e.values[f.Name] = schema.Time(txn.Now)
		}
	}

	cols := make([]string, 0, len(realm.Standard))
	marks := make([]string, 0, len(realm.Standard))
	values := make([]any, 0, len(realm.Standard))
	for _, f := range realm.Standard {
		cols = append(cols, f.Name)
		marks = append(marks, "?")
		values = append(values, e.values[f.Name].DBValue())
	}
	_, err = txn.Tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			realm.Table, strings.Join(cols, ", "), strings.Join(marks, ", ")),
		values...,
	)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", realm.Name, err)
	}

	for _, f := range realm.Custom {
		v := e.values[f.Name]
		if !v.Valid() {
			continue
		}
		if err := upsertCustom(ctx, txn.Tx, e, f.Name, v); err != nil {
			return err
		}
	}

	if err := g.hooksFor(realm.Name).PostInsert(ctx, txn, e); err != nil {
		return err
	}

	e.exists = true
	e.clearPending()
	txn.Queue(pubsub.CreatedEvent, realm.Name, e.Keys())
	log.Debug(log.CatEntity, "Inserted object", "realm", realm.Name)
	return nil
}

// SaveChanges writes the pending field changes plus their change records
// and publishes an updated notification. Returns false when there was
// nothing to save and no comment to record.
func (g *Engine) SaveChanges(ctx context.Context, e *Entity, author, comment string) (bool, error) {
	var saved bool
	err := g.RunInTx(ctx, func(txn *Txn) error {
		var err error
		saved, err = g.SaveChangesTx(ctx, txn, e, author, comment)
		return err
	})
	return saved, err
}

// SaveChangesTx writes pending changes within an existing transaction.
func (g *Engine) SaveChangesTx(ctx context.Context, txn *Txn, e *Entity, author, comment string) (bool, error) {
	realm := e.realm
	if !e.exists {
		return false, &NotFoundError{Realm: realm.Name, Keys: e.Keys()}
	}

	changes := e.PendingChanges()
	if len(changes) == 0 && comment == "" {
		return false, nil
	}

	if err := g.hooksFor(realm.Name).PreSave(ctx, txn, e, changes); err != nil {
		return false, err
	}

	where, args := keyWhere(e)

	var standardSet []string
	var standardArgs []any
	for name, ch := range changes {
		f, _ := realm.Field(name)
		if f.Custom {
			if err := upsertCustom(ctx, txn.Tx, e, name, ch.New); err != nil {
				return false, err
			}
			continue
		}
		standardSet = append(standardSet, name+" = ?")
		standardArgs = append(standardArgs, ch.New.DBValue())
	}
	if len(standardSet) > 0 {
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			realm.Table, strings.Join(standardSet, ", "), where)
		if _, err := txn.Tx.ExecContext(ctx, query, append(standardArgs, args...)...); err != nil {
			return false, fmt.Errorf("saving %s: %w", realm.Name, err)
		}
	}

	if realm.HasChange {
		// Microsecond resolution keeps the (key, time, field) change row
		// unique across saves within the same second.
		when := txn.Now.UnixMicro()
		keyCols, keyArgs := keyColumns(e)
		insertChange := fmt.Sprintf(
			"INSERT INTO %s (%s, time, author, field, oldvalue, newvalue) VALUES (%s, ?, ?, ?, ?, ?)",
			realm.ChangeTable(), strings.Join(keyCols, ", "),
			strings.TrimSuffix(strings.Repeat("?, ", len(keyCols)), ", "),
		)
		for name, ch := range changes {
			rowArgs := append(append([]any{}, keyArgs...),
				when, author, name, ch.Old.String(), ch.New.String())
			if _, err := txn.Tx.ExecContext(ctx, insertChange, rowArgs...); err != nil {
				return false, fmt.Errorf("recording %s change: %w", realm.Name, err)
			}
		}
		if comment != "" {
			rowArgs := append(append([]any{}, keyArgs...),
				when, author, "comment", "", comment)
			if _, err := txn.Tx.ExecContext(ctx, insertChange, rowArgs...); err != nil {
				return false, fmt.Errorf("recording %s comment: %w", realm.Name, err)
			}
		}
	}

	if err := g.hooksFor(realm.Name).PostSave(ctx, txn, e, changes); err != nil {
		return false, err
	}

	e.clearPending()
	old := make(map[string]schema.Value, len(changes))
	for name, ch := range changes {
		old[name] = ch.Old
	}
	txn.QueueChange(realm.Name, e.Keys(), author, comment, old)
	log.Debug(log.CatEntity, "Saved object", "realm", realm.Name, "fields", len(changes))
	return true, nil
}

// Delete removes the entity, its custom field rows and its change
// history, and publishes a deleted notification.
func (g *Engine) Delete(ctx context.Context, e *Entity) error {
	return g.RunInTx(ctx, func(txn *Txn) error {
		return g.DeleteTx(ctx, txn, e)
	})
}

// DeleteTx removes the entity within an existing transaction.
func (g *Engine) DeleteTx(ctx context.Context, txn *Txn, e *Entity) error {
	realm := e.realm
	if !e.exists {
		return &NotFoundError{Realm: realm.Name, Keys: e.Keys()}
	}

	if err := g.hooksFor(realm.Name).PreDelete(ctx, txn, e); err != nil {
		return err
	}

	where, args := keyWhere(e)
	var tables []string
	if realm.HasCustom {
		tables = append(tables, realm.CustomTable())
	}
	if realm.HasChange {
		tables = append(tables, realm.ChangeTable())
	}
	tables = append(tables, realm.Table)
	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, where)
		if _, err := txn.Tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}

	if err := g.hooksFor(realm.Name).PostDelete(ctx, txn, e); err != nil {
		return err
	}

	e.exists = false
	e.clearPending()
	txn.Queue(pubsub.DeletedEvent, realm.Name, e.Keys())
	log.Debug(log.CatEntity, "Deleted object", "realm", realm.Name)
	return nil
}

// SaveAs stores a copy of the entity under a new key and returns it. The
// original row is left in place. Pending changes on the source are
// carried into the copy.
func (g *Engine) SaveAs(ctx context.Context, e *Entity, newKeys map[string]schema.Value) (*Entity, error) {
	var copied *Entity
	err := g.RunInTx(ctx, func(txn *Txn) error {
		var err error
		copied, err = g.SaveAsTx(ctx, txn, e, newKeys)
		return err
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

// SaveAsTx stores a copy under a new key within an existing transaction.
func (g *Engine) SaveAsTx(ctx context.Context, txn *Txn, e *Entity, newKeys map[string]schema.Value) (*Entity, error) {
	if !e.exists {
		return nil, &InvalidOperationError{
			Op:     "copy " + e.realm.Name,
			Reason: "source object does not exist",
		}
	}

	copied, err := New(e.realm, newKeys)
	if err != nil {
		return nil, err
	}
	for name, v := range e.values {
		if e.realm.IsKey(name) {
			continue
		}
		copied.values[name] = v
	}

	if err := g.InsertTx(ctx, txn, copied); err != nil {
		return nil, err
	}
	return copied, nil
}

// ListMatching returns the keys of all objects whose stored standard
// fields match the example values. Null example values are ignored, and
// custom fields do not participate. With exactMatch false, text values
// match with LIKE.
func (g *Engine) ListMatching(ctx context.Context, realmName string, example map[string]schema.Value, exactMatch bool) ([]map[string]schema.Value, error) {
	return g.listMatchingOn(ctx, g.db.Conn(), realmName, example, exactMatch)
}

// ListMatchingTx is ListMatching within an existing transaction.
func (g *Engine) ListMatchingTx(ctx context.Context, txn *Txn, realmName string, example map[string]schema.Value, exactMatch bool) ([]map[string]schema.Value, error) {
	return g.listMatchingOn(ctx, txn.Tx, realmName, example, exactMatch)
}

func (g *Engine) listMatchingOn(ctx context.Context, q querier, realmName string, example map[string]schema.Value, exactMatch bool) ([]map[string]schema.Value, error) {
	realm, err := g.registry.Lookup(realmName)
	if err != nil {
		return nil, err
	}

	for name := range example {
		if _, ok := realm.Field(name); !ok {
			return nil, &schema.UnknownFieldError{Realm: realmName, Field: name}
		}
	}

	// Walk the declaration order so the generated SQL is deterministic
	var conds []string
	var args []any
	for _, f := range realm.Standard {
		v, ok := example[f.Name]
		if !ok || !v.Valid() {
			continue
		}
		if !exactMatch && f.Kind == schema.KindText {
			conds = append(conds, f.Name+" LIKE ?")
		} else {
			conds = append(conds, f.Name+" = ?")
		}
		args = append(args, v.DBValue())
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(realm.Keys, ", "), realm.Table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + strings.Join(realm.Keys, ", ")

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", realmName, err)
	}
	defer rows.Close()

	var result []map[string]schema.Value
	for rows.Next() {
		dest := make([]sql.NullString, len(realm.Keys))
		ptrs := make([]any, len(dest))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("listing %s: %w", realmName, err)
		}
		keys := make(map[string]schema.Value, len(realm.Keys))
		for i, name := range realm.Keys {
			f, _ := realm.Field(name)
			v, err := schema.ScanValue(f.Kind, dest[i])
			if err != nil {
				return nil, err
			}
			keys[name] = v
		}
		result = append(result, keys)
	}
	return result, rows.Err()
}

func upsertCustom(ctx context.Context, tx *sql.Tx, e *Entity, field string, v schema.Value) error {
	realm := e.realm
	where, args := keyWhere(e)

	if !v.Valid() {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s AND name = ?", realm.CustomTable(), where)
		if _, err := tx.ExecContext(ctx, query, append(args, field)...); err != nil {
			return fmt.Errorf("clearing %s custom field %s: %w", realm.Name, field, err)
		}
		return nil
	}

	keyCols, keyArgs := keyColumns(e)
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, name, value) VALUES (%s, ?, ?) ON CONFLICT (%s, name) DO UPDATE SET value = excluded.value",
		realm.CustomTable(), strings.Join(keyCols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(keyCols)), ", "),
		strings.Join(keyCols, ", "),
	)
	rowArgs := append(append([]any{}, keyArgs...), field, v.AsText())
	if _, err := tx.ExecContext(ctx, query, rowArgs...); err != nil {
		return fmt.Errorf("saving %s custom field %s: %w", realm.Name, field, err)
	}
	return nil
}

// keyWhere returns the WHERE clause and arguments matching the entity's
// key.
func keyWhere(e *Entity) (string, []any) {
	cols, args := keyColumns(e)
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = c + " = ?"
	}
	return strings.Join(conds, " AND "), args
}

func keyColumns(e *Entity) ([]string, []any) {
	cols := make([]string, len(e.realm.Keys))
	args := make([]any, len(e.realm.Keys))
	for i, name := range e.realm.Keys {
		cols[i] = name
		args[i] = e.values[name].DBValue()
	}
	return cols, args
}
