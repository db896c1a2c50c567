// Package entity implements the generic persistent object engine shared
// by all tracked realms. An Entity holds typed field values and records
// pending changes; the Engine moves entities in and out of the database,
// drives realm hooks and publishes notifications after commit.
package entity

import (
	"fmt"
	"strings"

	"testledger/internal/schema"
)

// Change is one pending or recorded field transition.
type Change struct {
	Old schema.Value
	New schema.Value
}

// Entity is one persistent object of some realm. The zero value is not
// usable; construct with New.
type Entity struct {
	realm  *schema.Realm
	values map[string]schema.Value
	old    map[string]schema.Value // first old value per pending field
	exists bool
}

// New builds a fresh entity with the given key values. Non-key standard
// fields start out null; custom fields start at their configured
// default.
func New(realm *schema.Realm, keys map[string]schema.Value) (*Entity, error) {
	e := &Entity{
		realm:  realm,
		values: make(map[string]schema.Value, len(realm.Standard)+len(realm.Custom)),
		old:    make(map[string]schema.Value),
	}

	for _, name := range realm.Keys {
		v, ok := keys[name]
		if !ok || !v.Valid() {
			return nil, &InvalidOperationError{
				Op:     "create " + realm.Name,
				Reason: fmt.Sprintf("key field %q is missing", name),
			}
		}
		f, _ := realm.Field(name)
		if v.Kind() != f.Kind {
			return nil, &InvalidOperationError{
				Op:     "create " + realm.Name,
				Reason: fmt.Sprintf("key field %q expects a %s value", name, f.Kind),
			}
		}
		e.values[name] = v
	}
	for name := range keys {
		if !realm.IsKey(name) {
			return nil, &InvalidOperationError{
				Op:     "create " + realm.Name,
				Reason: fmt.Sprintf("field %q is not part of the key", name),
			}
		}
	}

	for _, f := range realm.Standard {
		if realm.IsKey(f.Name) {
			continue
		}
		e.values[f.Name] = schema.Null(f.Kind)
	}
	for _, f := range realm.Custom {
		if f.Default != "" {
			e.values[f.Name] = schema.Text(f.Default)
		} else {
			e.values[f.Name] = schema.Null(schema.KindText)
		}
	}

	return e, nil
}

// Realm returns the entity's field layout.
func (e *Entity) Realm() *schema.Realm { return e.realm }

// Exists reports whether the entity was loaded from or written to the
// database.
func (e *Entity) Exists() bool { return e.exists }

// Keys returns a copy of the entity's key values.
func (e *Entity) Keys() map[string]schema.Value {
	keys := make(map[string]schema.Value, len(e.realm.Keys))
	for _, name := range e.realm.Keys {
		keys[name] = e.values[name]
	}
	return keys
}

// Get returns the current value of the named field.
func (e *Entity) Get(name string) (schema.Value, error) {
	v, ok := e.values[name]
	if !ok {
		return schema.Value{}, &schema.UnknownFieldError{Realm: e.realm.Name, Field: name}
	}
	return v, nil
}

// Set updates a non-key field and tracks the change. Text values are
// trimmed. Setting a field back to its original value drops the pending
// change.
func (e *Entity) Set(name string, v schema.Value) error {
	f, ok := e.realm.Field(name)
	if !ok {
		return &schema.UnknownFieldError{Realm: e.realm.Name, Field: name}
	}
	if e.realm.IsKey(name) || f.Protected {
		return &ProtectedFieldError{Realm: e.realm.Name, Field: name}
	}
	return e.set(f, name, v)
}

// SetLifecycle updates a protected field with the same change tracking
// as Set. Lifecycle code use only: callers own keeping the field's
// invariants (ordering, status history) intact.
func (e *Entity) SetLifecycle(name string, v schema.Value) error {
	f, ok := e.realm.Field(name)
	if !ok {
		return &schema.UnknownFieldError{Realm: e.realm.Name, Field: name}
	}
	if e.realm.IsKey(name) {
		return &ProtectedFieldError{Realm: e.realm.Name, Field: name}
	}
	return e.set(f, name, v)
}

func (e *Entity) set(f schema.Field, name string, v schema.Value) error {
	if v.Valid() && v.Kind() != f.Kind {
		return &InvalidOperationError{
			Op:     "set " + name,
			Reason: fmt.Sprintf("field expects a %s value, got %s", f.Kind, v.Kind()),
		}
	}

	if v.Valid() && f.Kind == schema.KindText {
		v = schema.Text(strings.TrimSpace(v.AsText()))
	}

	current := e.values[name]
	if original, pending := e.old[name]; pending {
		if original.Equal(v) {
			// Back to the stored value, nothing left to save
			delete(e.old, name)
		}
		e.values[name] = v
		return nil
	}

	if current.Equal(v) {
		return nil
	}
	e.old[name] = current
	e.values[name] = v
	return nil
}

// SetInternal updates any field without change tracking or key
// protection. Engine and hook use only.
func (e *Entity) SetInternal(name string, v schema.Value) error {
	if _, ok := e.realm.Field(name); !ok {
		return &schema.UnknownFieldError{Realm: e.realm.Name, Field: name}
	}
	e.values[name] = v
	return nil
}

// IsChanged reports whether any field changes are pending.
func (e *Entity) IsChanged() bool { return len(e.old) > 0 }

// PendingChanges returns the pending field transitions keyed by field
// name.
func (e *Entity) PendingChanges() map[string]Change {
	changes := make(map[string]Change, len(e.old))
	for name, original := range e.old {
		changes[name] = Change{Old: original, New: e.values[name]}
	}
	return changes
}

// DiscardChanges drops all pending field changes, restoring the stored
// values.
func (e *Entity) DiscardChanges() {
	for name, original := range e.old {
		e.values[name] = original
	}
	e.old = make(map[string]schema.Value)
}

func (e *Entity) clearPending() {
	e.old = make(map[string]schema.Value)
}
