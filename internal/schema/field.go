package schema

import "fmt"

// Field describes one column of a realm. Custom fields are always text
// valued and carry the widget metadata from configuration. Protected
// fields, like key fields, are writable only through internal lifecycle
// code, never through the generic setter.
type Field struct {
	Name      string
	Kind      Kind
	Custom    bool
	Protected bool
	Type      string // Widget for custom fields: text, select, radio, checkbox, textarea
	Label     string
	Options   []string
	Default   string
}

// Realm is the field layout of one tracked object type. Standard fields
// live as columns on Table, custom fields as rows in the companion
// _custom table, and changes in the companion _change table. HasCustom
// and HasChange gate whether those companion tables exist for the realm;
// Searchable marks realms exposed to text search surfaces.
type Realm struct {
	Name       string
	Table      string
	Keys       []string
	Standard   []Field
	Custom     []Field
	HasCustom  bool
	HasChange  bool
	Searchable bool
}

// CustomTable returns the name of the companion custom-field table.
func (r *Realm) CustomTable() string { return r.Table + "_custom" }

// ChangeTable returns the name of the companion change table.
func (r *Realm) ChangeTable() string { return r.Table + "_change" }

// Field returns the declaration for name, searching standard fields first.
func (r *Realm) Field(name string) (Field, bool) {
	for _, f := range r.Standard {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range r.Custom {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IsKey reports whether name is one of the realm's key fields.
func (r *Realm) IsKey(name string) bool {
	for _, k := range r.Keys {
		if k == name {
			return true
		}
	}
	return false
}

// NonKeyStandard returns the standard fields that are not keys.
func (r *Realm) NonKeyStandard() []Field {
	out := make([]Field, 0, len(r.Standard))
	for _, f := range r.Standard {
		if !r.IsKey(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// UnknownRealmError reports a lookup for a realm that was never declared.
type UnknownRealmError struct {
	Realm string
}

func (e *UnknownRealmError) Error() string {
	return fmt.Sprintf("unknown realm %q", e.Realm)
}

// UnknownFieldError reports access to a field a realm does not declare.
type UnknownFieldError struct {
	Realm string
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("realm %q has no field %q", e.Realm, e.Field)
}
