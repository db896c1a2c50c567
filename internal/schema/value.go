// Package schema declares the field layout of the tracked realms and the
// typed values that flow through them. A Registry merges the static realm
// declarations with the custom fields read from configuration.
package schema

import (
	"database/sql"
	"fmt"
	"time"
)

// Kind is the storage type of a field.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a nullable typed field value. The zero Value is an invalid
// (null) text value.
type Value struct {
	kind  Kind
	valid bool
	text  string
	num   int64
	ts    time.Time
}

// Text returns a valid text value.
func Text(s string) Value {
	return Value{kind: KindText, valid: true, text: s}
}

// Int returns a valid integer value.
func Int(i int64) Value {
	return Value{kind: KindInt, valid: true, num: i}
}

// Time returns a valid timestamp value, truncated to second precision
// since that is what the change tables store.
func Time(t time.Time) Value {
	return Value{kind: KindTime, valid: true, ts: t.Truncate(time.Second)}
}

// Null returns an invalid value of the given kind.
func Null(kind Kind) Value {
	return Value{kind: kind}
}

// Kind returns the value's storage type.
func (v Value) Kind() Kind { return v.kind }

// Valid reports whether the value is non-null.
func (v Value) Valid() bool { return v.valid }

// AsText returns the text content, or "" for null or non-text values.
func (v Value) AsText() string {
	if !v.valid || v.kind != KindText {
		return ""
	}
	return v.text
}

// AsInt returns the integer content, or 0 for null or non-int values.
func (v Value) AsInt() int64 {
	if !v.valid || v.kind != KindInt {
		return 0
	}
	return v.num
}

// AsTime returns the timestamp content, or the zero time for null or
// non-time values.
func (v Value) AsTime() time.Time {
	if !v.valid || v.kind != KindTime {
		return time.Time{}
	}
	return v.ts
}

// Equal reports value equality. Two nulls of any kind compare equal.
func (v Value) Equal(o Value) bool {
	if !v.valid && !o.valid {
		return true
	}
	if v.valid != o.valid || v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.num == o.num
	case KindTime:
		return v.ts.Equal(o.ts)
	default:
		return v.text == o.text
	}
}

// String renders the value for logs and change records. Null values
// render as the empty string, timestamps as unix seconds.
func (v Value) String() string {
	if !v.valid {
		return ""
	}
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.num)
	case KindTime:
		return fmt.Sprintf("%d", v.ts.Unix())
	default:
		return v.text
	}
}

// DBValue returns the driver representation: nil for null, string for
// text, int64 for ints and unix seconds for timestamps.
func (v Value) DBValue() any {
	if !v.valid {
		return nil
	}
	switch v.kind {
	case KindInt:
		return v.num
	case KindTime:
		return v.ts.Unix()
	default:
		return v.text
	}
}

// ScanValue converts a scanned nullable column into a Value of the given
// kind.
func ScanValue(kind Kind, raw sql.NullString) (Value, error) {
	if !raw.Valid {
		return Null(kind), nil
	}
	switch kind {
	case KindInt:
		var n int64
		if _, err := fmt.Sscanf(raw.String, "%d", &n); err != nil {
			return Value{}, fmt.Errorf("scanning int value %q: %w", raw.String, err)
		}
		return Int(n), nil
	case KindTime:
		var n int64
		if _, err := fmt.Sscanf(raw.String, "%d", &n); err != nil {
			return Value{}, fmt.Errorf("scanning time value %q: %w", raw.String, err)
		}
		return Time(time.Unix(n, 0).UTC()), nil
	default:
		return Text(raw.String), nil
	}
}
