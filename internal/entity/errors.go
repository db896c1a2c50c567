package entity

import (
	"fmt"
	"sort"
	"strings"

	"testledger/internal/schema"
)

// AlreadyExistsError reports an insert for a key that is already stored.
type AlreadyExistsError struct {
	Realm string
	Keys  map[string]schema.Value
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Realm, formatKeys(e.Keys))
}

// NotFoundError reports an operation on an object that is not stored.
type NotFoundError struct {
	Realm string
	Keys  map[string]schema.Value
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Realm, formatKeys(e.Keys))
}

// ProtectedFieldError reports a write to a key or protected field
// through the generic setter.
type ProtectedFieldError struct {
	Realm string
	Field string
}

func (e *ProtectedFieldError) Error() string {
	return fmt.Sprintf("field %q of realm %s is protected and cannot be set", e.Field, e.Realm)
}

// InvalidOperationError reports an operation the object's state does not
// allow.
type InvalidOperationError struct {
	Op     string
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
}

func formatKeys(keys map[string]schema.Value) string {
	parts := make([]string, 0, len(keys))
	for name, v := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", name, v.String()))
	}
	// Stable order for error messages
	sort.Strings(parts)
	return "[" + strings.Join(parts, " ") + "]"
}
