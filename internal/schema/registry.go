package schema

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"testledger/internal/config"
	"testledger/internal/log"
)

// Custom field names follow the same rule Trac applies to ticket fields:
// a letter followed by at least one letter, digit or underscore.
var fieldNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]+$`)

// Registry holds the realm declarations merged with the custom fields
// from configuration. Lookups are safe for concurrent use; Refresh
// swaps in a new custom-field set atomically.
type Registry struct {
	mu     sync.RWMutex
	decls  map[string]Realm
	merged map[string]*Realm
}

// NewRegistry builds a registry from the static realm declarations and
// the configured custom fields.
func NewRegistry(decls []Realm, custom map[string][]config.CustomFieldConfig) (*Registry, error) {
	reg := &Registry{
		decls: make(map[string]Realm, len(decls)),
	}
	for _, d := range decls {
		reg.decls[d.Name] = d
	}
	if err := reg.Refresh(custom); err != nil {
		return nil, err
	}
	return reg, nil
}

// Lookup returns the merged realm declaration for name.
func (reg *Registry) Lookup(name string) (*Realm, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	realm, ok := reg.merged[name]
	if !ok {
		return nil, &UnknownRealmError{Realm: name}
	}
	return realm, nil
}

// Realms returns the declared realm names, sorted.
func (reg *Registry) Realms() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	names := make([]string, 0, len(reg.decls))
	for name := range reg.decls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refresh rebuilds the merged realms from a new custom-field set.
// Objects loaded before the refresh keep the fields they were read
// with; a realm referenced in custom that was never declared is an
// error.
func (reg *Registry) Refresh(custom map[string][]config.CustomFieldConfig) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for realmName := range custom {
		decl, ok := reg.decls[realmName]
		if !ok {
			return &UnknownRealmError{Realm: realmName}
		}
		if !decl.HasCustom && len(custom[realmName]) > 0 {
			return fmt.Errorf("realm %s does not support custom fields", realmName)
		}
	}

	merged := make(map[string]*Realm, len(reg.decls))
	for name, decl := range reg.decls {
		fields, err := buildCustomFields(&decl, custom[name])
		if err != nil {
			return err
		}
		realm := decl
		realm.Custom = fields
		merged[name] = &realm
	}

	reg.merged = merged
	log.Debug(log.CatSchema, "Schema refreshed", "realms", len(merged))
	return nil
}

func buildCustomFields(decl *Realm, configs []config.CustomFieldConfig) ([]Field, error) {
	fields := make([]Field, 0, len(configs))
	for _, c := range configs {
		if !fieldNameRe.MatchString(c.Name) {
			return nil, fmt.Errorf("custom field name %q for realm %s is not valid", c.Name, decl.Name)
		}
		if _, exists := decl.Field(c.Name); exists {
			return nil, fmt.Errorf("custom field %q collides with a standard field of realm %s", c.Name, decl.Name)
		}

		fieldType := c.Type
		if fieldType == "" {
			fieldType = "text"
		}
		label := c.Label
		if label == "" {
			label = c.Name
		}

		fields = append(fields, Field{
			Name:    c.Name,
			Kind:    KindText,
			Custom:  true,
			Type:    fieldType,
			Label:   label,
			Options: c.Options,
			Default: c.Value,
		})
	}
	return fields, nil
}
