// Package config provides configuration types and defaults for testledger.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"testledger/internal/log"
)

// OutcomeConfig defines a single test case verdict.
type OutcomeConfig struct {
	Name    string `mapstructure:"name"`    // Internal identifier, e.g. "successful"
	Caption string `mapstructure:"caption"` // Display label, e.g. "Successful"
	Color   string `mapstructure:"color"`   // "green", "yellow" or "red"
}

// OutcomesConfig holds the verdict set and the default verdict for new
// case-in-plan rows.
type OutcomesConfig struct {
	Default  string          `mapstructure:"default"`
	Statuses []OutcomeConfig `mapstructure:"statuses"`
}

// CustomFieldConfig declares an extra field on one of the tracked realms.
type CustomFieldConfig struct {
	Name    string   `mapstructure:"name"`
	Type    string   `mapstructure:"type"`    // "text" (default), "select", "radio", "checkbox", "textarea"
	Label   string   `mapstructure:"label"`   // Display label, defaults to Name
	Options []string `mapstructure:"options"` // Choices for select/radio fields
	Value   string   `mapstructure:"value"`   // Default value for new objects
}

// Config holds all configuration options for testledger.
type Config struct {
	DatabasePath string                         `mapstructure:"database_path"`
	LogPath      string                         `mapstructure:"log_path"`
	DefaultDays  int                            `mapstructure:"default_days"` // Lookback window for recent-change listings
	SortBy       string                         `mapstructure:"sort_by"`      // "title" (default), "custom" or "modified"
	Outcomes     OutcomesConfig                 `mapstructure:"outcomes"`
	CustomFields map[string][]CustomFieldConfig `mapstructure:"custom_fields"` // Keyed by realm name
}

// FieldTypes lists the accepted custom field type discriminators.
var FieldTypes = []string{"text", "select", "radio", "checkbox", "textarea"}

// DefaultDatabasePath returns the default path for the sqlite database.
// Returns ~/.testledger/testledger.db or empty string if home dir unavailable.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".testledger", "testledger.db")
}

// DefaultOutcomes returns the built-in verdict set: untested, successful
// and failed, with untested as the default for fresh case-in-plan rows.
func DefaultOutcomes() OutcomesConfig {
	return OutcomesConfig{
		Default: "to_be_tested",
		Statuses: []OutcomeConfig{
			{Name: "successful", Caption: "Successful", Color: "green"},
			{Name: "to_be_tested", Caption: "Untested", Color: "yellow"},
			{Name: "failed", Caption: "Failed", Color: "red"},
		},
	}
}

// GetOutcomes returns the configured outcomes, or DefaultOutcomes() if none configured.
func (c Config) GetOutcomes() OutcomesConfig {
	if len(c.Outcomes.Statuses) > 0 {
		return c.Outcomes
	}
	return DefaultOutcomes()
}

// ValidateOutcomes checks outcome configuration for errors.
// Returns nil if outcomes are valid or empty (will use defaults).
func ValidateOutcomes(o OutcomesConfig) error {
	if len(o.Statuses) == 0 {
		return nil // Will use defaults
	}

	seen := make(map[string]bool)
	for i, s := range o.Statuses {
		if s.Name == "" {
			return fmt.Errorf("outcome %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("outcome %d: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true

		switch s.Color {
		case "green", "yellow", "red":
			// Valid
		default:
			return fmt.Errorf("outcome %d (%s): color must be \"green\", \"yellow\" or \"red\", got %q", i, s.Name, s.Color)
		}
	}

	if o.Default != "" && !seen[o.Default] {
		return fmt.Errorf("outcomes.default %q does not name a configured outcome", o.Default)
	}
	return nil
}

// ValidateCustomFields checks custom field declarations for errors.
// Returns nil if the map is empty.
func ValidateCustomFields(fields map[string][]CustomFieldConfig) error {
	for realm, decls := range fields {
		seen := make(map[string]bool)
		for i, f := range decls {
			if f.Name == "" {
				return fmt.Errorf("custom_fields.%s[%d]: name is required", realm, i)
			}
			if seen[f.Name] {
				return fmt.Errorf("custom_fields.%s[%d]: duplicate name %q", realm, i, f.Name)
			}
			seen[f.Name] = true

			switch f.Type {
			case "", "text", "checkbox", "textarea":
				// Valid
			case "select", "radio":
				if len(f.Options) == 0 {
					return fmt.Errorf("custom_fields.%s (%s): options are required for %s fields", realm, f.Name, f.Type)
				}
			default:
				return fmt.Errorf("custom_fields.%s (%s): invalid type %q", realm, f.Name, f.Type)
			}
		}
	}
	return nil
}

// Validate checks the whole configuration for errors.
func (c Config) Validate() error {
	if err := ValidateOutcomes(c.Outcomes); err != nil {
		return err
	}
	if err := ValidateCustomFields(c.CustomFields); err != nil {
		return err
	}
	switch c.SortBy {
	case "", "title", "custom", "modified":
		// Valid
	default:
		return fmt.Errorf("sort_by must be \"title\", \"custom\" or \"modified\", got %q", c.SortBy)
	}
	return nil
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		DatabasePath: DefaultDatabasePath(),
		DefaultDays:  7,
		SortBy:       "title",
		Outcomes:     DefaultOutcomes(),
		CustomFields: map[string][]CustomFieldConfig{},
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Testledger Configuration

# Path to the sqlite database file (default: ~/.testledger/testledger.db)
# database_path: /path/to/testledger.db

# Debug log file (logging is enabled with --debug or TESTLEDGER_DEBUG=1)
# log_path: /tmp/testledger.log

# Lookback window in days for recent-change listings
default_days: 7

# Catalog tree ordering: "title" (default), "custom" (per-catalog exec order)
# or "modified" (most recently changed first)
sort_by: title

# Test case verdicts. Each verdict has an internal name, a display caption
# and a color used for tree aggregation (green, yellow or red).
# "default" names the verdict assigned to freshly planned cases.
outcomes:
  default: to_be_tested
  statuses:
    - name: successful
      caption: Successful
      color: green

    - name: to_be_tested
      caption: Untested
      color: yellow

    - name: failed
      caption: Failed
      color: red

# Extra fields per realm. Realms: testcatalog, testcase, testplan,
# testcaseinplan.
#
# Field options:
#   name: Field identifier (required, letters/digits/underscore, must start with a letter)
#   type: text (default), select, radio, checkbox, textarea
#   label: Display label (defaults to name)
#   options: Choices (required for select and radio)
#   value: Default value for new objects
#
# custom_fields:
#   testcase:
#     - name: component
#       type: select
#       label: Component
#       options: [core, ui, api]
#   testcaseinplan:
#     - name: operator
#       type: text
#       label: Operator
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	// Create parent directory if needed
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write the template
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
