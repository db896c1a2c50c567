package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutcomes_Empty(t *testing.T) {
	err := ValidateOutcomes(OutcomesConfig{})
	require.NoError(t, err, "empty outcomes should be valid (uses defaults)")
}

func TestValidateOutcomes_Valid(t *testing.T) {
	o := OutcomesConfig{
		Default: "pending",
		Statuses: []OutcomeConfig{
			{Name: "passed", Caption: "Passed", Color: "green"},
			{Name: "pending", Caption: "Pending", Color: "yellow"},
			{Name: "broken", Caption: "Broken", Color: "red"},
		},
	}
	err := ValidateOutcomes(o)
	require.NoError(t, err)
}

func TestValidateOutcomes_MissingName(t *testing.T) {
	o := OutcomesConfig{
		Statuses: []OutcomeConfig{{Name: "", Color: "green"}},
	}
	err := ValidateOutcomes(o)
	require.Error(t, err)
	require.Contains(t, err.Error(), "name is required")
}

func TestValidateOutcomes_BadColor(t *testing.T) {
	o := OutcomesConfig{
		Statuses: []OutcomeConfig{{Name: "passed", Color: "blue"}},
	}
	err := ValidateOutcomes(o)
	require.Error(t, err)
	require.Contains(t, err.Error(), "color must be")
}

func TestValidateOutcomes_DuplicateName(t *testing.T) {
	o := OutcomesConfig{
		Statuses: []OutcomeConfig{
			{Name: "passed", Color: "green"},
			{Name: "passed", Color: "red"},
		},
	}
	err := ValidateOutcomes(o)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate name")
}

func TestValidateOutcomes_UnknownDefault(t *testing.T) {
	o := OutcomesConfig{
		Default:  "missing",
		Statuses: []OutcomeConfig{{Name: "passed", Color: "green"}},
	}
	err := ValidateOutcomes(o)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not name a configured outcome")
}

func TestValidateCustomFields_Valid(t *testing.T) {
	fields := map[string][]CustomFieldConfig{
		"testcase": {
			{Name: "component", Type: "select", Options: []string{"core", "ui"}},
			{Name: "notes", Type: "textarea"},
			{Name: "automated"},
		},
	}
	err := ValidateCustomFields(fields)
	require.NoError(t, err)
}

func TestValidateCustomFields_SelectWithoutOptions(t *testing.T) {
	fields := map[string][]CustomFieldConfig{
		"testcase": {{Name: "component", Type: "select"}},
	}
	err := ValidateCustomFields(fields)
	require.Error(t, err)
	require.Contains(t, err.Error(), "options are required")
}

func TestValidateCustomFields_BadType(t *testing.T) {
	fields := map[string][]CustomFieldConfig{
		"testplan": {{Name: "owner", Type: "date"}},
	}
	err := ValidateCustomFields(fields)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid type")
}

func TestDefaultOutcomes(t *testing.T) {
	o := DefaultOutcomes()
	require.Equal(t, "to_be_tested", o.Default)
	require.Len(t, o.Statuses, 3)

	require.Equal(t, "successful", o.Statuses[0].Name)
	require.Equal(t, "green", o.Statuses[0].Color)

	require.Equal(t, "to_be_tested", o.Statuses[1].Name)
	require.Equal(t, "yellow", o.Statuses[1].Color)

	require.Equal(t, "failed", o.Statuses[2].Name)
	require.Equal(t, "red", o.Statuses[2].Color)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, 7, cfg.DefaultDays)
	require.Equal(t, "title", cfg.SortBy)
	require.Len(t, cfg.Outcomes.Statuses, 3)
	require.NoError(t, cfg.Validate())
}

func TestConfig_GetOutcomes_Empty(t *testing.T) {
	cfg := Config{} // No outcomes
	o := cfg.GetOutcomes()
	// Should return defaults
	require.Len(t, o.Statuses, 3)
	require.Equal(t, "to_be_tested", o.Default)
}

func TestConfig_Validate_BadSortBy(t *testing.T) {
	cfg := Defaults()
	cfg.SortBy = "priority"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "sort_by")
}

func loadConfig(t *testing.T, path string) Config {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "testledger.yaml")

	err := WriteDefaultConfig(path)
	require.NoError(t, err)

	cfg := loadConfig(t, path)
	assert.Equal(t, 7, cfg.DefaultDays)
	assert.Equal(t, "title", cfg.SortBy)
	assert.Equal(t, "to_be_tested", cfg.Outcomes.Default)
	assert.Len(t, cfg.Outcomes.Statuses, 3)
	require.NoError(t, cfg.Validate())
}

func TestSaveOutcomes_PreservesOtherConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testledger.yaml")

	initial := "# keep me\nsort_by: custom\ndefault_days: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	o := OutcomesConfig{
		Default:  "passed",
		Statuses: []OutcomeConfig{{Name: "passed", Caption: "Passed", Color: "green"}},
	}
	require.NoError(t, SaveOutcomes(path, o))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# keep me")

	cfg := loadConfig(t, path)
	assert.Equal(t, "custom", cfg.SortBy)
	assert.Equal(t, 3, cfg.DefaultDays)
	assert.Equal(t, "passed", cfg.Outcomes.Default)
	assert.Len(t, cfg.Outcomes.Statuses, 1)
}

func TestSaveCustomFields_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testledger.yaml")

	fields := map[string][]CustomFieldConfig{
		"testcase": {
			{Name: "component", Type: "select", Label: "Component", Options: []string{"core", "ui"}},
		},
		"testcaseinplan": {
			{Name: "operator", Value: "unassigned"},
		},
	}
	require.NoError(t, SaveCustomFields(path, fields))

	cfg := loadConfig(t, path)
	require.Len(t, cfg.CustomFields["testcase"], 1)
	assert.Equal(t, "select", cfg.CustomFields["testcase"][0].Type)
	assert.Equal(t, []string{"core", "ui"}, cfg.CustomFields["testcase"][0].Options)
	assert.Equal(t, "unassigned", cfg.CustomFields["testcaseinplan"][0].Value)
}
