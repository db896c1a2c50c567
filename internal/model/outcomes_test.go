package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"testledger/internal/config"
)

func TestNewOutcomes_Defaults(t *testing.T) {
	o, err := NewOutcomes(config.OutcomesConfig{})
	require.NoError(t, err)

	require.Equal(t, "to_be_tested", o.Default().Name)
	require.Equal(t, ColorYellow, o.Default().Color)

	failed, ok := o.Lookup("failed")
	require.True(t, ok)
	require.Equal(t, ColorRed, failed.Color)
	require.Len(t, o.All(), 3)
}

func TestNewOutcomes_UnknownDefault(t *testing.T) {
	_, err := NewOutcomes(config.OutcomesConfig{
		Default: "missing",
		Statuses: []config.OutcomeConfig{
			{Name: "pass", Color: "green"},
		},
	})
	require.Error(t, err)
}

func TestWorst(t *testing.T) {
	require.Equal(t, ColorRed, Worst(ColorGreen, ColorRed))
	require.Equal(t, ColorRed, Worst(ColorRed, ColorYellow))
	require.Equal(t, ColorYellow, Worst(ColorGreen, ColorYellow))
	require.Equal(t, ColorGreen, Worst(ColorGreen, ColorGreen))
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("yellow")
	require.NoError(t, err)
	require.Equal(t, ColorYellow, c)

	_, err = ParseColor("mauve")
	require.Error(t, err)
}
