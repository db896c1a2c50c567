package model

import (
	"fmt"

	"testledger/internal/config"
)

// Color is the aggregation color of a verdict. Higher values dominate
// when rolling results up the catalog tree.
type Color int

const (
	ColorGreen Color = iota
	ColorYellow
	ColorRed
)

func (c Color) String() string {
	switch c {
	case ColorGreen:
		return "green"
	case ColorYellow:
		return "yellow"
	case ColorRed:
		return "red"
	default:
		return "unknown"
	}
}

// ParseColor converts a configured color name.
func ParseColor(s string) (Color, error) {
	switch s {
	case "green":
		return ColorGreen, nil
	case "yellow":
		return ColorYellow, nil
	case "red":
		return ColorRed, nil
	default:
		return 0, fmt.Errorf("unknown outcome color %q", s)
	}
}

// Outcome is one configured verdict.
type Outcome struct {
	Name    string
	Caption string
	Color   Color
}

// Outcomes is the configured verdict set.
type Outcomes struct {
	byName      map[string]Outcome
	order       []string
	defaultName string
}

// NewOutcomes builds the verdict set from configuration, falling back to
// the built-in defaults when none is configured.
func NewOutcomes(cfg config.OutcomesConfig) (Outcomes, error) {
	if len(cfg.Statuses) == 0 {
		cfg = config.DefaultOutcomes()
	}

	o := Outcomes{
		byName:      make(map[string]Outcome, len(cfg.Statuses)),
		defaultName: cfg.Default,
	}
	for _, s := range cfg.Statuses {
		color, err := ParseColor(s.Color)
		if err != nil {
			return Outcomes{}, err
		}
		caption := s.Caption
		if caption == "" {
			caption = s.Name
		}
		o.byName[s.Name] = Outcome{Name: s.Name, Caption: caption, Color: color}
		o.order = append(o.order, s.Name)
	}

	if o.defaultName == "" {
		o.defaultName = cfg.Statuses[0].Name
	}
	if _, ok := o.byName[o.defaultName]; !ok {
		return Outcomes{}, fmt.Errorf("default outcome %q is not configured", o.defaultName)
	}
	return o, nil
}

// Default returns the verdict assigned to freshly planned cases.
func (o Outcomes) Default() Outcome {
	return o.byName[o.defaultName]
}

// Lookup returns the verdict with the given name.
func (o Outcomes) Lookup(name string) (Outcome, bool) {
	out, ok := o.byName[name]
	return out, ok
}

// All returns the verdicts in configuration order.
func (o Outcomes) All() []Outcome {
	out := make([]Outcome, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.byName[name])
	}
	return out
}

// Worst returns the dominant of two colors: red over yellow over green.
func Worst(a, b Color) Color {
	if b > a {
		return b
	}
	return a
}
