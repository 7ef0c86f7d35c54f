package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"cariya/internal/core"
)

// Program holds the savings program parameters. It is read from an optional
// TOML file; anything left out keeps its default.
type Program struct {
	Window     WindowConfig     `toml:"window"`
	UnitAmount int64            `toml:"unit_amount"`
	Thresholds ThresholdsConfig `toml:"thresholds"`
}

// WindowConfig bounds the program months, both ends included.
type WindowConfig struct {
	Start core.YearMonth `toml:"start"`
	End   core.YearMonth `toml:"end"`
}

// ThresholdsConfig holds the absolute segmentation thresholds.
type ThresholdsConfig struct {
	High               int `toml:"high"`
	Moderate           int `toml:"moderate"`
	ChildrenAssumption int `toml:"children_assumption"`
}

// DefaultProgram is the pilot: January to April 2025, 1000 per child.
func DefaultProgram() Program {
	w := core.DefaultWindow()
	return Program{
		Window:     WindowConfig{Start: w.Start, End: w.End},
		UnitAmount: 1000,
		Thresholds: ThresholdsConfig{High: 18, Moderate: 10, ChildrenAssumption: 1},
	}
}

// LoadProgram reads path over the defaults. An empty path, or a path that
// does not exist, yields the defaults.
func LoadProgram(path string) (Program, error) {
	p := DefaultProgram()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, fmt.Errorf("reading program file: %w", err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing program file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p Program) Validate() error {
	if _, err := p.ProgramWindow(); err != nil {
		return err
	}
	if p.UnitAmount <= 0 {
		return fmt.Errorf("%w: unit amount must be positive, got %d", core.ErrInvalidInput, p.UnitAmount)
	}
	if p.Thresholds.High < p.Thresholds.Moderate || p.Thresholds.Moderate < 0 {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= moderate <= high", core.ErrInvalidInput)
	}
	if p.Thresholds.ChildrenAssumption < 1 {
		return fmt.Errorf("%w: children assumption must be at least 1", core.ErrInvalidInput)
	}
	return nil
}

func (p Program) ProgramWindow() (core.Window, error) {
	return core.NewWindow(p.Window.Start, p.Window.End)
}

func (p Program) Unit() core.Money {
	return core.Units(p.UnitAmount)
}
