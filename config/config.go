package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LoadPlan loads the compensation plan from path. A missing file is created
// with the default plan.
func LoadPlan(path string) (*Plan, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	plan := &Plan{}
	meta, err := toml.DecodeFile(path, plan)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("plan %s: unknown key %s", path, undecoded[0])
	}
	applyDefaults(plan)
	if err := ValidatePlan(plan); err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return plan, nil
}

func applyDefaults(p *Plan) {
	if p.CapMultiplier == 0 {
		p.CapMultiplier = 4
	}
	if p.ForfeitPolicy == "" {
		p.ForfeitPolicy = "forfeit"
	}
	if p.Matrix.Width == 0 {
		p.Matrix.Width = 2
	}
	if p.Matrix.MaxDepth == 0 {
		p.Matrix.MaxDepth = 30
	}
	if p.Matrix.UplineDepth == 0 {
		p.Matrix.UplineDepth = p.Matrix.MaxDepth
	}
	if len(p.Reinvest.LevelRates) == 0 && p.Reinvest.Total() == 0 {
		p.Reinvest = DefaultPlan().Reinvest
	}
}

// createDefault writes the default plan to path.
func createDefault(path string) (*Plan, error) {
	plan := DefaultPlan()
	if err := persist(path, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func persist(path string, plan *Plan) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(plan)
}
