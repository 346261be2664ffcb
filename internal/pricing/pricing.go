// Package pricing estimates furniture prices from a markup table.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/m3rciful/mebelbot/internal/apperr"
)

// MaxLengthMetres bounds a single configuration.
const MaxLengthMetres = 50.0

// Table holds base prices per linear metre and multiplicative markups.
type Table struct {
	BasePerMetre map[string]float64 `yaml:"base_per_metre" json:"basePerMetre"`
	Material     map[string]float64 `yaml:"material" json:"material"`
	Facade       map[string]float64 `yaml:"facade" json:"facade"`
	Hardware     map[string]float64 `yaml:"hardware" json:"hardware"`
	Installation float64            `yaml:"installation" json:"installation"`
	RoundTo      float64            `yaml:"round_to" json:"roundTo"`
}

// DefaultTable returns the built-in price list in roubles.
func DefaultTable() Table {
	return Table{
		BasePerMetre: map[string]float64{
			"kitchen":  45000,
			"wardrobe": 35000,
			"hallway":  30000,
			"bathroom": 28000,
			"office":   32000,
		},
		Material: map[string]float64{
			"ldsp":       1.0,
			"mdf":        1.25,
			"veneer":     1.6,
			"solid_wood": 2.1,
		},
		Facade: map[string]float64{
			"matte":   1.0,
			"gloss":   1.1,
			"enamel":  1.35,
			"plastic": 1.15,
		},
		Hardware: map[string]float64{
			"standard": 1.0,
			"blum":     1.2,
		},
		Installation: 1.1,
		RoundTo:      100,
	}
}

// Merge overlays non-empty entries of o on t and returns the result.
func (t Table) Merge(o Table) Table {
	out := Table{
		BasePerMetre: mergeMap(t.BasePerMetre, o.BasePerMetre),
		Material:     mergeMap(t.Material, o.Material),
		Facade:       mergeMap(t.Facade, o.Facade),
		Hardware:     mergeMap(t.Hardware, o.Hardware),
		Installation: t.Installation,
		RoundTo:      t.RoundTo,
	}
	if o.Installation > 0 {
		out.Installation = o.Installation
	}
	if o.RoundTo > 0 {
		out.RoundTo = o.RoundTo
	}
	return out
}

func mergeMap(base, over map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		if v > 0 {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

// Validate rejects tables with missing sections or non-positive values.
func (t Table) Validate() error {
	sections := []struct {
		name string
		m    map[string]float64
	}{
		{"base_per_metre", t.BasePerMetre},
		{"material", t.Material},
		{"facade", t.Facade},
		{"hardware", t.Hardware},
	}
	for _, s := range sections {
		if len(s.m) == 0 {
			return fmt.Errorf("pricing.%s is empty", s.name)
		}
		for k, v := range s.m {
			if v <= 0 {
				return fmt.Errorf("pricing.%s.%s must be > 0", s.name, k)
			}
		}
	}
	if t.Installation < 1 {
		return fmt.Errorf("pricing.installation must be >= 1")
	}
	return nil
}

// Kinds lists known furniture kinds, sorted.
func (t Table) Kinds() []string {
	out := make([]string, 0, len(t.BasePerMetre))
	for k := range t.BasePerMetre {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Configuration describes what the customer wants priced. An empty Facade or
// Hardware carries no markup.
type Configuration struct {
	Kind         string  `json:"kind" validate:"required,max=40"`
	LengthMetres float64 `json:"length" validate:"required,gt=0,lte=50"`
	Material     string  `json:"material" validate:"required,max=40"`
	Facade       string  `json:"facade" validate:"max=40"`
	Hardware     string  `json:"hardware" validate:"max=40"`
	Installation bool    `json:"installation"`
}

// Estimate is the priced configuration.
type Estimate struct {
	Base       float64 `json:"base"`
	Multiplier float64 `json:"multiplier"`
	Price      int64   `json:"price"`
}

// Estimate prices cfg: base per metre × length × material × facade × hardware,
// times the installation markup when requested, rounded to RoundTo.
func (t Table) Estimate(cfg Configuration) (Estimate, error) {
	const op = "pricing.Estimate"
	if cfg.LengthMetres <= 0 || cfg.LengthMetres > MaxLengthMetres || math.IsNaN(cfg.LengthMetres) {
		return Estimate{}, apperr.Validation(fmt.Sprintf("length must be within (0, %g] metres", MaxLengthMetres)).WithOp(op)
	}
	base, err := lookup(t.BasePerMetre, "kind", cfg.Kind)
	if err != nil {
		return Estimate{}, err
	}
	mult := 1.0
	for _, f := range []struct {
		name string
		m    map[string]float64
		key  string
	}{
		{"material", t.Material, cfg.Material},
		{"facade", t.Facade, cfg.Facade},
		{"hardware", t.Hardware, cfg.Hardware},
	} {
		if f.name != "material" && strings.TrimSpace(f.key) == "" {
			continue
		}
		v, err := lookup(f.m, f.name, f.key)
		if err != nil {
			return Estimate{}, err
		}
		mult *= v
	}
	if cfg.Installation {
		mult *= t.Installation
	}
	raw := base * cfg.LengthMetres * mult
	step := t.RoundTo
	if step <= 0 {
		step = 1
	}
	return Estimate{
		Base:       base * cfg.LengthMetres,
		Multiplier: mult,
		Price:      int64(math.Round(raw/step) * step),
	}, nil
}

func lookup(m map[string]float64, field, key string) (float64, error) {
	v, ok := m[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return 0, apperr.Validation(fmt.Sprintf("unknown %s %q", field, key)).WithOp("pricing.Estimate")
	}
	return v, nil
}
