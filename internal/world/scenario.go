package world

import (
	"fmt"
	"math"
	"os"

	"github.com/l1jgo/spellengine/internal/data"
	"github.com/l1jgo/spellengine/internal/spell"
	"gopkg.in/yaml.v3"
)

// --- YAML loading ---

type scenarioFile struct {
	Factions struct {
		Hostile  [][2]uint32 `yaml:"hostile"`
		Friendly [][2]uint32 `yaml:"friendly"`
	} `yaml:"factions"`
	Creatures []creatureEntry `yaml:"creatures"`
	Units     []unitEntry     `yaml:"units"`
}

type creatureEntry struct {
	ID        uint32  `yaml:"id"`
	Name      string  `yaml:"name"`
	Faction   uint32  `yaml:"faction"`
	MaxHealth float64 `yaml:"max_health"`
	HitRadius float64 `yaml:"hit_radius"`
}

type unitEntry struct {
	Name      string             `yaml:"name"`
	Kind      string             `yaml:"kind"`
	Faction   uint32             `yaml:"faction"`
	Pos       [3]float64         `yaml:"pos"`
	Facing    float64            `yaml:"facing"` // degrees
	HitRadius float64            `yaml:"hit_radius"`
	Sight     float64            `yaml:"sight"`
	MaxHealth float64            `yaml:"max_health"`
	Health    *float64           `yaml:"health"`
	Vitals    map[string]float64 `yaml:"vitals"`
	CC        uint32             `yaml:"cc"`
}

// Scenario is a parsed world setup ready to be applied to a State.
type Scenario struct {
	file scenarioFile
}

// LoadScenario reads a scenario document.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(raw)
}

// ParseScenario decodes a scenario document and validates unit kinds and
// vital names.
func ParseScenario(raw []byte) (*Scenario, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	names := make(map[string]bool, len(f.Units))
	for i, u := range f.Units {
		if u.Name == "" {
			return nil, fmt.Errorf("unit #%d: missing name", i)
		}
		if names[u.Name] {
			return nil, fmt.Errorf("unit %q: duplicate name", u.Name)
		}
		names[u.Name] = true
		if _, ok := unitKindNames[u.Kind]; !ok {
			return nil, fmt.Errorf("unit %q: unknown kind %q", u.Name, u.Kind)
		}
		if u.MaxHealth <= 0 {
			return nil, fmt.Errorf("unit %q: max_health must be positive", u.Name)
		}
		for v := range u.Vitals {
			if _, err := data.ParseVital(v); err != nil {
				return nil, fmt.Errorf("unit %q: %w", u.Name, err)
			}
		}
	}
	return &Scenario{file: f}, nil
}

// Units returns the number of units the scenario spawns.
func (sc *Scenario) Units() int { return len(sc.file.Units) }

// Apply registers creatures and faction relations and spawns every unit.
// It returns the spawned units by name.
func (sc *Scenario) Apply(s *State) map[string]*UnitRef {
	for _, p := range sc.file.Factions.Hostile {
		s.SetRelation(p[0], p[1], spell.DispositionHostile)
	}
	for _, p := range sc.file.Factions.Friendly {
		s.SetRelation(p[0], p[1], spell.DispositionFriendly)
	}
	for _, c := range sc.file.Creatures {
		s.RegisterCreature(CreatureTemplate{
			ID:        c.ID,
			Name:      c.Name,
			Faction:   c.Faction,
			MaxHealth: c.MaxHealth,
			HitRadius: c.HitRadius,
		})
	}

	out := make(map[string]*UnitRef, len(sc.file.Units))
	for _, u := range sc.file.Units {
		v := Vitals{MaxHealth: u.MaxHealth, Health: u.MaxHealth, Values: make(map[data.Vital]float64, len(u.Vitals))}
		if u.Health != nil {
			v.Health = *u.Health
			v.Dead = v.Health <= 0
		}
		for name, amount := range u.Vitals {
			vital, _ := data.ParseVital(name)
			v.Values[vital] = amount
		}
		id := s.Spawn(
			Body{Name: u.Name, Kind: unitKindNames[u.Kind], Faction: u.Faction, HitRadius: u.HitRadius, SightRange: u.Sight},
			Transform{X: u.Pos[0], Y: u.Pos[1], Z: u.Pos[2], Yaw: u.Facing * math.Pi / 180},
			v,
		)
		ref, _ := s.Ref(id)
		if u.CC != 0 {
			ref.SetCC(u.CC)
		}
		out[u.Name] = ref
	}
	return out
}
