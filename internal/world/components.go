package world

import (
	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/data"
)

// UnitKind separates player-controlled units from the rest. Only players
// are subject to cooldowns, costs and prerequisite checks.
type UnitKind uint8

const (
	KindPlayer UnitKind = iota
	KindCreature
	KindPositional
)

var unitKindNames = map[string]UnitKind{
	"player":     KindPlayer,
	"creature":   KindCreature,
	"positional": KindPositional,
}

func (k UnitKind) String() string {
	for n, v := range unitKindNames {
		if v == k {
			return n
		}
	}
	return "unknown"
}

// Transform is a unit's placement. Yaw is in radians, 0 faces +X.
type Transform struct {
	X, Y, Z float64
	Yaw     float64
}

// Body holds the static description of a unit.
type Body struct {
	Name       string
	Kind       UnitKind
	CreatureID uint32 // template id, 0 for players
	Faction    uint32
	HitRadius  float64
	SightRange float64
	Despawned  bool // removed from the grid, waiting for the destroy queue
}

// Vitals holds health and the secondary resources abilities may cost.
// Shield is stored with the other vitals and absorbs damage first.
type Vitals struct {
	Health    float64
	MaxHealth float64
	Values    map[data.Vital]float64
	Dead      bool
}

// ActiveBuff is one buff application living on a unit.
type ActiveBuff struct {
	EffectID      uint32
	ApplicationID uint32
	CastingID     uint32
	SourceID      ecs.EntityID
	CCMask        uint32
	Shield        float64 // shield granted on apply, withdrawn on removal
}

// Status carries crowd control and the buffs on a unit.
type Status struct {
	BaseCC uint32
	Buffs  []ActiveBuff
}

// CC is the union of the base state and every buff's crowd-control mask.
func (s *Status) CC() uint32 {
	cc := s.BaseCC
	for i := range s.Buffs {
		cc |= s.Buffs[i].CCMask
	}
	return cc
}

// CreatureTemplate describes a spawnable creature, e.g. the anchor of a
// positional aura.
type CreatureTemplate struct {
	ID        uint32
	Name      string
	Faction   uint32
	MaxHealth float64
	HitRadius float64
}
