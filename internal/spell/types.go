package spell

import (
	"math"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/data"
)

// Position is a point in world space. X and Y span the ground plane,
// Z is height and is ignored by telegraph tests.
type Position struct {
	X, Y, Z float64
}

func (p Position) Distance(o Position) float64 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Disposition is how one faction regards another.
type Disposition int8

const (
	DispositionHostile Disposition = iota
	DispositionNeutral
	DispositionFriendly
)

// Unit is any world entity a cast can select.
type Unit interface {
	ID() ecs.EntityID
	Position() Position
	Yaw() float64 // radians, 0 faces +X
	HitRadius() float64
	IsPlayer() bool
	Faction() uint32 // 0 = unaligned, never an area candidate
	DispositionTo(faction uint32) Disposition
	Health() float64
	MaxHealth() float64
}

// Caster is a unit that can cast abilities.
type Caster interface {
	Unit
	// Visible resolves a unit the caster can currently see.
	Visible(id ecs.EntityID) (Unit, bool)
	// CCState is the bitmask of crowd-control states on the caster.
	CCState() uint32
	Vital(v data.Vital) float64
	ModifyVital(v data.Vital, delta float64)
}

// World is the spatial side of the engine.
type World interface {
	// Search returns the units within radius of origin accepted by check,
	// in a stable evaluation order.
	Search(origin Position, radius float64, check func(Unit) bool) []Unit
	Unit(id ecs.EntityID) (Unit, bool)
	// SpawnPositional creates the entity that anchors a positional aura.
	SpawnPositional(creatureID uint32, pos Position, yaw float64) (Unit, error)
	Despawn(id ecs.EntityID)
}

// Prerequisites is the boolean prerequisite oracle.
type Prerequisites interface {
	Meets(subject Unit, prerequisiteID uint32) bool
}

// Abilities resolves ability definitions.
type Abilities interface {
	Get(id uint32) *data.AbilityInfo
}
